package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidRoomCode(t *testing.T) {
	require.True(t, ValidRoomCode("123456"))
	require.True(t, ValidRoomCode("000000"))

	require.False(t, ValidRoomCode("12345"))
	require.False(t, ValidRoomCode("1234567"))
	require.False(t, ValidRoomCode("12345a"))
	require.False(t, ValidRoomCode(""))
}

func TestValidateRoomName(t *testing.T) {
	require.NoError(t, ValidateRoomName("abc"))
	require.NoError(t, ValidateRoomName(strings.Repeat("a", MaxRoomNameLength)))

	require.Error(t, ValidateRoomName("ab"))
	require.Error(t, ValidateRoomName(strings.Repeat("a", MaxRoomNameLength+1)))
	require.True(t, IsValidation(ValidateRoomName("ab")))
}

func TestValidateRoomPassword(t *testing.T) {
	require.NoError(t, ValidateRoomPassword(""))
	require.NoError(t, ValidateRoomPassword("abcd"))
	require.NoError(t, ValidateRoomPassword(strings.Repeat("a", MaxRoomPasswordLength)))

	require.Error(t, ValidateRoomPassword("abc"))
	require.Error(t, ValidateRoomPassword(strings.Repeat("a", MaxRoomPasswordLength+1)))
}

func TestRoomProtected(t *testing.T) {
	require.False(t, Room{}.Protected())
	require.True(t, Room{PasswordHash: "$2a$10$hash"}.Protected())
}

func TestBuildInviteLink(t *testing.T) {
	require.Equal(t, "https://chat.example.com/join/123456", BuildInviteLink("https://chat.example.com", "123456"))
}

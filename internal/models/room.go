package models

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"
)

const (
	MinRoomNameLength = 3
	MaxRoomNameLength = 100

	MinRoomPasswordLength = 4
	// bcrypt rejects inputs longer than 72 bytes.
	MaxRoomPasswordLength = 72
)

var roomCodePattern = regexp.MustCompile(`^\d{6}$`)

// Room represents a chat room addressable by its public 6-digit code.
// The code is the only identifier exposed to clients; the serial id stays
// internal. Rooms are never hard-deleted, only deactivated.
type Room struct {
	ID           int       `db:"id" json:"-"`
	Code         string    `db:"code" json:"roomId"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsPrivate    bool      `db:"is_private" json:"isPrivate"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedBy    int       `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`

	// InviteLink is derived from the code at presentation time, never stored.
	InviteLink string `json:"inviteLink,omitempty"`
}

// Protected reports whether joining requires a password.
func (r Room) Protected() bool {
	return r.PasswordHash != ""
}

// BuildInviteLink returns the shareable join URL for a room code.
func BuildInviteLink(baseURL, code string) string {
	return fmt.Sprintf("%s/join/%s", baseURL, code)
}

// RoomInfo is the public projection of a room. It must never carry the
// password hash.
type RoomInfo struct {
	Code             string    `json:"roomId"`
	Name             string    `json:"name"`
	IsPrivate        bool      `json:"isPrivate"`
	ParticipantCount int       `json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RoomSummary is the listing row returned by GET /rooms.
type RoomSummary struct {
	Code             string    `db:"code" json:"roomId"`
	Name             string    `db:"name" json:"name"`
	IsPrivate        bool      `db:"is_private" json:"isPrivate"`
	Protected        bool      `db:"protected" json:"protected"`
	ParticipantCount int       `db:"participant_count" json:"participantCount"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// ValidRoomCode reports whether code is a well-formed 6-digit room code.
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// ValidateRoomName checks the display-name length bounds.
func ValidateRoomName(name string) error {
	length := utf8.RuneCountInString(name)
	if length < MinRoomNameLength || length > MaxRoomNameLength {
		return validationErr(fmt.Sprintf("room name must be between %d and %d characters", MinRoomNameLength, MaxRoomNameLength))
	}
	return nil
}

// ValidateRoomPassword checks an optional room password. An empty password
// means the room is open.
func ValidateRoomPassword(password string) error {
	if password == "" {
		return nil
	}
	if len(password) < MinRoomPasswordLength {
		return validationErr(fmt.Sprintf("password must be at least %d characters long", MinRoomPasswordLength))
	}
	if len(password) > MaxRoomPasswordLength {
		return validationErr(fmt.Sprintf("password must be at most %d characters long", MaxRoomPasswordLength))
	}
	return nil
}

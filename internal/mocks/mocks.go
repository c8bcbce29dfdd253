package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/blob"
	"roomchat-service/internal/models"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, creatorID int, name, password string, isPrivate bool) (models.Room, error) {
	args := m.Called(ctx, creatorID, name, password, isPrivate)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) JoinRoom(ctx context.Context, userID int, code, password string) (models.Room, error) {
	args := m.Called(ctx, userID, code, password)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) LeaveRoom(ctx context.Context, userID int, code string) error {
	args := m.Called(ctx, userID, code)
	return args.Error(0)
}

func (m *RoomRepositoryMock) GetRoomByCode(ctx context.Context, code string) (models.Room, error) {
	args := m.Called(ctx, code)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) IsParticipant(ctx context.Context, roomID, userID int) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) Participants(ctx context.Context, roomID int) ([]models.User, error) {
	args := m.Called(ctx, roomID)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *RoomRepositoryMock) RoomInfo(ctx context.Context, code string) (models.RoomInfo, error) {
	args := m.Called(ctx, code)
	var info models.RoomInfo
	if val := args.Get(0); val != nil {
		info = val.(models.RoomInfo)
	}
	return info, args.Error(1)
}

func (m *RoomRepositoryMock) ListJoined(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.RoomSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.RoomSummary)
	}
	return list, args.Error(1)
}

func (m *RoomRepositoryMock) ListPublicUnjoined(ctx context.Context, userID, limit int) ([]models.RoomSummary, error) {
	args := m.Called(ctx, userID, limit)
	var list []models.RoomSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.RoomSummary)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, room models.Room, senderID int, content models.MessageContent) (models.Message, error) {
	args := m.Called(ctx, room, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessageByBlob(ctx context.Context, blobID string) (models.Message, error) {
	args := m.Called(ctx, blobID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID int, newText string) (models.Message, error) {
	args := m.Called(ctx, messageID, newText)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecent(ctx context.Context, roomID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID, senderID int) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, userIDs []int) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var identity auth.Identity
	if val := args.Get(0); val != nil {
		identity = val.(auth.Identity)
	}
	return identity, args.Error(1)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Put(ctx context.Context, r io.Reader, info blob.Info) (string, error) {
	args := m.Called(ctx, r, info)
	return args.String(0), args.Error(1)
}

func (m *BlobStoreMock) Get(ctx context.Context, blobID string) (io.ReadCloser, blob.Info, error) {
	args := m.Called(ctx, blobID)
	var rc io.ReadCloser
	if val := args.Get(0); val != nil {
		rc = val.(io.ReadCloser)
	}
	var info blob.Info
	if val := args.Get(1); val != nil {
		info = val.(blob.Info)
	}
	return rc, info, args.Error(2)
}

func (m *BlobStoreMock) Remove(ctx context.Context, blobID string) error {
	args := m.Called(ctx, blobID)
	return args.Error(0)
}

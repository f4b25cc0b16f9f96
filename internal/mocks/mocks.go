package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) RoomExists(ctx context.Context, roomID int64) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetMembers(ctx context.Context, roomID int64) ([]int64, error) {
	args := m.Called(ctx, roomID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) ListMembers(ctx context.Context, roomID int64) ([]models.UserRef, error) {
	args := m.Called(ctx, roomID)
	var members []models.UserRef
	if val := args.Get(0); val != nil {
		members = val.([]models.UserRef)
	}
	return members, args.Error(1)
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, name string, memberIDs []int64) (models.Room, error) {
	args := m.Called(ctx, name, memberIDs)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) FindOrCreatePrivateRoom(ctx context.Context, userA, userB int64) (models.Room, error) {
	args := m.Called(ctx, userA, userB)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, userID int64) ([]models.RoomSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.RoomSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.RoomSummary)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessageRow(ctx context.Context, messageID int64) (models.MessageRow, error) {
	args := m.Called(ctx, messageID)
	var row models.MessageRow
	if val := args.Get(0); val != nil {
		row = val.(models.MessageRow)
	}
	return row, args.Error(1)
}

func (m *MessageRepositoryMock) LatestMessage(ctx context.Context, roomID int64) (*models.Message, error) {
	args := m.Called(ctx, roomID)
	var msg *models.Message
	if val := args.Get(0); val != nil {
		msg = val.(*models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateMessageText(ctx context.Context, messageID, authorID int64, text string) (models.Message, error) {
	args := m.Called(ctx, messageID, authorID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID, authorID int64) error {
	args := m.Called(ctx, messageID, authorID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListRoomMessages(ctx context.Context, roomID int64) ([]models.MessageRow, error) {
	args := m.Called(ctx, roomID)
	var rows []models.MessageRow
	if val := args.Get(0); val != nil {
		rows = val.([]models.MessageRow)
	}
	return rows, args.Error(1)
}

type ReadStatusRepositoryMock struct {
	mock.Mock
}

func (m *ReadStatusRepositoryMock) UpsertReadStatus(ctx context.Context, userID, roomID int64, lastReadMessageID *int64) error {
	args := m.Called(ctx, userID, roomID, lastReadMessageID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) UpsertUser(ctx context.Context, user models.UserRef) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int64) (models.UserRef, error) {
	args := m.Called(ctx, userID)
	var user models.UserRef
	if val := args.Get(0); val != nil {
		user = val.(models.UserRef)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListOtherUsers(ctx context.Context, userID int64) ([]models.UserRef, error) {
	args := m.Called(ctx, userID)
	var users []models.UserRef
	if val := args.Get(0); val != nil {
		users = val.([]models.UserRef)
	}
	return users, args.Error(1)
}

var (
	_ repositories.RoomRepository       = (*RoomRepositoryMock)(nil)
	_ repositories.MessageRepository    = (*MessageRepositoryMock)(nil)
	_ repositories.ReadStatusRepository = (*ReadStatusRepositoryMock)(nil)
	_ repositories.UserRepository       = (*UserRepositoryMock)(nil)
)

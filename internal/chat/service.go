package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roomchat/internal/bus"
	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

var tracer = otel.Tracer("roomchat/chat")

// Publisher delivers an event to every session subscribed to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, event models.OutboundEvent) error
}

// Files validates stored file references and renders their public URL.
type Files interface {
	URL(path string) string
	Validate(path string) error
}

// MessageInput is a message as submitted by a client.
type MessageInput struct {
	Text     string
	File     string
	ReplyTo  *int64
	ClientID json.RawMessage
}

// RoomInfo describes a room and its members.
type RoomInfo struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	IsPrivate bool             `json:"is_private"`
	Members   []models.UserRef `json:"members"`
}

// RoomDetail is a room with its full history.
type RoomDetail struct {
	RoomInfo
	Messages []models.MessagePayload `json:"messages"`
}

// Service implements room conversations on top of the repositories and a
// session publisher. Every mutation is persisted before it is published.
type Service struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	reads    repositories.ReadStatusRepository
	users    repositories.UserRepository
	files    Files
	pub      Publisher
	notifier *Notifier
	log      zerolog.Logger
}

func NewService(
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	reads repositories.ReadStatusRepository,
	users repositories.UserRepository,
	files Files,
	pub Publisher,
	log zerolog.Logger,
) *Service {
	log = log.With().Str("component", "chat").Logger()
	return &Service{
		rooms:    rooms,
		messages: messages,
		reads:    reads,
		users:    users,
		files:    files,
		pub:      pub,
		notifier: NewNotifier(rooms, pub, log),
		log:      log,
	}
}

// EnsureMember fails with ErrRoomNotFound or ErrNotMember unless userID
// belongs to an existing room.
func (s *Service) EnsureMember(ctx context.Context, roomID, userID int64) error {
	exists, err := s.rooms.RoomExists(ctx, roomID)
	if err != nil {
		return fmt.Errorf("check room: %w", err)
	}
	if !exists {
		return ErrRoomNotFound
	}
	member, err := s.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return ErrNotMember
	}
	return nil
}

// MarkRoomRead advances the user's read mark to the room's latest message.
func (s *Service) MarkRoomRead(ctx context.Context, userID, roomID int64) error {
	latest, err := s.messages.LatestMessage(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load latest message: %w", err)
	}
	var lastID *int64
	if latest != nil {
		lastID = &latest.ID
	}
	if err := s.reads.UpsertReadStatus(ctx, userID, roomID, lastID); err != nil {
		return fmt.Errorf("upsert read status: %w", err)
	}
	return nil
}

// Join marks the room read and announces the user as online.
func (s *Service) Join(ctx context.Context, user models.UserRef, roomID int64) error {
	if err := s.MarkRoomRead(ctx, user.ID, roomID); err != nil {
		return err
	}
	return s.publish(ctx, bus.RoomChannel(roomID), models.NewStatusEvent(models.StatusOnline, user))
}

// Leave announces the user as offline.
func (s *Service) Leave(ctx context.Context, user models.UserRef, roomID int64) error {
	return s.publish(ctx, bus.RoomChannel(roomID), models.NewStatusEvent(models.StatusOffline, user))
}

// Typing relays a typing indicator. Nothing is persisted.
func (s *Service) Typing(ctx context.Context, user models.UserRef, roomID int64) error {
	return s.publish(ctx, bus.RoomChannel(roomID), models.NewTypingEvent(roomID, user))
}

// PostMessage persists a message, publishes it to the room and then sends
// unread deltas to the other members.
func (s *Service) PostMessage(ctx context.Context, author models.UserRef, roomID int64, in MessageInput) (payload models.MessagePayload, err error) {
	ctx, span := tracer.Start(ctx, "chat.PostMessage", trace.WithAttributes(attribute.Int64("room_id", roomID)))
	defer func() { endSpan(span, err) }()

	text := strings.TrimSpace(in.Text)
	file := strings.TrimSpace(in.File)
	if text == "" && file == "" {
		return models.MessagePayload{}, ErrEmptyMessage
	}
	if file != "" && s.files != nil {
		if err := s.files.Validate(file); err != nil {
			return models.MessagePayload{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
	}
	if err := s.EnsureMember(ctx, roomID, author.ID); err != nil {
		return models.MessagePayload{}, err
	}

	reply, err := s.replySnapshot(ctx, roomID, in.ReplyTo)
	if err != nil {
		return models.MessagePayload{}, err
	}
	var replyID *int64
	if reply != nil {
		replyID = &reply.ID
	}

	msg, err := s.messages.CreateMessage(ctx, models.NewMessage{
		RoomID:    roomID,
		UserID:    author.ID,
		Text:      text,
		File:      file,
		ReplyToID: replyID,
	})
	if err != nil {
		return models.MessagePayload{}, fmt.Errorf("create message: %w", err)
	}

	payload = s.render(msg, author, reply, in.ClientID)
	if err := s.publish(ctx, bus.RoomChannel(roomID), models.NewMessageEvent(payload)); err != nil {
		return payload, err
	}
	s.notifier.MessageCreated(ctx, msg)
	return payload, nil
}

// replySnapshot resolves the reply target. Targets that are missing or
// belong to another room are dropped.
func (s *Service) replySnapshot(ctx context.Context, roomID int64, replyTo *int64) (*models.ReplySnapshot, error) {
	if replyTo == nil || *replyTo <= 0 {
		return nil, nil
	}
	row, err := s.messages.GetMessageRow(ctx, *replyTo)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reply target: %w", err)
	}
	if row.RoomID != roomID {
		return nil, nil
	}
	author := row.Author()
	return &models.ReplySnapshot{ID: row.ID, Message: row.Text, User: &author}, nil
}

// EditMessage replaces the text of one of the editor's own messages and
// publishes the edit to the message's room.
func (s *Service) EditMessage(ctx context.Context, editor models.UserRef, messageID int64, text string) (msg models.Message, err error) {
	ctx, span := tracer.Start(ctx, "chat.EditMessage", trace.WithAttributes(attribute.Int64("message_id", messageID)))
	defer func() { endSpan(span, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if err := s.ensureAuthor(ctx, editor.ID, messageID); err != nil {
		return models.Message{}, err
	}

	msg, err = s.messages.UpdateMessageText(ctx, messageID, editor.ID, text)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("update message: %w", err)
	}

	if err := s.publish(ctx, bus.RoomChannel(msg.RoomID), models.NewEditEvent(msg.ID, msg.Text)); err != nil {
		return msg, err
	}
	return msg, nil
}

// DeleteMessage removes one of the deleter's own messages and publishes
// the deletion to the message's room.
func (s *Service) DeleteMessage(ctx context.Context, deleter models.UserRef, messageID int64) (msg models.Message, err error) {
	ctx, span := tracer.Start(ctx, "chat.DeleteMessage", trace.WithAttributes(attribute.Int64("message_id", messageID)))
	defer func() { endSpan(span, err) }()

	msg, err = s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("load message: %w", err)
	}
	if msg.UserID != deleter.ID {
		return models.Message{}, ErrNotAuthor
	}

	err = s.messages.DeleteMessage(ctx, messageID, deleter.ID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("delete message: %w", err)
	}

	if err := s.publish(ctx, bus.RoomChannel(msg.RoomID), models.NewDeleteEvent(msg.ID)); err != nil {
		return msg, err
	}
	return msg, nil
}

func (s *Service) ensureAuthor(ctx context.Context, userID, messageID int64) error {
	if messageID <= 0 {
		return ErrMessageNotFound
	}
	msg, err := s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg.UserID != userID {
		return ErrNotAuthor
	}
	return nil
}

// RoomDetail returns the room with its history and marks it read.
func (s *Service) RoomDetail(ctx context.Context, user models.UserRef, roomID int64) (RoomDetail, error) {
	if err := s.EnsureMember(ctx, roomID, user.ID); err != nil {
		return RoomDetail{}, err
	}
	info, err := s.roomInfo(ctx, roomID)
	if err != nil {
		return RoomDetail{}, err
	}

	rows, err := s.messages.ListRoomMessages(ctx, roomID)
	if err != nil {
		return RoomDetail{}, fmt.Errorf("list messages: %w", err)
	}
	history := lo.Map(rows, func(row models.MessageRow, _ int) models.MessagePayload {
		return s.render(row.Message, row.Author(), row.Reply(), nil)
	})

	if err := s.MarkRoomRead(ctx, user.ID, roomID); err != nil {
		return RoomDetail{}, err
	}
	return RoomDetail{RoomInfo: info, Messages: history}, nil
}

// ListRooms returns the user's rooms with unread counts.
func (s *Service) ListRooms(ctx context.Context, userID int64) ([]models.RoomSummary, error) {
	rooms, err := s.rooms.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// StartPrivateRoom returns the private room shared with peerID, creating it
// on first use.
func (s *Service) StartPrivateRoom(ctx context.Context, user models.UserRef, peerID int64) (info RoomInfo, err error) {
	ctx, span := tracer.Start(ctx, "chat.StartPrivateRoom")
	defer func() { endSpan(span, err) }()

	if peerID <= 0 || peerID == user.ID {
		return RoomInfo{}, ErrInvalidPeer
	}
	if _, err := s.users.GetUser(ctx, peerID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return RoomInfo{}, ErrUserNotFound
		}
		return RoomInfo{}, fmt.Errorf("load peer: %w", err)
	}

	room, err := s.rooms.FindOrCreatePrivateRoom(ctx, user.ID, peerID)
	if err != nil {
		return RoomInfo{}, fmt.Errorf("find or create private room: %w", err)
	}
	return s.roomInfoFor(ctx, room)
}

// CreateRoom creates a group room holding the creator and memberIDs.
func (s *Service) CreateRoom(ctx context.Context, creator models.UserRef, name string, memberIDs []int64) (info RoomInfo, err error) {
	ctx, span := tracer.Start(ctx, "chat.CreateRoom")
	defer func() { endSpan(span, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return RoomInfo{}, ErrInvalidRoomName
	}
	members := lo.Uniq(lo.Filter(append([]int64{creator.ID}, memberIDs...), func(id int64, _ int) bool { return id > 0 }))

	room, err := s.rooms.CreateRoom(ctx, name, members)
	if err != nil {
		return RoomInfo{}, fmt.Errorf("create room: %w", err)
	}
	return s.roomInfoFor(ctx, room)
}

// ListUsers returns every known user except the caller.
func (s *Service) ListUsers(ctx context.Context, userID int64) ([]models.UserRef, error) {
	users, err := s.users.ListOtherUsers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Service) roomInfo(ctx context.Context, roomID int64) (RoomInfo, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return RoomInfo{}, ErrRoomNotFound
	}
	if err != nil {
		return RoomInfo{}, fmt.Errorf("load room: %w", err)
	}
	return s.roomInfoFor(ctx, room)
}

func (s *Service) roomInfoFor(ctx context.Context, room models.Room) (RoomInfo, error) {
	members, err := s.rooms.ListMembers(ctx, room.ID)
	if err != nil {
		return RoomInfo{}, fmt.Errorf("list members: %w", err)
	}
	return RoomInfo{ID: room.ID, Name: room.Name, IsPrivate: room.IsPrivate, Members: members}, nil
}

func (s *Service) render(msg models.Message, author models.UserRef, reply *models.ReplySnapshot, clientID json.RawMessage) models.MessagePayload {
	var file *string
	if msg.File != "" {
		url := msg.File
		if s.files != nil {
			url = s.files.URL(msg.File)
		}
		file = &url
	}
	if len(clientID) == 0 {
		clientID = nil
	}
	return models.MessagePayload{
		RoomID:    msg.RoomID,
		ID:        msg.ID,
		ClientID:  clientID,
		User:      author,
		UserID:    author.ID,
		Message:   msg.Text,
		File:      file,
		ReplyTo:   reply,
		Edited:    msg.Edited,
		CreatedAt: msg.CreatedAt,
	}
}

func (s *Service) publish(ctx context.Context, channel string, event models.OutboundEvent) error {
	if err := s.pub.Publish(ctx, channel, event); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType(), channel, err)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil && !IsRejection(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"roomchat/internal/auth"
	"roomchat/internal/bus"
	"roomchat/internal/chat"
	"roomchat/internal/models"
)

// State is the lifecycle position of a room session.
type State int

const (
	StateUnattached State = iota
	StateVerifying
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateVerifying:
		return "verifying"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrInvalidTransition = errors.New("invalid session state transition")

// Authenticator resolves a raw credential to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (models.UserRef, error)
}

// RoomService is the conversation logic a room session drives.
type RoomService interface {
	EnsureMember(ctx context.Context, roomID, userID int64) error
	Join(ctx context.Context, user models.UserRef, roomID int64) error
	Leave(ctx context.Context, user models.UserRef, roomID int64) error
	Typing(ctx context.Context, user models.UserRef, roomID int64) error
	PostMessage(ctx context.Context, author models.UserRef, roomID int64, in chat.MessageInput) (models.MessagePayload, error)
	EditMessage(ctx context.Context, editor models.UserRef, messageID int64, text string) (models.Message, error)
	DeleteMessage(ctx context.Context, deleter models.UserRef, messageID int64) (models.Message, error)
}

// RoomSession coordinates one connection joined to one room. It receives
// the room's events and the user's unread deltas.
type RoomSession struct {
	*Session
	hub    *Hub
	svc    RoomService
	roomID int64

	mu    sync.Mutex
	state State
	user  models.UserRef
}

func NewRoomSession(hub *Hub, svc RoomService, roomID int64, log zerolog.Logger) *RoomSession {
	log = log.With().Str("component", "room_session").Int64("room_id", roomID).Logger()
	return &RoomSession{
		Session: newSession(kindRoom, nil, log),
		hub:     hub,
		svc:     svc,
		roomID:  roomID,
		state:   StateUnattached,
	}
}

func (s *RoomSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *RoomSession) User() models.UserRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *RoomSession) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("%w: %s to %s from %s", ErrInvalidTransition, from, to, s.state)
	}
	s.state = to
	return nil
}

func (s *RoomSession) fail() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.Close()
}

// Authenticate verifies the handshake credential and checks membership.
// Any failure closes the session.
func (s *RoomSession) Authenticate(ctx context.Context, authn Authenticator, credential string) error {
	if err := s.transition(StateUnattached, StateVerifying); err != nil {
		return err
	}
	if credential == "" {
		s.fail()
		return auth.ErrMissingCredential
	}
	user, err := authn.Authenticate(ctx, credential)
	if err != nil {
		s.fail()
		return err
	}
	if err := s.svc.EnsureMember(ctx, s.roomID, user.ID); err != nil {
		s.fail()
		return err
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return nil
}

// Join subscribes the session to the room and user channels, marks the
// room read and announces the user as online.
func (s *RoomSession) Join(ctx context.Context) error {
	user := s.User()
	if err := s.transition(StateVerifying, StateJoined); err != nil {
		return err
	}
	s.hub.Subscribe(bus.RoomChannel(s.roomID), s)
	s.hub.Subscribe(bus.UserChannel(user.ID), s)

	if err := s.svc.Join(ctx, user, s.roomID); err != nil {
		s.unsubscribe(user)
		s.fail()
		return fmt.Errorf("join room: %w", err)
	}
	s.log.Debug().Int64("user_id", user.ID).Msg("session joined")
	return nil
}

// Handle dispatches one inbound frame. Malformed, unauthorized and
// not-found commands are dropped. Backend failures are returned and should
// end the session.
func (s *RoomSession) Handle(ctx context.Context, raw []byte) error {
	if s.State() != StateJoined {
		return nil
	}
	cmd, err := DecodeCommand(raw)
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping inbound frame")
		return nil
	}

	err = s.dispatch(ctx, cmd)
	if err == nil {
		return nil
	}
	if chat.IsRejection(err) {
		s.log.Debug().Err(err).Str("command", cmd.commandType()).Msg("command rejected")
		return nil
	}
	return fmt.Errorf("%s command: %w", cmd.commandType(), err)
}

func (s *RoomSession) dispatch(ctx context.Context, cmd Command) error {
	user := s.User()
	switch c := cmd.(type) {
	case TypingCommand:
		return s.svc.Typing(ctx, user, s.roomID)
	case SendCommand:
		_, err := s.svc.PostMessage(ctx, user, s.roomID, chat.MessageInput{
			Text:     c.Message,
			File:     c.File,
			ReplyTo:  c.ReplyTo,
			ClientID: c.ClientID,
		})
		return err
	case EditCommand:
		_, err := s.svc.EditMessage(ctx, user, c.ID, c.Message)
		return err
	case DeleteCommand:
		_, err := s.svc.DeleteMessage(ctx, user, c.ID)
		return err
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

// Leave announces the user as offline and drops both subscriptions. Only a
// joined session leaves; any other state just closes.
func (s *RoomSession) Leave(ctx context.Context) error {
	s.mu.Lock()
	wasJoined := s.state == StateJoined
	s.state = StateClosed
	user := s.user
	s.mu.Unlock()
	defer s.Close()

	if !wasJoined {
		return nil
	}
	err := s.svc.Leave(ctx, user, s.roomID)
	s.unsubscribe(user)
	return err
}

func (s *RoomSession) unsubscribe(user models.UserRef) {
	s.hub.Unsubscribe(bus.RoomChannel(s.roomID), s)
	s.hub.Unsubscribe(bus.UserChannel(user.ID), s)
}

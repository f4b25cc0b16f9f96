package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"roomchat/internal/auth"
	"roomchat/internal/bus"
	"roomchat/internal/models"
)

// UserSession is an account-wide connection that only receives the user's
// unread deltas.
type UserSession struct {
	*Session
	hub  *Hub
	user models.UserRef
}

func NewUserSession(hub *Hub, log zerolog.Logger) *UserSession {
	s := &UserSession{hub: hub}
	s.Session = newSession(kindUser, renderForUser(log), log.With().Str("component", "user_session").Logger())
	return s
}

// renderForUser rewrites unread deltas into the user session shape and
// passes anything else through.
func renderForUser(log zerolog.Logger) renderFunc {
	return func(msg bus.Message) ([]byte, bool) {
		if msg.Type != models.EventUnreadUpdate {
			return msg.Data, true
		}
		var room models.UnreadUpdateEvent
		if err := json.Unmarshal(msg.Data, &room); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("undecodable unread update")
			return nil, false
		}
		data, err := json.Marshal(room.ForUserSession())
		if err != nil {
			return nil, false
		}
		return data, true
	}
}

// Authenticate verifies the handshake credential.
func (s *UserSession) Authenticate(ctx context.Context, authn Authenticator, credential string) error {
	if credential == "" {
		s.Close()
		return auth.ErrMissingCredential
	}
	user, err := authn.Authenticate(ctx, credential)
	if err != nil {
		s.Close()
		return err
	}
	s.user = user
	return nil
}

func (s *UserSession) User() models.UserRef {
	return s.user
}

// Open subscribes the session to the user's channel.
func (s *UserSession) Open() {
	s.hub.Subscribe(bus.UserChannel(s.user.ID), s)
}

// Leave drops the subscription and closes the session.
func (s *UserSession) Leave() {
	s.hub.Unsubscribe(bus.UserChannel(s.user.ID), s)
	s.Close()
}

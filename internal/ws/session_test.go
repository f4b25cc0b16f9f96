package ws

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"roomchat/internal/bus"
	"roomchat/internal/models"
)

func TestSessionEvictsSlowConsumer(t *testing.T) {
	s := newSession(kindRoom, nil, zerolog.Nop())

	for range sendBufferSize {
		s.Deliver(bus.Message{Channel: "room:1", Data: json.RawMessage(`{}`)})
	}
	require.False(t, s.Evicted())
	select {
	case <-s.Done():
		t.Fatal("session closed before the queue overflowed")
	default:
	}

	s.Deliver(bus.Message{Channel: "room:1", Data: json.RawMessage(`{}`)})
	require.True(t, s.Evicted())
	<-s.Done()

	// closed sessions ignore further deliveries
	s.Deliver(bus.Message{Channel: "room:1", Data: json.RawMessage(`{}`)})
	require.Len(t, s.send, sendBufferSize)
	s.Close()
}

func TestUserSessionRendersUnreadUpdate(t *testing.T) {
	hub := NewHub(bus.NewLocal(), zerolog.Nop())
	s := NewUserSession(hub, zerolog.Nop())

	data, err := json.Marshal(models.NewUnreadUpdateEvent(7, "hi", true))
	require.NoError(t, err)
	s.Deliver(bus.Message{Channel: "user:2", Type: models.EventUnreadUpdate, Data: data})
	s.Deliver(bus.Message{Channel: "user:2", Type: models.EventUnreadUpdate, Data: json.RawMessage(`not json`)})
	s.Deliver(bus.Message{Channel: "user:2", Type: "custom", Data: json.RawMessage(`{"type":"custom"}`)})

	require.Len(t, s.send, 2)
	require.JSONEq(t, `{"type":"unread_update","room_id":7,"last_message":"hi","has_file":true}`, string(<-s.send))
	require.JSONEq(t, `{"type":"custom"}`, string(<-s.send))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "unattached", StateUnattached.String())
	require.Equal(t, "verifying", StateVerifying.String())
	require.Equal(t, "joined", StateJoined.String())
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "state(9)", State(9).String())
}

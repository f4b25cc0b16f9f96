package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestChannelNames(t *testing.T) {
	require.Equal(t, "room:12", RoomChannel(12))
	require.Equal(t, "user:7", UserChannel(7))
}

func TestLocalDeliversInPublishOrder(t *testing.T) {
	b := NewLocal()
	var got []string
	require.NoError(t, b.Subscribe(context.Background(), func(m Message) {
		got = append(got, string(m.Data))
	}))

	for _, data := range []string{`1`, `2`, `3`} {
		require.NoError(t, b.Publish(context.Background(), Message{Channel: "room:1", Type: "message", Data: json.RawMessage(data)}))
	}
	require.Equal(t, []string{"1", "2", "3"}, got)
}

func TestLocalSingleSubscriber(t *testing.T) {
	b := NewLocal()
	require.NoError(t, b.Subscribe(context.Background(), func(Message) {}))
	require.ErrorIs(t, b.Subscribe(context.Background(), func(Message) {}), ErrAlreadySubscribed)
}

func TestLocalWithoutSubscriberDrops(t *testing.T) {
	b := NewLocal()
	require.NoError(t, b.Publish(context.Background(), Message{Channel: "room:1"}))
}

func TestLocalRejectsCancelledContext(t *testing.T) {
	b := NewLocal()
	delivered := false
	require.NoError(t, b.Subscribe(context.Background(), func(Message) { delivered = true }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, b.Publish(ctx, Message{Channel: "room:1"}))
	require.False(t, delivered)
}

func TestLocalCloseDetachesSubscriber(t *testing.T) {
	b := NewLocal()
	calls := 0
	require.NoError(t, b.Subscribe(context.Background(), func(Message) { calls++ }))
	require.NoError(t, b.Close())
	require.NoError(t, b.Publish(context.Background(), Message{Channel: "room:1"}))
	require.Zero(t, calls)
}

func TestNewSelectsBackend(t *testing.T) {
	b, err := New(context.Background(), Options{Backend: BackendMemory}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &Local{}, b)

	_, err = New(context.Background(), Options{Backend: "carrier-pigeon"}, zerolog.Nop())
	require.Error(t, err)

	_, err = New(context.Background(), Options{Backend: BackendAMQP}, zerolog.Nop())
	require.Error(t, err)

	_, err = New(context.Background(), Options{Backend: BackendRedis, RedisURL: "not a url"}, zerolog.Nop())
	require.Error(t, err)
}

func TestEnvelopeKeepsEventBytes(t *testing.T) {
	msg := Message{Channel: "user:2", Type: "unread_update", Data: json.RawMessage(`{"type":"unread_update","room_id":1}`)}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, msg.Channel, back.Channel)
	require.JSONEq(t, string(msg.Data), string(back.Data))
}

package ws

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"roomchat/internal/bus"
)

type countingSubscriber struct {
	n atomic.Int64
}

func (c *countingSubscriber) Deliver(bus.Message) { c.n.Add(1) }

func TestRegistryDeliversExactlyOncePerSubscriber(t *testing.T) {
	const sessions, publishes = 7, 25
	registry := NewRegistry()

	subs := make([]*countingSubscriber, sessions)
	for i := range subs {
		subs[i] = &countingSubscriber{}
		require.True(t, registry.Subscribe("room:1", subs[i]))
		require.False(t, registry.Subscribe("room:1", subs[i]))
	}
	other := &countingSubscriber{}
	registry.Subscribe("room:2", other)

	total := 0
	for range publishes {
		total += registry.Deliver(bus.Message{Channel: "room:1", Type: "typing"})
	}

	require.Equal(t, sessions*publishes, total)
	for _, sub := range subs {
		require.Equal(t, int64(publishes), sub.n.Load())
	}
	require.Zero(t, other.n.Load())
}

func TestRegistryUnsubscribe(t *testing.T) {
	registry := NewRegistry()
	sub := &countingSubscriber{}

	require.False(t, registry.Unsubscribe("room:1", sub))
	registry.Subscribe("room:1", sub)
	registry.Subscribe("user:1", sub)
	require.Equal(t, 2, registry.Channels())

	require.True(t, registry.Unsubscribe("room:1", sub))
	require.False(t, registry.Unsubscribe("room:1", sub))
	require.Equal(t, 0, registry.Count("room:1"))
	require.Equal(t, 1, registry.Channels())

	require.Zero(t, registry.Deliver(bus.Message{Channel: "room:1"}))
	require.Equal(t, 1, registry.Deliver(bus.Message{Channel: "user:1"}))

	require.True(t, registry.Subscribe("room:1", sub))
	require.Equal(t, 1, registry.Count("room:1"))
}

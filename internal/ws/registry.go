package ws

import (
	"sync"

	"roomchat/internal/bus"
)

// Subscriber receives bus messages for the channels it subscribed to.
// Deliver must not block.
type Subscriber interface {
	Deliver(msg bus.Message)
}

// Registry maps channels to the local sessions subscribed to them.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[Subscriber]struct{}
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]map[Subscriber]struct{})}
}

// Subscribe adds sub to channel and reports whether it was newly added.
func (r *Registry) Subscribe(channel string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.channels[channel]
	if !ok {
		subs = make(map[Subscriber]struct{})
		r.channels[channel] = subs
	}
	if _, exists := subs[sub]; exists {
		return false
	}
	subs[sub] = struct{}{}
	return true
}

// Unsubscribe removes sub from channel and reports whether it was present.
// Empty channels are dropped.
func (r *Registry) Unsubscribe(channel string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.channels[channel]
	if !ok {
		return false
	}
	if _, exists := subs[sub]; !exists {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(r.channels, channel)
	}
	return true
}

// Deliver hands msg to every subscriber of its channel and returns how many
// were reached.
func (r *Registry) Deliver(msg bus.Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.channels[msg.Channel]
	for sub := range subs {
		sub.Deliver(msg)
	}
	return len(subs)
}

// Count returns the number of subscribers of channel.
func (r *Registry) Count(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// Channels returns the number of channels with at least one subscriber.
func (r *Registry) Channels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

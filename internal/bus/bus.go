// Package bus carries session events between service instances. Every
// instance subscribes once and hands received messages to its local
// session registry.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var ErrAlreadySubscribed = errors.New("bus already has a subscriber")

// Message is the envelope published on the bus. Data holds the rendered
// event exactly as sessions will receive it.
type Message struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// Handler consumes messages received from the bus. It must not block.
type Handler func(Message)

// Bus publishes messages to every instance subscribed at publish time.
// Messages are not buffered or replayed for late subscribers.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, handler Handler) error
	Ping(ctx context.Context) error
	Close() error
}

// RoomChannel names the channel carrying a room's events.
func RoomChannel(roomID int64) string {
	return fmt.Sprintf("room:%d", roomID)
}

// UserChannel names the channel carrying a user's account-wide events.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendAMQP   = "amqp"
)

// Options selects and configures a backend.
type Options struct {
	Backend      string
	RedisURL     string
	RedisPrefix  string
	AMQPURL      string
	AMQPExchange string
}

// New builds the configured backend.
func New(ctx context.Context, opts Options, log zerolog.Logger) (Bus, error) {
	log = log.With().Str("component", "bus").Str("backend", opts.Backend).Logger()
	switch opts.Backend {
	case "", BackendMemory:
		return NewLocal(), nil
	case BackendRedis:
		return NewRedis(ctx, opts.RedisURL, opts.RedisPrefix, log)
	case BackendAMQP:
		return NewAMQP(opts.AMQPURL, opts.AMQPExchange, log)
	default:
		return nil, fmt.Errorf("unknown bus backend %q", opts.Backend)
	}
}

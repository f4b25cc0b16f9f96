package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis fans out over Redis Pub/Sub. Every instance pattern-subscribes to
// the key prefix, so a PUBLISH reaches all of them.
type Redis struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedis(ctx context.Context, url, prefix string, log zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, prefix: prefix, log: log}, nil
}

func (r *Redis) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.prefix+msg.Channel, body).Err()
}

func (r *Redis) Subscribe(ctx context.Context, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return ErrAlreadySubscribed
	}

	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("psubscribe: %w", err)
	}
	r.pubsub = ps
	r.done = make(chan struct{})

	go r.consume(ps.Channel(), handler, r.done)
	r.log.Info().Str("pattern", r.prefix+"*").Msg("bus subscribed")
	return nil
}

func (r *Redis) consume(messages <-chan *redis.Message, handler Handler, done chan struct{}) {
	defer close(done)
	for m := range messages {
		msg, err := decodePayload(m.Payload, m.Channel, r.prefix)
		if err != nil {
			r.log.Warn().Err(err).Str("channel", m.Channel).Msg("drop malformed bus message")
			continue
		}
		handler(msg)
	}
}

// decodePayload unwraps a bus envelope received on a prefixed Redis
// channel. Envelopes without a channel take the unprefixed Redis channel.
func decodePayload(payload, redisChannel, prefix string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return Message{}, err
	}
	if msg.Channel == "" {
		msg.Channel = strings.TrimPrefix(redisChannel, prefix)
	}
	return msg, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	r.mu.Lock()
	ps, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
		<-done
	}
	return r.client.Close()
}

package bus

import (
	"context"
	"sync"
)

// Local hands messages to the subscriber synchronously, in the publisher's
// goroutine. It only reaches sessions of the current process.
type Local struct {
	mu      sync.RWMutex
	handler Handler
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	handler := l.handler
	l.mu.RUnlock()
	if handler != nil {
		handler(msg)
	}
	return nil
}

func (l *Local) Subscribe(_ context.Context, handler Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler != nil {
		return ErrAlreadySubscribed
	}
	l.handler = handler
	return nil
}

func (l *Local) Ping(context.Context) error {
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	l.handler = nil
	l.mu.Unlock()
	return nil
}

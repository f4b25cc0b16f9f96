package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	reconnectMinDelay = 250 * time.Millisecond
	reconnectMaxDelay = 10 * time.Second
)

// AMQP fans out through a RabbitMQ topic exchange. Each instance consumes
// from its own exclusive queue bound to every routing key; the routing key
// is the channel name. A lost connection is redialed: publishes reopen
// their channel on demand and the consumer redeclares its queue.
type AMQP struct {
	url      string
	exchange string
	log      zerolog.Logger

	connMu sync.Mutex
	conn   *amqp.Connection
	closed bool

	pubMu sync.Mutex
	pub   *amqp.Channel

	subMu   sync.Mutex
	sub     *amqp.Channel
	handler Handler
	done    chan struct{}

	closing   chan struct{}
	closeOnce sync.Once
}

func NewAMQP(url, exchange string, log zerolog.Logger) (*AMQP, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	a := &AMQP{url: url, exchange: exchange, log: log, closing: make(chan struct{})}
	ch, err := a.openChannel()
	if err != nil {
		a.closeConn()
		return nil, err
	}
	a.pub = ch
	return a, nil
}

// connection returns the live connection, dialing a new one when the
// previous one dropped.
func (a *AMQP) connection() (*amqp.Connection, error) {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.closed {
		return nil, amqp.ErrClosed
	}
	if a.conn != nil && !a.conn.IsClosed() {
		return a.conn, nil
	}

	conn, err := amqp.Dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	reasons := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if reason, ok := <-reasons; ok && reason != nil {
			a.log.Warn().Str("reason", reason.Reason).Int("code", reason.Code).Msg("amqp connection lost")
		}
	}()
	a.conn = conn
	return conn, nil
}

// openChannel opens a channel and declares the exchange on it.
func (a *AMQP) openChannel() (*amqp.Channel, error) {
	conn, err := a.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return ch, nil
}

func (a *AMQP) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	if a.pub == nil || a.pub.IsClosed() {
		ch, err := a.openChannel()
		if err != nil {
			return fmt.Errorf("reopen publish channel: %w", err)
		}
		a.pub = ch
		a.log.Info().Msg("bus publish channel reopened")
	}
	return a.pub.PublishWithContext(ctx, a.exchange, msg.Channel, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Type:         msg.Type,
		Body:         body,
	})
}

func (a *AMQP) Subscribe(_ context.Context, handler Handler) error {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	if a.handler != nil {
		return ErrAlreadySubscribed
	}

	ch, deliveries, err := a.declareConsumer()
	if err != nil {
		return err
	}
	a.sub = ch
	a.handler = handler
	a.done = make(chan struct{})
	go a.run(deliveries, handler, a.done)
	return nil
}

// declareConsumer sets up this instance's queue, binds it to every routing
// key and starts consuming.
func (a *AMQP) declareConsumer() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := a.openChannel()
	if err != nil {
		return nil, nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", a.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}
	a.log.Info().Str("queue", q.Name).Msg("bus subscribed")
	return ch, deliveries, nil
}

// run drains deliveries and resubscribes whenever the broker drops the
// consumer, until Close.
func (a *AMQP) run(deliveries <-chan amqp.Delivery, handler Handler, done chan struct{}) {
	defer close(done)
	for {
		for d := range deliveries {
			msg, err := decodeDelivery(d.Body, d.RoutingKey)
			if err != nil {
				a.log.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("drop malformed bus message")
				continue
			}
			handler(msg)
		}

		next, ok := a.resubscribe()
		if !ok {
			return
		}
		deliveries = next
	}
}

func (a *AMQP) resubscribe() (<-chan amqp.Delivery, bool) {
	delay := reconnectMinDelay
	for {
		select {
		case <-a.closing:
			return nil, false
		case <-time.After(delay):
		}

		ch, deliveries, err := a.declareConsumer()
		if err == nil {
			a.subMu.Lock()
			a.sub = ch
			a.subMu.Unlock()
			return deliveries, true
		}
		a.log.Warn().Err(err).Dur("retry_in", delay).Msg("bus resubscribe failed")
		delay = nextBackoff(delay)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return d
}

// decodeDelivery unwraps a bus envelope. Envelopes without a channel take
// the routing key.
func decodeDelivery(body []byte, routingKey string) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, err
	}
	if msg.Channel == "" {
		msg.Channel = routingKey
	}
	return msg, nil
}

func (a *AMQP) Ping(context.Context) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.closed || a.conn == nil || a.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (a *AMQP) closeConn() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	a.closed = true
	if a.conn == nil || a.conn.IsClosed() {
		return nil
	}
	return a.conn.Close()
}

func (a *AMQP) Close() error {
	a.closeOnce.Do(func() { close(a.closing) })

	// closing the connection ends every channel and the consumer with it
	err := a.closeConn()

	a.subMu.Lock()
	done := a.done
	a.subMu.Unlock()
	if done != nil {
		<-done
	}
	return err
}

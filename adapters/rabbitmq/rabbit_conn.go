package rabbitmq

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Concrete AMQP connection-backed session with dial retry.

type Config struct {
	URL         string
	ConnTimeout time.Duration
	Queue       string
	Prefetch    int
	Concurrency int
	// MaxBackoff caps the delay between dial attempts; zero means 30s.
	MaxBackoff time.Duration
}

// Session owns one AMQP connection and channel. The same channel publishes
// requests and consumes direct replies, as RabbitMQ requires.
type Session struct {
	cfg  Config
	conn *amqp.Connection
	ch   *amqp.Channel
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:       h,
			Type:          m.Type,
			ContentType:   m.ContentType,
			ReplyTo:       m.ReplyTo,
			CorrelationId: m.CorrelationID,
			Body:          m.Body,
		},
	)
}

// Dial connects to RabbitMQ, retrying with exponential backoff and jitter
// until it succeeds or ctx ends.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrTransportNotConfigured)
	}

	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	backoff := time.Second
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	for {
		s, err := dialOnce(cfg)
		if err == nil {
			return s, nil
		}

		jitter := time.Duration(rng.Int63n(int64(backoff/2) + 1))

		sleep := min(backoff+jitter/2, maxBackoff)

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: rabbitmq dial: %w", berr.ErrTransportFailed, err)
		case <-t.C:
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func dialOnce(cfg Config) (*Session, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-mediator"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Session{cfg: cfg, conn: conn, ch: ch}, nil
}

// Adapter returns an Adapter publishing on the session channel.
func (s *Session) Adapter() *Adapter {
	a := New(amqpChannelPublisher{ch: s.ch})
	a.Queue = s.cfg.Queue

	if s.cfg.Concurrency > 0 {
		a.Concurrency = s.cfg.Concurrency
	}

	return a
}

// Requests declares the request queue and consumes it with manual acks.
// The returned channel closes when ctx ends.
func (s *Session) Requests(ctx context.Context) (<-chan Delivery, error) {
	if _, err := s.ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq declare %s: %w", s.cfg.Queue, err)
	}

	if s.cfg.Prefetch > 0 {
		if err := s.ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("rabbitmq qos: %w", err)
		}
	}

	in, err := s.ch.Consume(s.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume %s: %w", s.cfg.Queue, err)
	}

	return convert(ctx, in), nil
}

// Replies consumes the direct reply-to pseudo queue. Call it before the
// first request is published.
func (s *Session) Replies(ctx context.Context) (<-chan Delivery, error) {
	in, err := s.ch.Consume(DirectReplyTo, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume replies: %w", err)
	}

	return convert(ctx, in), nil
}

// convert forwards deliveries until in closes or ctx ends.
func convert(ctx context.Context, in <-chan amqp.Delivery) <-chan Delivery {
	out := make(chan Delivery)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-in:
				if !ok {
					return
				}

				select {
				case out <- fromAMQP(d):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func fromAMQP(d amqp.Delivery) Delivery {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		headers[k] = fmt.Sprint(v)
	}

	out := Delivery{
		Type:          d.Type,
		ContentType:   d.ContentType,
		ReplyTo:       d.ReplyTo,
		CorrelationID: d.CorrelationId,
		Body:          d.Body,
		Headers:       headers,
	}

	if d.Acknowledger != nil {
		out.Ack = func() error { return d.Ack(false) }
		out.Nack = func(requeue bool) error { return d.Nack(false, requeue) }
	}

	return out
}

// Close closes the channel and the connection.
func (s *Session) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}

	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}

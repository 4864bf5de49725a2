package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nuid"
	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/transport"
	"golang.org/x/sync/errgroup"
)

const (
	// DirectReplyTo is RabbitMQ's pseudo queue for RPC replies.
	DirectReplyTo = "amq.rabbitmq.reply-to"
	// DefaultQueue is the request queue used when none is configured.
	DefaultQueue = "mediator.requests"

	defaultConcurrency = 8
)

type PubMsg struct {
	Exchange      string
	RoutingKey    string
	Type          string
	ContentType   string
	ReplyTo       string
	CorrelationID string
	Body          []byte
	Headers       map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Delivery is a consumed message. Ack and Nack may be nil for auto-acked deliveries.
type Delivery struct {
	Type          string
	ContentType   string
	ReplyTo       string
	CorrelationID string
	Body          []byte
	Headers       map[string]string
	Ack           func() error
	Nack          func(requeue bool) error
}

type Adapter struct {
	Publisher   Publisher
	Propagator  cmed.HeaderPropagator // optional, for context propagation into headers
	Queue       string
	ReplyQueue  string
	Concurrency int

	mu      sync.Mutex
	pending map[string]chan Delivery
}

var _ transport.Caller = (*Adapter)(nil)

func New(p Publisher) *Adapter {
	return &Adapter{
		Publisher:   p,
		Queue:       DefaultQueue,
		ReplyQueue:  DirectReplyTo,
		Concurrency: defaultConcurrency,
		pending:     make(map[string]chan Delivery),
	}
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, hp cmed.HeaderPropagator) *Adapter {
	a := New(p)
	a.Propagator = hp

	return a
}

// Call publishes an encoded request and waits for the correlated reply
// delivered through Deliver or Listen.
func (a *Adapter) Call(ctx context.Context, name string, payload []byte, headers map[string]string) ([]byte, error) {
	if err := a.ready(ctx, "request"); err != nil {
		return nil, err
	}

	corr := nuid.Next()
	ch := make(chan Delivery, 1)

	a.mu.Lock()
	a.pending[corr] = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.pending, corr)
		a.mu.Unlock()
	}()

	hdrs := make(map[string]string, len(headers)+4)
	for k, v := range headers {
		hdrs[k] = v
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	msg := PubMsg{
		RoutingKey:    a.Queue,
		Type:          name,
		ContentType:   hdrs[transport.HeaderContentType],
		ReplyTo:       a.ReplyQueue,
		CorrelationID: corr,
		Body:          payload,
		Headers:       hdrs,
	}

	if err := a.publish(ctx, msg, "request"); err != nil {
		return nil, err
	}

	select {
	case d := <-ch:
		return d.Body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver hands a reply to the pending call with the same correlation id.
// It reports false for unknown or late replies.
func (a *Adapter) Deliver(d Delivery) bool {
	a.mu.Lock()
	ch, ok := a.pending[d.CorrelationID]
	a.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case ch <- d:
		return true
	default:
		return false
	}
}

// Listen feeds replies to pending calls until ctx ends or replies is closed.
func (a *Adapter) Listen(ctx context.Context, replies <-chan Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-replies:
			if !ok {
				return nil
			}

			a.Deliver(d)
		}
	}
}

// Serve answers request deliveries through h until ctx ends or deliveries is
// closed. Up to Concurrency requests are handled at once; failed replies
// are logged through h.
func (a *Adapter) Serve(ctx context.Context, h *transport.Handler, deliveries <-chan Delivery) error {
	if err := a.ready(ctx, "serve"); err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(max(a.Concurrency, 1))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d, ok := <-deliveries:
			if !ok {
				break loop
			}

			g.Go(func() error {
				if err := a.answer(ctx, h, d); err != nil {
					h.Logger().Error("rabbitmq reply failed",
						slog.String("request", d.Type),
						slog.String("correlation_id", d.CorrelationID),
						slog.String("error", err.Error()),
					)
				}

				return nil
			})
		}
	}

	_ = g.Wait() //nolint:errcheck // workers log their own failures

	return nil
}

func (a *Adapter) answer(ctx context.Context, h *transport.Handler, d Delivery) error {
	name := d.Type
	if name == "" {
		name = d.Headers[transport.HeaderRequest]
	}

	contentType := d.ContentType
	if contentType == "" {
		contentType = d.Headers[transport.HeaderContentType]
	}

	reply := h.Serve(ctx, name, contentType, d.Body)

	if d.ReplyTo != "" {
		msg := PubMsg{
			RoutingKey:    d.ReplyTo,
			ContentType:   h.Codec(contentType).ContentType(),
			CorrelationID: d.CorrelationID,
			Body:          reply,
		}

		if err := a.publish(ctx, msg, "reply"); err != nil {
			if d.Nack != nil {
				_ = d.Nack(false) //nolint:errcheck // the publish error is reported
			}

			return err
		}
	}

	if d.Ack != nil {
		if err := d.Ack(); err != nil {
			return fmt.Errorf("rabbitmq ack %s: %w", name, err)
		}
	}

	return nil
}

func (a *Adapter) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq %s: %w", label, berr.ErrTransportNotConfigured)
	}

	a.mu.Lock()
	if a.pending == nil {
		a.pending = make(map[string]chan Delivery)
	}
	a.mu.Unlock()

	return nil
}

func (a *Adapter) publish(ctx context.Context, m PubMsg, label string) error {
	if err := a.Publisher.Publish(ctx, m); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq %s publish: %w", label, errors.Join(berr.ErrTransportFailed, err))
	}

	return nil
}

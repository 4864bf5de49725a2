package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	berr "github.com/next-trace/scg-mediator/contract/errors"
)

// Concrete NATS connection-backed Conn and constructor.

type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
	Prefix        string
	Queue         string
	Concurrency   int
}

type natsConn struct{ nc *nats.Conn }

func (c natsConn) Request(ctx context.Context, subject string, data []byte, headers map[string]string) ([]byte, error) {
	msg := &nats.Msg{Subject: subject, Data: data, Header: toHeader(headers)}

	reply, err := c.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, err
	}

	return reply.Data, nil
}

func (c natsConn) Reply(subject, queue string, fn ReplyFunc) (func() error, error) {
	cb := func(m *nats.Msg) { fn(fromHeader(m.Header), m.Data, m.Respond) }

	var (
		sub *nats.Subscription
		err error
	)

	if queue != "" {
		sub, err = c.nc.QueueSubscribe(subject, queue, cb)
	} else {
		sub, err = c.nc.Subscribe(subject, cb)
	}

	if err != nil {
		return nil, err
	}

	return sub.Unsubscribe, nil
}

func toHeader(headers map[string]string) nats.Header {
	if len(headers) == 0 {
		return nil
	}

	h := nats.Header{}
	for k, v := range headers {
		h.Add(k, v)
	}

	return h
}

func fromHeader(h nats.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}

	return out
}

// NewWithNATS creates a real NATS connection and returns an Adapter and a cleanup.
func NewWithNATS(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: nats url required", berr.ErrTransportNotConfigured)
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nats connect: %w", berr.ErrTransportFailed, err)
	}

	ad := New(natsConn{nc: nc})
	ad.Queue = cfg.Queue

	if cfg.Concurrency > 0 {
		ad.Concurrency = cfg.Concurrency
	}

	if cfg.Prefix != "" {
		ad.Prefix = cfg.Prefix
	}

	cleanup := func() {
		if nc != nil && !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
			nc.Close()
		}
	}

	return ad, cleanup, nil
}

package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Concrete franz-go based constructor and producer/poller wrapper.

// Role selects which topic a franz-go client consumes.
type Role int

const (
	// RoleServer consumes the request topic in a consumer group.
	RoleServer Role = iota
	// RoleClient consumes the reply topic from its end.
	RoleClient
)

type Config struct {
	Brokers        []string
	TLS            *tls.Config
	ClientID       string
	Group          string
	RequestTopic   string
	ReplyTopic     string
	LeaderOnlyAcks bool
	Concurrency    int
}

type kgoClient struct{ cl *kgo.Client }

func (c kgoClient) Produce(ctx context.Context, r Record) error {
	rec := &kgo.Record{Topic: r.Topic, Key: r.Key, Value: r.Value}
	if len(r.Headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(r.Headers))
		for k, v := range r.Headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return c.cl.ProduceSync(ctx, rec).FirstErr()
}

func (c kgoClient) Poll(ctx context.Context) ([]Record, error) {
	fetches := c.cl.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, kgo.ErrClientClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var errs []error

	fetches.EachError(func(topic string, partition int32, err error) {
		errs = append(errs, fmt.Errorf("fetch %s[%d]: %w", topic, partition, err))
	})

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	out := make([]Record, 0, fetches.NumRecords())
	fetches.EachRecord(func(r *kgo.Record) {
		headers := make(map[string]string, len(r.Headers))
		for _, h := range r.Headers {
			headers[h.Key] = string(h.Value)
		}

		out = append(out, Record{Topic: r.Topic, Key: r.Key, Value: r.Value, Headers: headers})
	})

	return out, nil
}

// NewWithKgo builds a franz-go client based Adapter and the Poller feeding
// Serve (RoleServer) or Listen (RoleClient). The returned cleanup closes the client.
func NewWithKgo(cfg Config, role Role) (*Adapter, Poller, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrTransportNotConfigured)
	}

	if cfg.RequestTopic == "" {
		cfg.RequestTopic = DefaultRequestTopic
	}

	if cfg.ReplyTopic == "" {
		cfg.ReplyTopic = DefaultReplyTopic
	}

	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	if cfg.LeaderOnlyAcks {
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}

	switch role {
	case RoleServer:
		group := cfg.Group
		if group == "" {
			group = "scg-mediator"
		}

		opts = append(opts, kgo.ConsumerGroup(group), kgo.ConsumeTopics(cfg.RequestTopic))
	case RoleClient:
		opts = append(opts,
			kgo.ConsumeTopics(cfg.ReplyTopic),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		)
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrTransportFailed, err)
	}

	kc := kgoClient{cl: cl}

	ad := New(kc)
	ad.RequestTopic = cfg.RequestTopic
	ad.ReplyTopic = cfg.ReplyTopic

	if cfg.Concurrency > 0 {
		ad.Concurrency = cfg.Concurrency
	}

	cleanup := func() { cl.Close() }

	return ad, kc, cleanup, nil
}

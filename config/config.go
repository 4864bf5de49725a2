// Package config loads the mediatord configuration from an HCL file.
//
// Expressions may read the process environment through the env object,
// for example url = env.NATS_URL. Omitted transport blocks disable the
// transport.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/next-trace/scg-mediator/adapters/kafka"
	natsad "github.com/next-trace/scg-mediator/adapters/nats"
	"github.com/next-trace/scg-mediator/adapters/rabbitmq"
	"github.com/next-trace/scg-mediator/transport"
	"github.com/zclconf/go-cty/cty"
)

const DefaultHTTPAddr = ":8080"

// Config is the decoded configuration file.
type Config struct {
	LogLevel  string     `hcl:"log_level,optional"`
	Codec     string     `hcl:"codec,optional"`
	RateLimit *RateLimit `hcl:"rate_limit,block"`
	HTTP      *HTTP      `hcl:"http,block"`
	NATS      *NATS      `hcl:"nats,block"`
	RabbitMQ  *RabbitMQ  `hcl:"rabbitmq,block"`
	Kafka     *Kafka     `hcl:"kafka,block"`
}

type RateLimit struct {
	PerSecond float64 `hcl:"per_second"`
	Burst     int     `hcl:"burst,optional"`
}

type HTTP struct {
	Addr    string  `hcl:"addr,optional"`
	MaxBody int64   `hcl:"max_body,optional"`
	Routes  []Route `hcl:"route,block"`
}

// Route maps a mux pattern such as "POST /person" onto a request name.
type Route struct {
	Pattern string `hcl:"pattern,label"`
	Request string `hcl:"request"`
}

type NATS struct {
	URL           string `hcl:"url"`
	Name          string `hcl:"name,optional"`
	Prefix        string `hcl:"prefix,optional"`
	Queue         string `hcl:"queue,optional"`
	ConnTimeout   string `hcl:"conn_timeout,optional"`
	MaxReconnects int    `hcl:"max_reconnects,optional"`
	Concurrency   int    `hcl:"concurrency,optional"`
}

type RabbitMQ struct {
	URL         string `hcl:"url"`
	Queue       string `hcl:"queue,optional"`
	Prefetch    int    `hcl:"prefetch,optional"`
	Concurrency int    `hcl:"concurrency,optional"`
	ConnTimeout string `hcl:"conn_timeout,optional"`
	MaxBackoff  string `hcl:"max_backoff,optional"`
}

type Kafka struct {
	Brokers        []string `hcl:"brokers"`
	ClientID       string   `hcl:"client_id,optional"`
	Group          string   `hcl:"group,optional"`
	RequestTopic   string   `hcl:"request_topic,optional"`
	ReplyTopic     string   `hcl:"reply_topic,optional"`
	LeaderOnlyAcks bool     `hcl:"leader_only_acks,optional"`
	Concurrency    int      `hcl:"concurrency,optional"`
}

// Load parses and decodes the HCL file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return Parse(src, path)
}

// Parse decodes HCL source; filename is only used in diagnostics.
func Parse(src []byte, filename string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config %s: %w", filename, diags)
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config %s: %w", filename, diags)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	return &cfg, nil
}

func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && hclsyntax.ValidIdentifier(k) {
			env[k] = cty.StringVal(v)
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
}

func (c *Config) validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	if c.Codec != "" {
		if _, ok := transport.CodecFor(c.Codec); !ok {
			return fmt.Errorf("codec %q: unsupported content type", c.Codec)
		}
	}

	if c.NATS != nil {
		if _, err := duration("nats.conn_timeout", c.NATS.ConnTimeout); err != nil {
			return err
		}
	}

	if c.RabbitMQ != nil {
		if _, err := duration("rabbitmq.conn_timeout", c.RabbitMQ.ConnTimeout); err != nil {
			return err
		}

		if _, err := duration("rabbitmq.max_backoff", c.RabbitMQ.MaxBackoff); err != nil {
			return err
		}
	}

	if c.Kafka != nil && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers must not be empty")
	}

	return nil
}

// Level returns the configured log level; empty means info.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}

	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}

	return lvl, nil
}

// HTTPAddr returns the listen address, or "" when HTTP is disabled.
func (c *Config) HTTPAddr() string {
	if c.HTTP == nil {
		return ""
	}

	if c.HTTP.Addr == "" {
		return DefaultHTTPAddr
	}

	return c.HTTP.Addr
}

func (n *NATS) Adapter() natsad.Config {
	d, _ := duration("", n.ConnTimeout) //nolint:errcheck // checked by validate

	return natsad.Config{
		URL:           n.URL,
		Name:          n.Name,
		ConnTimeout:   d,
		MaxReconnects: n.MaxReconnects,
		Concurrency:   n.Concurrency,
		Prefix:        n.Prefix,
		Queue:         n.Queue,
	}
}

func (r *RabbitMQ) Adapter() rabbitmq.Config {
	timeout, _ := duration("", r.ConnTimeout) //nolint:errcheck // checked by validate
	backoff, _ := duration("", r.MaxBackoff)  //nolint:errcheck // checked by validate

	return rabbitmq.Config{
		URL:         r.URL,
		ConnTimeout: timeout,
		Queue:       r.Queue,
		Prefetch:    r.Prefetch,
		Concurrency: r.Concurrency,
		MaxBackoff:  backoff,
	}
}

func (k *Kafka) Adapter() kafka.Config {
	return kafka.Config{
		Brokers:        k.Brokers,
		ClientID:       k.ClientID,
		Group:          k.Group,
		RequestTopic:   k.RequestTopic,
		ReplyTopic:     k.ReplyTopic,
		LeaderOnlyAcks: k.LeaderOnlyAcks,
		Concurrency:    k.Concurrency,
	}
}

func duration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}

	return d, nil
}

// Command mediatord serves the sample modules over the transports enabled in
// its HCL configuration file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/next-trace/scg-mediator/adapters/kafka"
	natsad "github.com/next-trace/scg-mediator/adapters/nats"
	"github.com/next-trace/scg-mediator/adapters/rabbitmq"
	"github.com/next-trace/scg-mediator/config"
	"github.com/next-trace/scg-mediator/httpapi"
	"github.com/next-trace/scg-mediator/locator"
	"github.com/next-trace/scg-mediator/mediator"
	"github.com/next-trace/scg-mediator/samples/greet"
	"github.com/next-trace/scg-mediator/samples/people"
	"github.com/next-trace/scg-mediator/transport"
	"golang.org/x/sync/errgroup"
)

func main() {
	path := flag.String("config", "mediatord.hcl", "path to the HCL configuration file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	lvl, _ := cfg.Level() //nolint:errcheck // validated by Load
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("mediatord stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := mediator.NewRegistry(locator.New(), mediator.WithLogger(logger))
	if err := reg.Register(greet.Module(), people.Module()); err != nil {
		return err
	}

	h := transport.NewRegistryHandler(reg, handlerOptions(cfg, logger)...)

	names := make([]string, 0, len(reg.Endpoints()))
	for _, ep := range reg.Endpoints() {
		names = append(names, ep.Name)
	}

	g, ctx := errgroup.WithContext(ctx)
	started := 0

	if addr := cfg.HTTPAddr(); addr != "" {
		opts := []httpapi.Option{httpapi.WithLogger(logger), httpapi.WithMaxBody(cfg.HTTP.MaxBody)}
		for _, r := range cfg.HTTP.Routes {
			opts = append(opts, httpapi.WithRoute(r.Pattern, r.Request))
		}

		srv := httpapi.New(h, opts...)

		g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
		started++
	}

	if cfg.NATS != nil {
		ad, cleanup, err := natsad.NewWithNATS(cfg.NATS.Adapter())
		if err != nil {
			return err
		}
		defer cleanup()

		logger.Info("nats serving", slog.String("url", cfg.NATS.URL), slog.Any("requests", names))
		g.Go(func() error { return ad.Serve(ctx, h, names...) })
		started++
	}

	if cfg.RabbitMQ != nil {
		sess, err := rabbitmq.Dial(ctx, cfg.RabbitMQ.Adapter())
		if err != nil {
			return err
		}
		defer sess.Close() //nolint:errcheck // shutdown

		deliveries, err := sess.Requests(ctx)
		if err != nil {
			return err
		}

		logger.Info("rabbitmq serving")
		g.Go(func() error { return sess.Adapter().Serve(ctx, h, deliveries) })
		started++
	}

	if cfg.Kafka != nil {
		ad, poller, cleanup, err := kafka.NewWithKgo(cfg.Kafka.Adapter(), kafka.RoleServer)
		if err != nil {
			return err
		}
		defer cleanup()

		logger.Info("kafka serving", slog.String("topic", ad.RequestTopic))
		g.Go(func() error { return ad.Serve(ctx, h, poller) })
		started++
	}

	if started == 0 {
		return errors.New("no transport configured")
	}

	return g.Wait()
}

func handlerOptions(cfg *config.Config, logger *slog.Logger) []transport.HandlerOption {
	opts := []transport.HandlerOption{transport.WithHandlerLogger(logger)}

	if c, ok := transport.CodecFor(cfg.Codec); ok {
		opts = append(opts, transport.WithCodec(c))
	}

	if cfg.RateLimit != nil {
		opts = append(opts, transport.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst))
	}

	return opts
}

package memory

import (
	"log/slog"

	"github.com/next-trace/scg-mediator/adapters/inmemory"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/locator"
	"github.com/next-trace/scg-mediator/mediator"
	"github.com/next-trace/scg-mediator/transport"
)

// New constructs a mediator backed by the in-memory locator with the given
// modules registered. It returns the dispatcher along with a loopback adapter
// serving the same registry through the wire envelope.
func New(logger *slog.Logger, modules ...mediator.Module) (cmed.Dispatcher, *inmemory.Adapter, error) { //nolint:ireturn
	reg := mediator.NewRegistry(locator.New(), mediator.WithLogger(logger))
	if err := reg.Register(modules...); err != nil {
		return nil, nil, err
	}

	ad := inmemory.New(transport.NewRegistryHandler(reg, transport.WithHandlerLogger(logger)))

	return reg.Mediator(), ad, nil
}

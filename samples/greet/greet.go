// Package greet is a minimal sample module answering Greet requests.
package greet

import (
	"context"
	"fmt"

	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/mediator"
)

// Greet asks for a greeting addressed to Name.
type Greet struct {
	cmed.Returns[string]
	Name string `json:"name" msgpack:"name"`
}

func (Greet) RequestName() string { return "greet" }

// Handler answers Greet requests.
type Handler struct{}

func (Handler) Handle(ctx context.Context, q Greet) (string, error) {
	return fmt.Sprintf("Hello, %s! Welcome to the simple Mediator example.", q.Name), nil
}

var _ cmed.RequestHandler[Greet, string] = Handler{}

// Module returns the greet bindings.
func Module() mediator.Module { //nolint:ireturn
	return mediator.NewModule("greet",
		mediator.Handle[Greet, string](func() Handler { return Handler{} }),
	)
}

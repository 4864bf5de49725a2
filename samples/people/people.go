// Package people is a sample module creating Person values.
package people

import (
	"context"
	"fmt"

	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/mediator"
)

// Person is created by CreatePerson.
type Person struct {
	Age  int
	Name string
}

func (p Person) String() string {
	return fmt.Sprintf("Name: %s with age %d created", p.Name, p.Age)
}

// CreatePerson creates a Person and answers with its description.
type CreatePerson struct {
	cmed.Returns[string]
	Age  int    `json:"age"  msgpack:"age"`
	Name string `json:"name" msgpack:"name"`
}

func (CreatePerson) RequestName() string { return "people.create" }

// CreatePersonHandler handles CreatePerson.
type CreatePersonHandler struct{}

func (CreatePersonHandler) Handle(ctx context.Context, c CreatePerson) (string, error) {
	return Person{Age: c.Age, Name: c.Name}.String(), nil
}

// Module returns the people bindings.
func Module() mediator.Module { //nolint:ireturn
	return mediator.NewModule("people",
		mediator.Handle[CreatePerson, string](func() CreatePersonHandler { return CreatePersonHandler{} }),
	)
}

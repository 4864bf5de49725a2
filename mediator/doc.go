/*
Package mediator dispatches typed requests to the single handler bound to their
concrete type.

Handlers are enumerated explicitly in modules and bound once at startup by a
Registry, which stores a type-erased invoker for every binding in a
cmed.Locator. At dispatch time the Mediator derives the signature from the
request's runtime type and the expected response type, resolves the invoker,
calls it and checks the result type before handing it back:

	reg := mediator.NewRegistry(locator.New())
	_ = reg.Register(mediator.NewModule("greet",
		mediator.Handle[Greet, string](NewGreetHandler),
	))

	msg, err := mediator.Send[string](ctx, reg.Mediator(), Greet{Name: "Ada"})
*/
package mediator

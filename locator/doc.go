/*
Package locator provides an in-memory resolution backend for the mediator.
Handlers are bound to capability signatures with factory functions, so the
caller keeps full control over instance lifetime without a reflection-based
container.
*/
package locator

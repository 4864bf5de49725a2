/*
Package mediator holds the contracts shared by the dispatcher, the resolution
backend and the remote transports: request and handler shapes, capability
signatures and the Locator interface.
*/
package mediator

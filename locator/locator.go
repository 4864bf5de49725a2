package locator

import (
	"sync"

	cmed "github.com/next-trace/scg-mediator/contract/mediator"
)

type lifetime int

const (
	transient lifetime = iota
	singleton
)

type entry struct {
	factory  cmed.Factory
	lifetime lifetime

	once     sync.Once
	instance any
}

func (e *entry) get() any {
	if e.lifetime == transient {
		return e.factory()
	}

	e.once.Do(func() { e.instance = e.factory() })

	return e.instance
}

// Container is a thread-safe in-memory implementation of cmed.Locator.
// Registering a signature again replaces the earlier entry, so the last
// registration wins.
type Container struct {
	mu      sync.RWMutex
	entries map[cmed.Signature]*entry
}

// Ensure Container implements the locator contract.
var _ cmed.Locator = (*Container)(nil)

// New creates an empty container.
func New() *Container {
	return &Container{entries: make(map[cmed.Signature]*entry)}
}

// RegisterTransient binds sig to factory; every Resolve calls factory again.
func (c *Container) RegisterTransient(sig cmed.Signature, factory cmed.Factory) {
	c.put(sig, &entry{factory: factory, lifetime: transient})
}

// RegisterSingleton binds sig to factory; the first Resolve builds the
// instance and later calls return it.
func (c *Container) RegisterSingleton(sig cmed.Signature, factory cmed.Factory) {
	c.put(sig, &entry{factory: factory, lifetime: singleton})
}

// RegisterInstance binds sig to an already constructed value.
func (c *Container) RegisterInstance(sig cmed.Signature, v any) {
	c.put(sig, &entry{factory: func() any { return v }, lifetime: transient})
}

func (c *Container) put(sig cmed.Signature, e *entry) {
	c.mu.Lock()
	c.entries[sig] = e
	c.mu.Unlock()
}

// Resolve returns an instance for sig, or false when nothing is bound.
func (c *Container) Resolve(sig cmed.Signature) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[sig]
	c.mu.RUnlock()

	if !ok || e.factory == nil {
		return nil, false
	}

	v := e.get()
	if v == nil {
		return nil, false
	}

	return v, true
}

// Has reports whether sig is bound without constructing anything.
func (c *Container) Has(sig cmed.Signature) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[sig]

	return ok
}

// Len returns the number of bound signatures.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

package servo

import (
	"context"
	"sync"
)

// Controller dispatches move requests by servo name. Moves never overlap:
// each one, settle delay included, finishes before the next starts.
type Controller struct {
	registry *Registry
	driver   Driver

	mu     sync.Mutex
	closed bool
}

// NewController binds a registry to a driver.
func NewController(registry *Registry, driver Driver) *Controller {
	return &Controller{registry: registry, driver: driver}
}

// Move looks up name and drives its pin to position. A move still waiting
// for its turn when ctx is done is dropped and returns ctx.Err().
func (c *Controller) Move(ctx context.Context, name string, position float64) error {
	pin, err := c.registry.Lookup(name)
	if err != nil {
		return err
	}
	if !ValidPosition(position) {
		return &ValidationError{Msg: "position value must be a number in the range [0, 1]"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDriverClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.driver.Move(pin, position)
}

// Shutdown waits for the running move, then shuts the driver down.
// Moves requested afterwards fail with ErrDriverClosed.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDriverClosed
	}
	c.closed = true
	return c.driver.Shutdown()
}

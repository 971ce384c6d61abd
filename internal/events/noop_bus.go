package events

import "github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"

// NoOpEventBus discards every event. Install contexts use it until a real
// bus is configured.
type NoOpEventBus struct{}

// NewNoOpEventBus returns a bus that does nothing.
func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

// Emit does nothing.
func (n *NoOpEventBus) Emit(event events.Event) {}

var _ events.Bus = (*NoOpEventBus)(nil)

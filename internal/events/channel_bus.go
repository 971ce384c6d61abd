package events

import (
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	txlog "github.com/gxo-labs/txinstall/pkg/txinstall/v1/log"
)

// ChannelEventBus implements events.Bus on top of a buffered channel. Emit
// never blocks the lifecycle: when the buffer is full the event is dropped
// and a warning is logged.
type ChannelEventBus struct {
	channel chan events.Event
	log     txlog.Logger
}

// NewChannelEventBus creates a bus with the given buffer size (100 when not
// positive). It panics on a nil logger.
func NewChannelEventBus(bufferSize int, log txlog.Logger) *ChannelEventBus {
	const defaultBufferSize = 100
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		panic("ChannelEventBus requires a non-nil logger")
	}

	bus := &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
	bus.log.Debugf("ChannelEventBus initialized with buffer size %d", bufferSize)
	return bus
}

// Emit queues event without blocking.
func (c *ChannelEventBus) Emit(event events.Event) {
	select {
	case c.channel <- event:
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s' for '%s'", event.Type, event.Installer)
	}
}

// GetChannel returns the channel consumers read from.
func (c *ChannelEventBus) GetChannel() <-chan events.Event {
	return c.channel
}

// Close closes the channel. No Emit may follow.
func (c *ChannelEventBus) Close() {
	c.log.Debugf("Closing ChannelEventBus channel.")
	close(c.channel)
}

var _ events.Bus = (*ChannelEventBus)(nil)

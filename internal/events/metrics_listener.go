package events

import (
	"context"

	"github.com/gxo-labs/txinstall/internal/metrics"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	txlog "github.com/gxo-labs/txinstall/pkg/txinstall/v1/log"
)

// MetricsEventListener consumes a ChannelEventBus and updates the installer
// Prometheus collectors.
type MetricsEventListener struct {
	bus        *ChannelEventBus
	log        txlog.Logger
	collectors *metrics.Collectors
}

// NewMetricsEventListener creates a listener. All arguments are required.
func NewMetricsEventListener(bus *ChannelEventBus, collectors *metrics.Collectors, log txlog.Logger) *MetricsEventListener {
	if bus == nil || collectors == nil || log == nil {
		panic("MetricsEventListener requires a non-nil ChannelEventBus, Collectors and Logger")
	}
	return &MetricsEventListener{
		bus:        bus,
		log:        log.With("component", "MetricsEventListener"),
		collectors: collectors,
	}
}

// Start consumes events until the bus is closed or ctx is done. Run it in its
// own goroutine.
func (l *MetricsEventListener) Start(ctx context.Context) {
	l.log.Debugf("Starting metrics event listener...")
	for {
		select {
		case event, ok := <-l.bus.GetChannel():
			if !ok {
				l.log.Debugf("Event bus channel closed, stopping listener.")
				return
			}
			l.handleEvent(event)
		case <-ctx.Done():
			l.log.Debugf("Context cancelled, stopping metrics event listener.")
			return
		}
	}
}

func (l *MetricsEventListener) handleEvent(event events.Event) {
	switch event.Type {
	case events.PhaseCompleted, events.PhaseFailed:
		status := metrics.StatusSuccess
		if event.Type == events.PhaseFailed {
			status = metrics.StatusFailure
		}
		var seconds float64
		if v, ok := event.Payload["duration_seconds"].(float64); ok {
			seconds = v
		}
		l.collectors.ObservePhase(event.Phase, status, seconds)
	case events.StateSaved:
		l.collectors.StateFiles.WithLabelValues(metrics.OperationSave).Inc()
	case events.StateLoaded:
		l.collectors.StateFiles.WithLabelValues(metrics.OperationLoad).Inc()
	case events.StateRemoved:
		l.collectors.StateFiles.WithLabelValues(metrics.OperationRemove).Inc()
	case events.SecretAccessed:
		l.collectors.SecretAccess.Inc()
	}
}

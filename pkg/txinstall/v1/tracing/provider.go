package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TracerProvider supplies the tracer used to create one span per installer
// per lifecycle phase.
type TracerProvider interface {
	// GetTracer returns a Tracer with the given name and options.
	GetTracer(name string, opts ...trace.TracerOption) trace.Tracer

	// Shutdown flushes buffered spans. The context should carry a deadline.
	Shutdown(ctx context.Context) error
}

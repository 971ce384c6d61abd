package installer

import (
	"context"
	"time"

	"github.com/gxo-labs/txinstall/internal/tracing"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// phaseObservation covers one lifecycle call of one installer with a span
// and a pair of started/finished events.
type phaseObservation struct {
	ic    *InstallContext
	span  trace.Span
	name  string
	phase Phase
	start time.Time
}

func beginPhase(ctx context.Context, ic *InstallContext, name string, phase Phase, attrs ...attribute.KeyValue) (context.Context, *phaseObservation) {
	attrs = append([]attribute.KeyValue{
		attribute.String("installer.name", name),
		attribute.String("installer.phase", string(phase)),
	}, attrs...)
	ctx, span := ic.Tracer().Start(ctx, "txinstall."+string(phase), trace.WithAttributes(attrs...))

	o := &phaseObservation{ic: ic, span: span, name: name, phase: phase, start: time.Now()}
	ic.Events().Emit(events.Event{
		Type:      events.PhaseStarted,
		Timestamp: o.start,
		Installer: name,
		Phase:     string(phase),
	})
	return ctx, o
}

func (o *phaseObservation) end(err error) {
	now := time.Now()
	ev := events.Event{
		Type:      events.PhaseCompleted,
		Timestamp: now,
		Installer: o.name,
		Phase:     string(o.phase),
		Payload:   map[string]interface{}{"duration_seconds": now.Sub(o.start).Seconds()},
	}
	if err != nil {
		ev.Type = events.PhaseFailed
		ev.Payload["error"] = tracing.RedactSecretsInString(err.Error(), tracing.DefaultRedactedKeywords)
		tracing.RecordErrorWithContext(o.span, err, tracing.DefaultRedactedKeywords)
		o.ic.Logger().Debugf("%s of '%s' failed after %s: %v", o.phase, o.name, now.Sub(o.start), err)
	}
	o.ic.Events().Emit(ev)
	o.span.End()
}

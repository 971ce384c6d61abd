package tracing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gxo-labs/txinstall/internal/logger"
	"github.com/gxo-labs/txinstall/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestConfigFromEnv(t *testing.T) {
	testCases := []struct {
		name   string
		env    map[string]string
		assert func(t *testing.T, cfg tracing.ExporterConfig)
	}{
		{
			name: "No endpoint disables tracing",
			env:  map[string]string{},
			assert: func(t *testing.T, cfg tracing.ExporterConfig) {
				assert.True(t, cfg.Disabled)
				assert.Equal(t, "txinstall", cfg.ServiceName)
				assert.Equal(t, "grpc", cfg.Protocol)
			},
		},
		{
			name: "Explicitly disabled",
			env:  map[string]string{"OTEL_SDK_DISABLED": "TRUE", "OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317"},
			assert: func(t *testing.T, cfg tracing.ExporterConfig) {
				assert.True(t, cfg.Disabled)
			},
		},
		{
			name: "HTTP exporter settings",
			env: map[string]string{
				"OTEL_SERVICE_NAME":                  "installer",
				"OTEL_EXPORTER_OTLP_PROTOCOL":        "http/protobuf",
				"OTEL_EXPORTER_OTLP_ENDPOINT":        "collector:4318",
				"OTEL_EXPORTER_OTLP_HEADERS":         "api-key=abc, tenant = blue ,broken",
				"OTEL_EXPORTER_OTLP_TIMEOUT":         "2500",
				"OTEL_EXPORTER_OTLP_COMPRESSION":     "gzip",
				"OTEL_EXPORTER_OTLP_TRACES_INSECURE": "true",
			},
			assert: func(t *testing.T, cfg tracing.ExporterConfig) {
				assert.False(t, cfg.Disabled)
				assert.Equal(t, "installer", cfg.ServiceName)
				assert.Equal(t, "http/protobuf", cfg.Protocol)
				assert.Equal(t, map[string]string{"api-key": "abc", "tenant": "blue"}, cfg.Headers)
				assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
				assert.True(t, cfg.Gzip)
				assert.True(t, cfg.Insecure)
				assert.Equal(t, "/v1/traces", cfg.TracesPath)
			},
		},
		{
			name: "Duration timeout and invalid fallback",
			env:  map[string]string{"OTEL_EXPORTER_OTLP_TIMEOUT": "nonsense"},
			assert: func(t *testing.T, cfg tracing.ExporterConfig) {
				assert.Equal(t, 10*time.Second, cfg.Timeout)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.assert(t, tracing.ConfigFromEnv(envOf(tc.env)))
		})
	}
}

func TestNewProvider_DisabledIsNoOp(t *testing.T) {
	p := tracing.NewProvider(context.Background(), tracing.ExporterConfig{Disabled: true}, logger.NewDiscardLogger())
	assert.True(t, p.IsEffectivelyNoOp())
	assert.NotNil(t, p.GetTracer("test"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_UnsupportedProtocolFallsBack(t *testing.T) {
	cfg := tracing.ExporterConfig{Protocol: "carrier-pigeon", Endpoint: "x", ServiceName: "t"}
	p := tracing.NewProvider(context.Background(), cfg, logger.NewDiscardLogger())
	assert.True(t, p.IsEffectivelyNoOp())
}

func TestRedactStringMap(t *testing.T) {
	keywords := map[string]struct{}{"password": {}}
	in := map[string]string{"Password": "hunter2", "user": "bob"}

	out := tracing.RedactStringMap(in, keywords, "********")
	assert.Equal(t, "********", out["Password"])
	assert.Equal(t, "bob", out["user"])
	assert.Equal(t, "hunter2", in["Password"], "input must not be modified")

	assert.Equal(t, tracing.RedactedValue, tracing.RedactStringMap(in, keywords, "")["Password"])
}

func TestRedactAttributes(t *testing.T) {
	attrs := []attribute.KeyValue{
		attribute.String("param.token", "abc"),
		attribute.String("param.user", "bob"),
	}
	out := tracing.RedactAttributes(attrs, tracing.DefaultRedactedKeywords)
	assert.Equal(t, tracing.RedactedValue, out[0].Value.AsString())
	assert.Equal(t, "bob", out[1].Value.AsString())
}

func TestRedactSecretsInString(t *testing.T) {
	in := "connecting\npassword=hunter2 for user\nplain line"
	out := tracing.RedactSecretsInString(in, tracing.DefaultRedactedKeywords)
	assert.Equal(t, "connecting\npassword="+tracing.RedactedValue+"\nplain line", out)
	assert.Equal(t, "nothing here", tracing.RedactSecretsInString("nothing here", tracing.DefaultRedactedKeywords))
}

func TestRecordErrorWithContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	tracing.RecordErrorWithContext(span, errors.New("login failed: token=abc123"), tracing.DefaultRedactedKeywords)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.NotContains(t, spans[0].Status().Description, "abc123")
	require.NotEmpty(t, spans[0].Events())

	assert.NotPanics(t, func() { tracing.RecordErrorWithContext(span, nil, nil) })
}

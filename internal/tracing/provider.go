package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	txlog "github.com/gxo-labs/txinstall/pkg/txinstall/v1/log"
	txtracing "github.com/gxo-labs/txinstall/pkg/txinstall/v1/tracing"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	defaultGRPCEndpoint = "localhost:4317"
	defaultHTTPEndpoint = "localhost:4318"
	defaultTracesPath   = "/v1/traces"
	defaultServiceName  = "txinstall"
	defaultTimeout      = 10 * time.Second
)

// ExporterConfig is the OTLP exporter configuration read from the standard
// OTEL_* environment variables.
type ExporterConfig struct {
	Disabled    bool
	ServiceName string
	Protocol    string
	Endpoint    string
	TracesPath  string
	Headers     map[string]string
	Timeout     time.Duration
	Gzip        bool
	Insecure    bool
}

// ConfigFromEnv reads an ExporterConfig through getenv. A nil getenv means
// os.Getenv. Tracing counts as disabled when OTEL_SDK_DISABLED is true or no
// endpoint is set.
func ConfigFromEnv(getenv func(string) string) ExporterConfig {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := ExporterConfig{
		Disabled:    strings.EqualFold(strings.TrimSpace(getenv("OTEL_SDK_DISABLED")), "true"),
		ServiceName: getenv("OTEL_SERVICE_NAME"),
		Protocol:    strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL")),
		Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TracesPath:  getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"),
		Headers:     parseHeaders(getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Timeout:     parseTimeout(getenv("OTEL_EXPORTER_OTLP_TIMEOUT"), defaultTimeout),
		Gzip:        strings.EqualFold(getenv("OTEL_EXPORTER_OTLP_COMPRESSION"), "gzip"),
		Insecure:    isInsecure(getenv("OTEL_EXPORTER_OTLP_INSECURE"), getenv("OTEL_EXPORTER_OTLP_TRACES_INSECURE")),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "grpc"
	}
	if cfg.Endpoint == "" {
		cfg.Disabled = true
	}
	if cfg.TracesPath == "" {
		cfg.TracesPath = defaultTracesPath
	}
	return cfg
}

// OtelTracerProvider implements TracerProvider with the OpenTelemetry SDK, or
// with the no-op provider when tracing is disabled.
type OtelTracerProvider struct {
	provider    trace.TracerProvider
	exporter    sdktrace.SpanExporter
	sdkProvider *sdktrace.TracerProvider
	log         txlog.Logger
}

// NewNoOpProvider returns a provider whose tracers record nothing.
func NewNoOpProvider() *OtelTracerProvider {
	return &OtelTracerProvider{provider: noop.NewTracerProvider()}
}

// NewProviderFromEnv builds a provider from the OTEL_* environment. Any
// configuration problem falls back to the no-op provider with a warning.
// The global OpenTelemetry provider is not changed.
func NewProviderFromEnv(ctx context.Context, log txlog.Logger) *OtelTracerProvider {
	return NewProvider(ctx, ConfigFromEnv(nil), log)
}

// NewProvider builds a provider from cfg.
func NewProvider(ctx context.Context, cfg ExporterConfig, log txlog.Logger) *OtelTracerProvider {
	if cfg.Disabled {
		log.Debugf("OpenTelemetry tracing disabled")
		return NewNoOpProvider()
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
		resource.WithProcess(), resource.WithOS(), resource.WithHost(),
	)
	if err != nil {
		log.Warnf("Failed to create OTel resource, using default: %v", err)
		res = resource.Default()
	}

	exporter, err := createExporter(ctx, cfg, log)
	if err != nil {
		log.Warnf("Failed to create OTLP exporter, tracing disabled: %v", err)
		return NewNoOpProvider()
	}

	sdkTP := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	log.Infof("OpenTelemetry tracing enabled (protocol %s, endpoint %s)", cfg.Protocol, cfg.Endpoint)
	return &OtelTracerProvider{
		provider:    sdkTP,
		exporter:    exporter,
		sdkProvider: sdkTP,
		log:         log,
	}
}

func createExporter(ctx context.Context, cfg ExporterConfig, log txlog.Logger) (sdktrace.SpanExporter, error) {
	switch cfg.Protocol {
	case "grpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultGRPCEndpoint
		}
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithHeaders(cfg.Headers),
			otlptracegrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		if cfg.Gzip {
			opts = append(opts, otlptracegrpc.WithCompressor(gzip.Name))
		}
		log.Debugf("Configuring OTLP gRPC exporter (endpoint %s, insecure %t)", endpoint, cfg.Insecure)
		return otlptracegrpc.New(ctx, opts...)

	case "http", "http/protobuf":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultHTTPEndpoint
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithURLPath(cfg.TracesPath),
			otlptracehttp.WithHeaders(cfg.Headers),
			otlptracehttp.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if cfg.Gzip {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		log.Debugf("Configuring OTLP HTTP exporter (endpoint %s%s, insecure %t)", endpoint, cfg.TracesPath, cfg.Insecure)
		return otlptracehttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol: %s", cfg.Protocol)
}

// GetTracer returns a named tracer from the underlying provider.
func (p *OtelTracerProvider) GetTracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if p.provider == nil {
		return noop.NewTracerProvider().Tracer(name, opts...)
	}
	return p.provider.Tracer(name, opts...)
}

// Shutdown flushes buffered spans and stops the exporter. It returns the
// first error encountered.
func (p *OtelTracerProvider) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.sdkProvider != nil {
		if err := p.sdkProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.exporter != nil {
		if err := p.exporter.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil && p.log != nil {
		p.log.Warnf("OpenTelemetry shutdown failed: %v", firstErr)
	}
	return firstErr
}

// IsEffectivelyNoOp reports whether spans are discarded.
func (p *OtelTracerProvider) IsEffectivelyNoOp() bool {
	return p.sdkProvider == nil
}

// parseHeaders converts "k1=v1,k2=v2" into a map.
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}
	for _, pair := range strings.Split(headerStr, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if found && key != "" {
			headers[key] = strings.TrimSpace(value)
		}
	}
	return headers
}

// parseTimeout accepts integer milliseconds or a Go duration.
func parseTimeout(timeoutStr string, fallback time.Duration) time.Duration {
	if timeoutStr == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(timeoutStr, 10, 64); err == nil {
		if ms < 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(timeoutStr); err == nil && d >= 0 {
		return d
	}
	return fallback
}

func isInsecure(flags ...string) bool {
	for _, flag := range flags {
		if strings.EqualFold(strings.TrimSpace(flag), "true") {
			return true
		}
	}
	return false
}

var _ txtracing.TracerProvider = (*OtelTracerProvider)(nil)

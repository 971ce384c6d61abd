package metrics

import (
	txmetrics "github.com/gxo-labs/txinstall/pkg/txinstall/v1/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRegistryProvider implements RegistryProvider with a private
// Prometheus registry.
type PrometheusRegistryProvider struct {
	registry *prometheus.Registry
}

// NewPrometheusRegistryProvider creates a provider with an empty registry.
func NewPrometheusRegistryProvider() *PrometheusRegistryProvider {
	return &PrometheusRegistryProvider{
		registry: prometheus.NewRegistry(),
	}
}

// Registry returns the underlying Prometheus registry.
func (p *PrometheusRegistryProvider) Registry() *prometheus.Registry {
	return p.registry
}

// WriteTextfile writes every metric in the registry to path in the text
// exposition format, for pickup by the node exporter textfile collector.
func (p *PrometheusRegistryProvider) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

var _ txmetrics.RegistryProvider = (*PrometheusRegistryProvider)(nil)

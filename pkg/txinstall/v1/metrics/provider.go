package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryProvider gives access to the registry holding installer metrics so
// callers can expose or export them.
type RegistryProvider interface {
	Registry() *prometheus.Registry
}

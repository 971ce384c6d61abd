// Package secrets defines where manifest templates resolve secret values from.
package secrets

import "context"

// Provider resolves secret values by key.
type Provider interface {
	// GetSecret returns the value stored under key and whether it was found.
	// An error is reserved for failures other than a missing key.
	GetSecret(ctx context.Context, key string) (string, bool, error)
}

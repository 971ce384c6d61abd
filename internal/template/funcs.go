package template

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"text/template"
	"time"

	"github.com/gxo-labs/txinstall/internal/secrets"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	txsecrets "github.com/gxo-labs/txinstall/pkg/txinstall/v1/secrets"
)

const secretLookupTimeout = 10 * time.Second

// GetFuncMap builds the template functions. Secrets resolved through the
// returned map are added to tracker.
func GetFuncMap(provider txsecrets.Provider, bus events.Bus, tracker *secrets.SecretTracker) template.FuncMap {
	fm := template.FuncMap{
		"env": os.Getenv,
		"eq": func(a, b interface{}) bool {
			return reflect.DeepEqual(a, b)
		},
		"default": funcDefault,
	}
	if provider != nil {
		fm["secret"] = createSecretFunc(provider, bus, tracker)
	}
	return fm
}

// funcDefault returns value unless it is empty, in which case fallback.
// Usage: {{ default "/opt/app" .targetdir }}
func funcDefault(fallback, value interface{}) interface{} {
	if value == nil {
		return fallback
	}
	if s, ok := value.(string); ok && s == "" {
		return fallback
	}
	return value
}

func createSecretFunc(provider txsecrets.Provider, bus events.Bus, tracker *secrets.SecretTracker) func(string) (string, error) {
	return func(key string) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), secretLookupTimeout)
		defer cancel()

		value, found, err := provider.GetSecret(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to retrieve secret '%s': %w", key, err)
		}
		if !found {
			return "", fmt.Errorf("secret '%s' not found", key)
		}

		if bus != nil {
			bus.Emit(events.Event{
				Type:      events.SecretAccessed,
				Timestamp: time.Now(),
				Payload:   map[string]interface{}{"secret_key": key},
			})
		}
		if tracker != nil {
			tracker.Add(value)
		}
		return value, nil
	}
}

// Package secrets resolves secret values for manifest templates and remembers
// them, so units can keep them out of the install log and the state file.
package secrets

import (
	"sort"
	"strings"
	"sync"
)

// TrackerParamKey is the unit parameter under which discovery hands the
// component's SecretTracker to a unit. Units remove it before decoding their
// own parameters.
const TrackerParamKey = "_txinstall_secret_tracker_"

// Masked replaces a tracked secret inside a string.
const Masked = "********"

// SecretTracker records the secret values resolved while rendering one
// component manifest. It is safe for concurrent use.
type SecretTracker struct {
	mu              sync.RWMutex
	resolvedSecrets map[string]struct{}
}

// NewSecretTracker creates an empty tracker.
func NewSecretTracker() *SecretTracker {
	return &SecretTracker{resolvedSecrets: make(map[string]struct{})}
}

// Add marks a value as secret. Empty strings are ignored.
func (t *SecretTracker) Add(secretValue string) {
	if secretValue == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolvedSecrets[secretValue] = struct{}{}
}

// IsTracked reports whether value is exactly a tracked secret.
func (t *SecretTracker) IsTracked(value string) bool {
	if t == nil || value == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, found := t.resolvedSecrets[value]
	return found
}

// ContainsTrackedSecret reports whether input contains any tracked secret.
func (t *SecretTracker) ContainsTrackedSecret(input string) bool {
	if t == nil || input == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for secret := range t.resolvedSecrets {
		if strings.Contains(input, secret) {
			return true
		}
	}
	return false
}

// Mask replaces every tracked secret inside input with Masked. Longer secrets
// are replaced first so a secret that contains another is masked whole.
func (t *SecretTracker) Mask(input string) string {
	if !t.ContainsTrackedSecret(input) {
		return input
	}
	t.mu.RLock()
	values := make([]string, 0, len(t.resolvedSecrets))
	for secret := range t.resolvedSecrets {
		values = append(values, secret)
	}
	t.mu.RUnlock()

	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	for _, secret := range values {
		input = strings.ReplaceAll(input, secret, Masked)
	}
	return input
}

// FromParams returns the tracker stored under TrackerParamKey and removes the
// key from params. It returns nil when no tracker was passed.
func FromParams(params map[string]interface{}) *SecretTracker {
	if params == nil {
		return nil
	}
	raw, ok := params[TrackerParamKey]
	if !ok {
		return nil
	}
	delete(params, TrackerParamKey)
	tracker, _ := raw.(*SecretTracker)
	return tracker
}

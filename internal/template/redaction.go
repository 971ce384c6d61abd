package template

import "github.com/gxo-labs/txinstall/internal/secrets"

// RedactTrackedSecrets walks data and masks tracked secrets inside every
// string it finds. Maps and slices are copied, never modified in place. The
// boolean reports whether anything was masked.
func RedactTrackedSecrets(data interface{}, tracker *secrets.SecretTracker) (interface{}, bool) {
	if data == nil || tracker == nil {
		return data, false
	}
	return redactRecursive(data, tracker)
}

func redactRecursive(data interface{}, tracker *secrets.SecretTracker) (interface{}, bool) {
	switch v := data.(type) {
	case string:
		masked := tracker.Mask(v)
		return masked, masked != v
	case map[string]interface{}:
		if v == nil {
			return v, false
		}
		redacted := false
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			newVal, changed := redactRecursive(val, tracker)
			out[key] = newVal
			redacted = redacted || changed
		}
		return out, redacted
	case []interface{}:
		if v == nil {
			return v, false
		}
		redacted := false
		out := make([]interface{}, len(v))
		for i, val := range v {
			newVal, changed := redactRecursive(val, tracker)
			out[i] = newVal
			redacted = redacted || changed
		}
		return out, redacted
	case []string:
		redacted := false
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = tracker.Mask(s)
			redacted = redacted || out[i] != s
		}
		return out, redacted
	default:
		return data, false
	}
}

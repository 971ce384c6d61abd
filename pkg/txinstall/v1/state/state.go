// Package state defines the State Map recorded by every installer, the
// durable storage contract for component state files, and the JSON serializer
// that converts one into the other.
package state

// Reserved control keys written by every installer node into its State Map.
const (
	// LastAttemptedIndexKey holds the index of the last child whose Install
	// was entered, or -1 when no child was attempted.
	LastAttemptedIndexKey = "lastAttemptedIndex"
	// NestedStatesKey holds one State Map per attempted child, in child order.
	NestedStatesKey = "nestedStates"
)

// Map is the record of what an installer did, sufficient to commit, roll back
// or uninstall it later. Values are loosely typed: strings, numbers, booleans,
// nil, nested Maps and slices of Maps, plus the other types the serializer
// supports.
type Map map[string]interface{}

// Get returns the value stored under key and whether it was present.
func (m Map) Get(key string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// GetString returns the string stored under key. The second result is false
// when the key is absent or holds another type.
func (m Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool returns the bool stored under key.
func (m Map) GetBool(key string) (bool, bool) {
	v, ok := m.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetInt returns an integer stored under key, accepting any of the integer
// types the serializer produces.
func (m Map) GetInt(key string) (int, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// Store persists serialized State Maps by path. Implementations treat a
// missing path as absent rather than as an error.
type Store interface {
	// Exists reports whether a state document is stored at path.
	Exists(path string) (bool, error)
	// Read returns the document stored at path.
	Read(path string) ([]byte, error)
	// Write replaces the document stored at path.
	Write(path string, data []byte) error
	// Remove deletes the document at path. Removing a missing path succeeds.
	Remove(path string) error
}

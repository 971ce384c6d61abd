package events

import "time"

// EventType identifies a lifecycle occurrence published by the installer engine.
type EventType string

const (
	PhaseStarted   EventType = "PhaseStarted"   // An installer entered a lifecycle phase
	PhaseCompleted EventType = "PhaseCompleted" // The phase returned without error
	PhaseFailed    EventType = "PhaseFailed"    // The phase returned an error
	StateSaved     EventType = "StateSaved"     // A component state file was written
	StateLoaded    EventType = "StateLoaded"    // A component state file was read
	StateRemoved   EventType = "StateRemoved"   // A component state file was deleted
	MessageLogged  EventType = "MessageLogged"  // A line was written to the install log
	SecretAccessed EventType = "SecretAccessed" // A manifest template resolved a secret
)

// Event describes one occurrence. Payload values must not carry secrets.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	// Installer is the name of the installer node the event belongs to, if any.
	Installer string `json:"installer,omitempty"`
	// Phase is one of install, commit, rollback or uninstall.
	Phase   string                 `json:"phase,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus publishes events. Emit must not block the lifecycle.
type Bus interface {
	Emit(event Event)
}

// Package errors defines the typed errors raised by the installer engine, its
// state serializer, the component manifest loader and the command-line driver.
package errors

import (
	"errors"
	"fmt"
)

// --- Configuration and input errors ---

// ConfigError represents an error encountered while loading or parsing a
// component manifest or engine option.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }

// ValidationError indicates that a manifest, schema version or unit parameter
// failed validation checks.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// ArgumentError reports malformed or missing input to a lifecycle call, such
// as a nil state map or a saved state that lacks the reserved control keys.
type ArgumentError struct {
	Message string
	Cause   error
}

func NewArgumentError(message string, cause error) *ArgumentError {
	return &ArgumentError{Message: message, Cause: cause}
}
func (e *ArgumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid argument: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}
func (e *ArgumentError) Unwrap() error { return e.Cause }

// --- Engine errors ---

// CorruptStateError indicates that a saved state map or state file cannot be
// trusted: the reserved keys disagree with each other or with the installer
// tree, or the durable text could not be decoded.
type CorruptStateError struct {
	Message string
	Cause   error
}

func NewCorruptStateError(message string, cause error) *CorruptStateError {
	return &CorruptStateError{Message: message, Cause: cause}
}
func (e *CorruptStateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("corrupt state: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("corrupt state: %s", e.Message)
}
func (e *CorruptStateError) Unwrap() error { return e.Cause }

// InitializationError reports that the installable units of a component could
// not be discovered or instantiated.
type InitializationError struct {
	Component string
	Message   string
	Cause     error
}

func NewInitializationError(component, message string, cause error) *InitializationError {
	return &InitializationError{Component: component, Message: message, Cause: cause}
}
func (e *InitializationError) Error() string {
	msg := e.Message
	if e.Component != "" {
		msg = fmt.Sprintf("%s (component '%s')", e.Message, e.Component)
	}
	if e.Cause != nil {
		return fmt.Sprintf("initialization error: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("initialization error: %s", msg)
}
func (e *InitializationError) Unwrap() error { return e.Cause }

// InstallAbortedError is returned by a transacted install whose install phase
// failed and was rolled back. Cause is the original install failure.
type InstallAbortedError struct {
	Cause error
}

func NewInstallAbortedError(cause error) *InstallAbortedError {
	return &InstallAbortedError{Cause: cause}
}
func (e *InstallAbortedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("installation failed and has been rolled back: %v", e.Cause)
	}
	return "installation failed and has been rolled back"
}
func (e *InstallAbortedError) Unwrap() error { return e.Cause }

// InstallError wraps a failure accumulated during commit, rollback or
// uninstall. Reported is set by the engine once the cause has been written to
// the install log; ancestors propagate a reported error without logging it again.
type InstallError struct {
	Phase    string
	Message  string
	Cause    error
	Reported bool
}

// NewInstallError creates an InstallError tagged as already reported.
func NewInstallError(phase, message string, cause error) *InstallError {
	return &InstallError{Phase: phase, Message: message, Cause: cause, Reported: true}
}
func (e *InstallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}
func (e *InstallError) Unwrap() error { return e.Cause }

// IsAlreadyReported checks whether err is an InstallError the engine has
// already logged.
func IsAlreadyReported(err error) bool {
	var ie *InstallError
	return errors.As(err, &ie) && ie.Reported
}

// BeforeInstallError reports a failing BeforeInstall hook. No child installer
// has been touched when it is returned.
type BeforeInstallError struct {
	Installer string
	Cause     error
}

func NewBeforeInstallError(installer string, cause error) *BeforeInstallError {
	return &BeforeInstallError{Installer: installer, Cause: cause}
}
func (e *BeforeInstallError) Error() string {
	return fmt.Sprintf("before-install hook of installer '%s' failed: %v", e.Installer, e.Cause)
}
func (e *BeforeInstallError) Unwrap() error { return e.Cause }

// AfterInstallError reports a failing AfterInstall hook. The children have
// already been installed and their state recorded.
type AfterInstallError struct {
	Installer string
	Cause     error
}

func NewAfterInstallError(installer string, cause error) *AfterInstallError {
	return &AfterInstallError{Installer: installer, Cause: cause}
}
func (e *AfterInstallError) Error() string {
	return fmt.Sprintf("after-install hook of installer '%s' failed: %v", e.Installer, e.Cause)
}
func (e *AfterInstallError) Unwrap() error { return e.Cause }

// HookError wraps the failure of a commit, rollback or uninstall hook. These
// failures are recorded and do not stop the phase.
type HookError struct {
	Hook      string
	Installer string
	Cause     error
}

func NewHookError(hook, installer string, cause error) *HookError {
	return &HookError{Hook: hook, Installer: installer, Cause: cause}
}
func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook of installer '%s' failed: %v", e.Hook, e.Installer, e.Cause)
}
func (e *HookError) Unwrap() error { return e.Cause }

// TreeError is returned when an operation would corrupt the installer tree:
// adding an installer to itself or creating a cycle.
type TreeError struct {
	Message string
}

func NewTreeError(message string) *TreeError {
	return &TreeError{Message: message}
}
func (e *TreeError) Error() string {
	return fmt.Sprintf("invalid installer tree: %s", e.Message)
}

// StateFileError reports a failed read, write or delete of a durable state file.
type StateFileError struct {
	Op    string
	Path  string
	Cause error
}

func NewStateFileError(op, path string, cause error) *StateFileError {
	return &StateFileError{Op: op, Path: path, Cause: cause}
}
func (e *StateFileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unable to %s state file '%s': %v", e.Op, e.Path, e.Cause)
	}
	return fmt.Sprintf("unable to %s state file '%s'", e.Op, e.Path)
}
func (e *StateFileError) Unwrap() error { return e.Cause }

// UnitNotFoundError indicates that a manifest references a unit type that is
// not present in the unit registry.
type UnitNotFoundError struct {
	UnitType string
}

func NewUnitNotFoundError(unitType string) *UnitNotFoundError {
	return &UnitNotFoundError{UnitType: unitType}
}
func (e *UnitNotFoundError) Error() string {
	return fmt.Sprintf("installable unit type not found: %s", e.UnitType)
}

// HelpRequestedError carries the usage text requested on the command line.
// Its message is the help text itself.
type HelpRequestedError struct {
	Help string
}

func NewHelpRequestedError(help string) *HelpRequestedError {
	return &HelpRequestedError{Help: help}
}
func (e *HelpRequestedError) Error() string { return e.Help }

// IsHelpRequested checks if an error is a HelpRequestedError using errors.As.
func IsHelpRequested(err error) bool {
	var helpErr *HelpRequestedError
	return errors.As(err, &helpErr)
}

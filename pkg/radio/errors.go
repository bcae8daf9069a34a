package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationRejected indicates the driver refused the station
	// configuration.
	ErrConfigurationRejected = errors.New("configuration rejected")
	// ErrStartFailed indicates the radio could not be started.
	ErrStartFailed = errors.New("start failed")
	// ErrConnectFailed indicates an association attempt failed.
	ErrConnectFailed = errors.New("connect failed")
	// ErrNotStarted indicates the radio must be started first.
	ErrNotStarted = errors.New("radio not started")
	// ErrAlreadyTaken indicates the radio handle was moved before.
	ErrAlreadyTaken = errors.New("radio handle already taken")
)

// DriverError is a failure reported by the driver with its reason code.
type DriverError struct {
	Op     error
	Reason uint16
}

// Error implements error.
func (e *DriverError) Error() string {
	return fmt.Sprintf("%v (reason %d)", e.Op, e.Reason)
}

// Unwrap returns the operation sentinel.
func (e *DriverError) Unwrap() error {
	return e.Op
}

// CredentialsError indicates invalid build-time credentials.
type CredentialsError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

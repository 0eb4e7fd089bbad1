package servo

import (
	"errors"
	"fmt"
)

// ErrDriverClosed is returned when a driver is used after Shutdown.
var ErrDriverClosed = errors.New("servo driver already shut down")

// ConfigError reports an invalid servo definition. It is fatal at startup.
type ConfigError struct {
	Spec string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Spec == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %q", e.Msg, e.Spec)
}

// DriverConnectionError reports that the PWM service could not be reached.
type DriverConnectionError struct {
	Err error
}

func (e *DriverConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to PWM service: %v", e.Err)
}

func (e *DriverConnectionError) Unwrap() error { return e.Err }

// ValidationError reports a bad move request (missing or malformed value).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError reports a move request for an unregistered servo name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("servo with name '%s' does not exist", e.Name)
}

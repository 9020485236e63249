package bootloader

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when the runtime is used before Init.
var ErrNotInitialized = errors.New("runtime not initialized")

// ConfigError indicates an invalid runtime configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// TooManyErrorsError indicates the main loop gave up after repeated
// recoverable errors.
type TooManyErrorsError struct {
	Count int
	Limit int
	Last  error
}

func (e *TooManyErrorsError) Error() string {
	return fmt.Sprintf("too many recoverable errors: %d (limit %d): %v", e.Count, e.Limit, e.Last)
}

func (e *TooManyErrorsError) Unwrap() error {
	return e.Last
}

package manager

import (
	"errors"

	"glbd/internal/codec"
	"glbd/internal/engine"
)

// ErrInvalidContainer marks input that failed GLB structural validation.
var ErrInvalidContainer = errors.New("invalid GLB container")

// invalidInputError signals malformed client input (return 400, or 415 for
// unsupported media). Retrying the same input will not help.
type invalidInputError struct {
	msg         string
	err         error
	unsupported bool
}

func (e invalidInputError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e invalidInputError) Unwrap() error { return e.err }

// ErrInvalidInput constructs an invalid input error wrapping err.
func ErrInvalidInput(msg string, err error) error { return invalidInputError{msg: msg, err: err} }

// IsInvalidInput reports whether err indicates malformed client input.
func IsInvalidInput(err error) bool {
	var e invalidInputError
	return errors.As(err, &e) || errors.Is(err, codec.ErrInvalidSettings) || errors.Is(err, codec.ErrUnsupportedImage)
}

// IsUnsupportedMedia reports whether err indicates an unsupported payload type (return 415).
func IsUnsupportedMedia(err error) bool {
	var e invalidInputError
	if errors.As(err, &e) && e.unsupported {
		return true
	}
	return errors.Is(err, codec.ErrUnsupportedImage)
}

// moduleNotFoundError is returned for operations on an unknown module name.
type moduleNotFoundError struct{ name string }

func (e moduleNotFoundError) Error() string { return "module not found: " + e.name }

// ErrModuleNotFound constructs a module not found error.
func ErrModuleNotFound(name string) error { return moduleNotFoundError{name: name} }

// IsModuleNotFound reports whether err names an unknown module.
func IsModuleNotFound(err error) bool {
	var e moduleNotFoundError
	return errors.As(err, &e)
}

// IsModuleUnavailable reports whether err means a module could not be
// initialized or is blocked by its circuit breaker (return 503).
func IsModuleUnavailable(err error) bool {
	if _, open := engine.IsCircuitOpen(err); open {
		return true
	}
	return engine.IsInitFailure(err) || errors.Is(err, engine.ErrClosed)
}

// IsCodecTimeout reports whether a codec invocation exceeded its hard timeout (return 504).
func IsCodecTimeout(err error) bool { return errors.Is(err, engine.ErrInvocationTimeout) }

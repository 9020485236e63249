package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the frame and message codecs and by the
// components built on them. Callers match with errors.Is.
var (
	ErrFrameInvalid    = errors.New("invalid frame")
	ErrCrcMismatch     = errors.New("crc mismatch")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrTimeout         = errors.New("timeout")
	ErrMessageDecode   = errors.New("message decode failed")
	ErrMessageEncode   = errors.New("message encode failed")
	ErrFlashOperation  = errors.New("flash operation failed")
	ErrStateInvalid    = errors.New("invalid state")
	ErrInvalidRequest  = errors.New("invalid request")
)

// ResultError represents a non-success result reported by the bootloader.
type ResultError struct {
	// Operation is the request that failed
	Operation string

	// Result is the code from the response
	Result Result

	// Message is the acknowledgment text, if any
	Message string
}

func (e *ResultError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed: %s (%d)", e.Operation, e.Result, uint32(e.Result))
	}
	return fmt.Sprintf("%s failed: %s (%d): %s", e.Operation, e.Result, uint32(e.Result), e.Message)
}

// IsResultError returns true if the error is a ResultError.
func IsResultError(err error) bool {
	var re *ResultError
	return errors.As(err, &re)
}

// String returns a human-readable name for a result code.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultErrorCommunication:
		return "communication error"
	case ResultErrorFlashOperation:
		return "flash operation error"
	case ResultErrorDataCorruption:
		return "data corruption"
	case ResultErrorResourceExhaustion:
		return "resource exhaustion"
	case ResultErrorInvalidRequest:
		return "invalid request"
	default:
		return fmt.Sprintf("unknown result %d", uint32(r))
	}
}

// ResultFor maps an error to the result code reported to the host.
// A nil error maps to ResultSuccess.
func ResultFor(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrCrcMismatch):
		return ResultErrorDataCorruption
	case errors.Is(err, ErrFlashOperation):
		return ResultErrorFlashOperation
	case errors.Is(err, ErrTimeout):
		return ResultErrorCommunication
	case errors.Is(err, ErrPayloadTooLarge):
		return ResultErrorResourceExhaustion
	default:
		return ResultErrorInvalidRequest
	}
}

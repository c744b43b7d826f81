package types

import (
	"errors"
	"fmt"
)

// Code is a gateway error code. The numeric values are part of the
// public contract and must not change.
type Code int32

const (
	CodeSuccess              Code = 0
	CodeInitializationFailed Code = -1
	CodeAuthenticationFailed Code = -2
	CodeConfigLoadFailed     Code = -3
	CodeNetworkError         Code = -4
	CodeInvalidModel         Code = -5
	CodeTokenExchangeFailed  Code = -6
	CodeUnexpectedResponse   Code = -7
	CodeMemoryError          Code = -8
	CodeInvalidParameter     Code = -9
	CodeProviderUnavailable  Code = -10
	CodeStreamingFailed      Code = -11
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInitializationFailed:
		return "initialization failed"
	case CodeAuthenticationFailed:
		return "authentication failed"
	case CodeConfigLoadFailed:
		return "config load failed"
	case CodeNetworkError:
		return "network error"
	case CodeInvalidModel:
		return "invalid model"
	case CodeTokenExchangeFailed:
		return "token exchange failed"
	case CodeUnexpectedResponse:
		return "unexpected response"
	case CodeMemoryError:
		return "memory error"
	case CodeInvalidParameter:
		return "invalid parameter"
	case CodeProviderUnavailable:
		return "provider unavailable"
	case CodeStreamingFailed:
		return "streaming failed"
	default:
		return fmt.Sprintf("code(%d)", int32(c))
	}
}

// Error is a gateway failure with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so callers can use
// errors.Is with a bare E(code, "") sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// E creates a new Error with the given code and message.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message. If one of the
// format arguments is an error it is kept as the cause for unwrapping.
func Errorf(code Code, format string, args ...any) *Error {
	err := &Error{Code: code, Message: fmt.Sprintf(format, args...)}
	for _, a := range args {
		if cause, ok := a.(error); ok {
			err.Cause = cause
			break
		}
	}
	return err
}

// Wrap attaches a code and message to an existing error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the error code from err. A nil error maps to
// CodeSuccess; an untyped error maps to CodeUnexpectedResponse.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnexpectedResponse
}

package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed projection so callers can decide how to
// report it.
type ErrorKind string

const (
	ErrorKindInvalidInput  ErrorKind = "invalid_input"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindUpstreamData  ErrorKind = "upstream_data"
	ErrorKindInternal      ErrorKind = "internal"
)

// Error is the structured error returned by the projection engine and the
// components feeding it.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidInput returns an error for malformed or missing inputs.
func InvalidInput(format string, args ...any) error {
	return &Error{Kind: ErrorKindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Configuration returns an error for an unrecognized configuration choice such
// as an unknown metering type.
func Configuration(format string, args ...any) error {
	return &Error{Kind: ErrorKindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// UpstreamData returns an error for missing, truncated or inconsistent PV
// simulator output.
func UpstreamData(err error, format string, args ...any) error {
	return &Error{Kind: ErrorKindUpstreamData, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain or
// ErrorKindInternal if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindInternal
}

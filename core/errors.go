package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries the field errors of invalid input. Err is the sentinel behind them, if any.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// Unwrap exposes the sentinel to errors.Is. errors.Cause stops at the ValidationError.
func (err ValidationError) Unwrap() error { return err.Err }

// Field returns the error reported for field name.
func (err ValidationError) Field(name string) (string, bool) {
	for _, f := range err.Fields {
		if f.Field == name {
			return f.Error, true
		}
	}
	return "", false
}

// shutdown is a failure the process cannot serve through, eg. its database went away.
type shutdown struct {
	message string
	err     error
}

func NewShutdownError(msg string, cause error) error {
	return &shutdown{message: msg, err: cause}
}

func (s *shutdown) Error() string {
	if s.err == nil {
		return s.message
	}
	return s.message + ": " + s.err.Error()
}

func (s *shutdown) Unwrap() error { return s.err }

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

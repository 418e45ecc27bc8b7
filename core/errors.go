package core

import (
	"strings"

	"github.com/pkg/errors"
)

// ConfigError lists the secrets missing from the environment. The gateway
// refuses to serve while it is non-nil.
type ConfigError struct {
	Missing []string
}

func (err *ConfigError) Error() string {
	return "missing configuration: " + strings.Join(err.Missing, ", ")
}

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string
	Error string
}

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

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

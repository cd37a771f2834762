package parser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBlankLine marks lines that carry nothing; callers skip them silently
	ErrBlankLine = errors.New("blank line")
	// ErrMalformed marks lines that could not be decoded into a record
	ErrMalformed = errors.New("malformed record")
)

// DecodeError describes why a single line was rejected
type DecodeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed record: field %q %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed record: %s: %v", e.Reason, e.Err)
	}
	return "malformed record: " + e.Reason
}

// Unwrap lets errors.Is match both ErrMalformed and the underlying cause
func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

// Decoder turns one raw line into a record of type T
type Decoder[T any] interface {
	Decode(line string) (T, error)
	Name() string
}

// IsBlank reports whether line has no content after trimming whitespace
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func fieldError(field, reason string) error {
	return &DecodeError{Field: field, Reason: reason}
}

func syntaxError(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}

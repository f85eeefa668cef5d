package geo

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is wrapped by every InvalidInputError.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a user-supplied number that cannot start a run.
type InvalidInputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

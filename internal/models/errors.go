package models

import (
	"errors"
	"fmt"
)

// InputError carries a message that is safe to show to the payer verbatim.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func NewInputError(msg string) *InputError {
	return &InputError{Message: msg}
}

// InternalError is logged and reported generically; the payer never sees Err.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func NewInternalError(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: err}
}

// AsInputError returns the payer-facing error in err's chain, if any.
func AsInputError(err error) (*InputError, bool) {
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return inputErr, true
	}
	return nil, false
}

package gamepass

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the gamepass service.
var (
	ErrUnauthorizedCaller   = errors.New("unauthorized caller")
	ErrDepositTooSmall      = errors.New("attached deposit below minimum")
	ErrInsufficientGames    = errors.New("no games remaining")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrTooManyGames         = errors.New("too many games bought")
	ErrCostTableFull        = errors.New("cost table full")
	ErrGameCostNotFound     = errors.New("game cost not found")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionAlreadyActive = errors.New("session already active")
	ErrClockInconsistency   = errors.New("stored start time is in the future")
	ErrInvalidAccountID     = errors.New("invalid account id")
	ErrInvalidBundleSize    = errors.New("invalid bundle size")
	ErrInvalidTokenAmount   = errors.New("invalid token amount")
	ErrInvalidGameCount     = errors.New("invalid game count")
	ErrInvalidServiceConfig = errors.New("invalid service config")
	ErrUnknownSchemaVersion = errors.New("unknown schema version")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

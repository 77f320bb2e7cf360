package vcoin

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the token-economy services.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotYetMatured       = errors.New("stake not yet matured")
	ErrAlreadyUnstaked     = errors.New("stake already unstaked")
	ErrStakeNotFound       = errors.New("stake not found")
	ErrForbidden           = errors.New("stake owned by another user")
	ErrBelowMinimumStake   = errors.New("amount below minimum stake")
	ErrInvalidDuration     = errors.New("invalid stake duration")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidUserID       = errors.New("invalid user id")
	ErrInvalidEntryType    = errors.New("invalid entry type")
	ErrInvalidActionType   = errors.New("invalid action type")
	ErrInvalidStakeStatus  = errors.New("invalid stake status")
	ErrInvalidMetadataJSON = errors.New("invalid metadata json")
	ErrInvalidConfig       = errors.New("invalid config")
	ErrInvalidServiceInit  = errors.New("invalid service wiring")
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

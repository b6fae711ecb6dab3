package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrSelfTransfer           = errors.New("self transfer")
	ErrDisallowedAccount      = errors.New("disallowed account")
	ErrUnknownBatch           = errors.New("unknown batch")
	ErrNoActiveSession        = errors.New("no active session")
	ErrPersistenceConflict    = errors.New("persistence conflict")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidLimit           = errors.New("invalid limit")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	ErrJackpotMissing         = errors.New("jackpot pool missing")
	ErrTicketMissing          = errors.New("lottery ticket missing")
)

// IsRetryable reports whether err signals a transient store conflict worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceConflict)
}

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

package ledger

import (
	"errors"
	"fmt"
	"testing"
)

const (
	operationName    = "store"
	subjectName      = "account"
	codeName         = "debit"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
	var operationError OperationError
	if !errors.As(wrappedError, &operationError) || operationError.Code() != codeName {
		test.Fatalf("expected OperationError with code %q", codeName)
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestIsRetryableSeesThroughWrapping(test *testing.T) {
	test.Parallel()
	wrapped := WrapError(operationName, subjectName, codeName, fmt.Errorf("%w: busy", ErrPersistenceConflict))
	if !IsRetryable(wrapped) {
		test.Fatalf("expected wrapped conflict to be retryable")
	}
	if IsRetryable(WrapError(operationName, subjectName, codeName, ErrInsufficientFunds)) {
		test.Fatalf("insufficient funds must not be retryable")
	}
}

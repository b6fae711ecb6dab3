package ledger

import (
	"context"
	"fmt"
)

// Service contains the balance operations over a Store.
type Service struct {
	store       Store
	nowFn       func() int64
	logger      OperationLogger
	retryPolicy RetryPolicy
}

// CreditRequest asks for amount to be minted into UserID.
type CreditRequest struct {
	UserID      UserID
	Amount      int64
	Type        TransactionType
	Description string
}

// DebitRequest asks for amount to be removed from UserID.
type DebitRequest struct {
	UserID      UserID
	Amount      int64
	Type        TransactionType
	Description string
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, retryPolicy: DefaultRetryPolicy()}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Balance returns the account of userID, creating it with a zero balance when absent.
func (service *Service) Balance(ctx context.Context, userID UserID) (Account, error) {
	if userID.IsZero() {
		return Account{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	account, err := service.store.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return Account{}, WrapError("service", operationBalance, "lookup", err)
	}
	return account, nil
}

// Credit mints request.Amount into the account and records one transaction from the system account.
func (service *Service) Credit(ctx context.Context, request CreditRequest) (Account, error) {
	var account Account
	operationError := service.validateAmount(request.Amount)
	if operationError == nil {
		mutation := Mutation{
			UserID:         request.UserID,
			Amount:         PositiveAmount{value: request.Amount},
			Type:           defaultType(request.Type, TransactionSystemAdd),
			Description:    request.Description,
			CreatedUnixUTC: service.nowFn(),
		}
		operationError = RunInTx(ctx, service.store, service.retryPolicy, func(ctx context.Context, transactionStore Store) error {
			credited, err := ApplyCredit(ctx, transactionStore, mutation)
			if err != nil {
				return err
			}
			account = credited
			return nil
		})
	}
	LogOperation(ctx, service.logger, OperationLog{
		Operation:      operationCredit,
		UserID:         request.UserID,
		CounterpartyID: SystemUserID,
		Amount:         request.Amount,
		Type:           request.Type,
		Error:          operationError,
	})
	return account, operationError
}

// Debit removes request.Amount when the balance covers it and records one transaction to
// the system account. The balance check and the decrement are a single conditional update.
func (service *Service) Debit(ctx context.Context, request DebitRequest) (Account, error) {
	var account Account
	operationError := service.validateAmount(request.Amount)
	if operationError == nil {
		mutation := Mutation{
			UserID:         request.UserID,
			Amount:         PositiveAmount{value: request.Amount},
			Type:           defaultType(request.Type, TransactionSystemRemove),
			Description:    request.Description,
			CreatedUnixUTC: service.nowFn(),
		}
		operationError = RunInTx(ctx, service.store, service.retryPolicy, func(ctx context.Context, transactionStore Store) error {
			debited, err := ApplyDebit(ctx, transactionStore, mutation)
			if err != nil {
				return err
			}
			account = debited
			return nil
		})
	}
	LogOperation(ctx, service.logger, OperationLog{
		Operation:      operationDebit,
		UserID:         request.UserID,
		CounterpartyID: SystemUserID,
		Amount:         request.Amount,
		Type:           request.Type,
		Error:          operationError,
	})
	return account, operationError
}

// History lists the most recent transactions where userID is sender or receiver.
func (service *Service) History(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	normalizedLimit, err := normalizeHistoryLimit(limit)
	if err != nil {
		return nil, err
	}
	transactions, err := service.store.ListTransactions(ctx, userID, normalizedLimit)
	if err != nil {
		return nil, WrapError("service", operationHistory, "list", err)
	}
	return transactions, nil
}

// Store exposes the backing store so sibling services can share it.
func (service *Service) Store() Store {
	return service.store
}

func (service *Service) validateAmount(amount int64) error {
	if _, err := NewPositiveAmount(amount); err != nil {
		return err
	}
	return nil
}

func normalizeHistoryLimit(limit int) (int, error) {
	if limit <= 0 {
		return defaultHistoryLimit, nil
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("%w: %d exceeds maximum %d", ErrInvalidLimit, limit, maxHistoryLimit)
	}
	return limit, nil
}

func defaultType(transactionType TransactionType, fallback TransactionType) TransactionType {
	if transactionType == "" {
		return fallback
	}
	return transactionType
}

package ledger

import (
	"context"
	"fmt"
)

const defaultTransferMaxAmount int64 = 1_000_000_000

// TransferRequest moves Amount from SenderID to ReceiverID.
type TransferRequest struct {
	SenderID    UserID
	ReceiverID  UserID
	Amount      int64
	Description string
}

// TransferReceipt reports a committed transfer.
type TransferReceipt struct {
	SenderID        UserID
	ReceiverID      UserID
	Amount          int64
	SenderBalance   int64
	ReceiverBalance int64
	CreatedUnixUTC  int64
}

// TransferNotifier receives committed transfers. Its failures never undo the transfer.
type TransferNotifier interface {
	TransferCommitted(ctx context.Context, receipt TransferReceipt) error
}

// TransferOption configures a TransferService.
type TransferOption func(*TransferService)

// WithTransferLimit caps the amount of a single transfer.
func WithTransferLimit(maxAmount int64) TransferOption {
	return func(service *TransferService) {
		service.maxAmount = maxAmount
	}
}

// WithDisallowedReceivers rejects receivers for which disallowed returns true.
func WithDisallowedReceivers(disallowed func(UserID) bool) TransferOption {
	return func(service *TransferService) {
		service.disallowed = disallowed
	}
}

// WithTransferNotifier wires a post-commit notifier.
func WithTransferNotifier(notifier TransferNotifier) TransferOption {
	return func(service *TransferService) {
		service.notifier = notifier
	}
}

// TransferService moves funds between two user accounts in one atomic unit.
type TransferService struct {
	ledger     *Service
	maxAmount  int64
	disallowed func(UserID) bool
	notifier   TransferNotifier
}

// NewTransferService wires a TransferService on top of a ledger Service.
func NewTransferService(ledgerService *Service, options ...TransferOption) (*TransferService, error) {
	if ledgerService == nil {
		return nil, fmt.Errorf("%w: ledger service dependency is nil", ErrInvalidServiceConfig)
	}
	service := &TransferService{ledger: ledgerService, maxAmount: defaultTransferMaxAmount}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.maxAmount <= 0 {
		return nil, fmt.Errorf("%w: transfer limit must be positive", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Transfer debits the sender with a conditional update, credits the receiver and appends one
// TRANSFER row. The notifier and the operation log run only after commit.
func (service *TransferService) Transfer(ctx context.Context, request TransferRequest) (TransferReceipt, error) {
	receipt, operationError := service.transfer(ctx, request)
	LogOperation(ctx, service.ledger.logger, OperationLog{
		Operation:      operationTransfer,
		UserID:         request.SenderID,
		CounterpartyID: request.ReceiverID,
		Amount:         request.Amount,
		Type:           TransactionTransfer,
		Detail:         request.Description,
		Error:          operationError,
	})
	if operationError != nil {
		return TransferReceipt{}, operationError
	}
	if service.notifier != nil {
		if notifyErr := service.notifier.TransferCommitted(ctx, receipt); notifyErr != nil {
			LogOperation(ctx, service.ledger.logger, OperationLog{
				Operation:      operationTransfer + ".notify",
				UserID:         request.SenderID,
				CounterpartyID: request.ReceiverID,
				Amount:         request.Amount,
				Type:           TransactionTransfer,
				Error:          notifyErr,
			})
		}
	}
	return receipt, nil
}

func (service *TransferService) transfer(ctx context.Context, request TransferRequest) (TransferReceipt, error) {
	if err := service.validate(request); err != nil {
		return TransferReceipt{}, err
	}
	nowUnixUTC := service.ledger.nowFn()
	receipt := TransferReceipt{
		SenderID:       request.SenderID,
		ReceiverID:     request.ReceiverID,
		Amount:         request.Amount,
		CreatedUnixUTC: nowUnixUTC,
	}
	err := RunInTx(ctx, service.ledger.store, service.ledger.retryPolicy, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetOrCreateAccount(ctx, request.SenderID); err != nil {
			return err
		}
		sender, err := transactionStore.DecrementBalance(ctx, request.SenderID, request.Amount)
		if err != nil {
			return err
		}
		receiver, err := transactionStore.IncrementBalance(ctx, request.ReceiverID, request.Amount, 0)
		if err != nil {
			return err
		}
		receipt.SenderBalance = sender.Balance
		receipt.ReceiverBalance = receiver.Balance
		return transactionStore.InsertTransaction(ctx, Transaction{
			SenderID:       request.SenderID,
			ReceiverID:     request.ReceiverID,
			Amount:         request.Amount,
			Type:           TransactionTransfer,
			PeriodTag:      PeriodTag(nowUnixUTC),
			Description:    request.Description,
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	if err != nil {
		return TransferReceipt{}, err
	}
	return receipt, nil
}

func (service *TransferService) validate(request TransferRequest) error {
	if request.SenderID.IsZero() || request.ReceiverID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if request.Amount <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if request.Amount > service.maxAmount {
		return fmt.Errorf("%w: exceeds limit %d", ErrInvalidAmount, service.maxAmount)
	}
	if request.SenderID == request.ReceiverID {
		return ErrSelfTransfer
	}
	if request.SenderID.IsSystem() || request.ReceiverID.IsSystem() {
		return fmt.Errorf("%w: %s", ErrDisallowedAccount, SystemUserID.String())
	}
	if service.disallowed != nil && service.disallowed(request.ReceiverID) {
		return fmt.Errorf("%w: %s", ErrDisallowedAccount, request.ReceiverID.String())
	}
	return nil
}

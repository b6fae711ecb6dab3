package ledger

import (
	"context"
	"fmt"
)

// Mutation describes one balance change on UserID against Counterparty and the
// transaction row recording it. A zero Counterparty means the system account.
type Mutation struct {
	UserID         UserID
	Counterparty   UserID
	Amount         PositiveAmount
	Type           TransactionType
	BatchID        string
	PeriodTag      string
	Description    string
	CreatedUnixUTC int64
}

func (mutation Mutation) counterparty() UserID {
	if mutation.Counterparty.IsZero() {
		return SystemUserID
	}
	return mutation.Counterparty
}

func (mutation Mutation) periodTag() string {
	if mutation.PeriodTag != "" {
		return mutation.PeriodTag
	}
	return PeriodTag(mutation.CreatedUnixUTC)
}

// ApplyCredit raises the balance and lifetime earnings of mutation.UserID and appends one
// transaction row, all through txStore.
func ApplyCredit(ctx context.Context, txStore Store, mutation Mutation) (Account, error) {
	if err := validateMutation(mutation); err != nil {
		return Account{}, err
	}
	account, err := txStore.IncrementBalance(ctx, mutation.UserID, mutation.Amount.Int64(), mutation.Amount.Int64())
	if err != nil {
		return Account{}, err
	}
	transaction := Transaction{
		SenderID:       mutation.counterparty(),
		ReceiverID:     mutation.UserID,
		Amount:         mutation.Amount.Int64(),
		Type:           mutation.Type,
		BatchID:        mutation.BatchID,
		PeriodTag:      mutation.periodTag(),
		Description:    mutation.Description,
		CreatedUnixUTC: mutation.CreatedUnixUTC,
	}
	if err := txStore.InsertTransaction(ctx, transaction); err != nil {
		return Account{}, err
	}
	return account, nil
}

// ApplyDebit lowers the balance of mutation.UserID with a conditional update and appends
// one transaction row. It returns ErrInsufficientFunds when the balance is too small.
func ApplyDebit(ctx context.Context, txStore Store, mutation Mutation) (Account, error) {
	if err := validateMutation(mutation); err != nil {
		return Account{}, err
	}
	if _, err := txStore.GetOrCreateAccount(ctx, mutation.UserID); err != nil {
		return Account{}, err
	}
	account, err := txStore.DecrementBalance(ctx, mutation.UserID, mutation.Amount.Int64())
	if err != nil {
		return Account{}, err
	}
	if err := txStore.InsertTransaction(ctx, debitTransaction(mutation, mutation.Amount.Int64())); err != nil {
		return Account{}, err
	}
	return account, nil
}

// ApplyDebitUpTo debits min(balance, amount) through a compare-and-set on the observed
// balance and returns the amount actually taken. A concurrent change surfaces as
// ErrPersistenceConflict so the enclosing unit can be retried. Nothing is recorded when
// the balance is already zero.
func ApplyDebitUpTo(ctx context.Context, txStore Store, mutation Mutation) (Account, int64, error) {
	if err := validateMutation(mutation); err != nil {
		return Account{}, 0, err
	}
	account, err := txStore.GetOrCreateAccount(ctx, mutation.UserID)
	if err != nil {
		return Account{}, 0, err
	}
	taken := min(account.Balance, mutation.Amount.Int64())
	if taken <= 0 {
		return account, 0, nil
	}
	if err := txStore.CompareAndSetBalance(ctx, mutation.UserID, account.Balance, account.Balance-taken); err != nil {
		return Account{}, 0, err
	}
	if err := txStore.InsertTransaction(ctx, debitTransaction(mutation, taken)); err != nil {
		return Account{}, 0, err
	}
	account.Balance -= taken
	return account, taken, nil
}

func debitTransaction(mutation Mutation, amount int64) Transaction {
	return Transaction{
		SenderID:       mutation.UserID,
		ReceiverID:     mutation.counterparty(),
		Amount:         amount,
		Type:           mutation.Type,
		BatchID:        mutation.BatchID,
		PeriodTag:      mutation.periodTag(),
		Description:    mutation.Description,
		CreatedUnixUTC: mutation.CreatedUnixUTC,
	}
}

func validateMutation(mutation Mutation) error {
	if mutation.UserID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if mutation.UserID.IsSystem() {
		return fmt.Errorf("%w: %s", ErrDisallowedAccount, mutation.UserID.String())
	}
	if mutation.Amount.Int64() <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if mutation.Type == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidTransactionType)
	}
	return nil
}

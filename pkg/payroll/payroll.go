// Package payroll distributes role-based wages in one batch and reverses whole batches.
package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/keylock"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	operationDistribute = "payroll.distribute"
	operationRollback   = "payroll.rollback"
	defaultDescription  = "salary %s"
)

var (
	// ErrInvalidPolicy indicates a missing or unknown aggregation policy.
	ErrInvalidPolicy = errors.New("invalid payroll policy")
	// ErrRunInFlight indicates another run with the same tag has not finished yet.
	ErrRunInFlight = errors.New("payroll run in flight")
	// ErrNoEligibleMembers indicates no member matched any wage.
	ErrNoEligibleMembers = errors.New("no eligible members")
	// ErrInvalidRun indicates a run without a tag or with a non-positive wage.
	ErrInvalidRun = errors.New("invalid payroll run")
)

// Run describes one payroll distribution.
type Run struct {
	Tag         string
	Wages       map[RoleID]int64
	Membership  map[ledger.UserID][]RoleID
	Aggregation Aggregation
	Description string
}

// Payout is the amount paid to, or reclaimed from, one member.
type Payout struct {
	UserID ledger.UserID
	Amount int64
}

// Result summarises a committed distribution.
type Result struct {
	BatchID string
	Tag     string
	Payouts []Payout
	Total   int64
}

// RollbackResult summarises a reversed batch. Shortfall is what FloorAtZero could not reclaim.
type RollbackResult struct {
	BatchID   string
	Reclaimed []Payout
	Total     int64
	Shortfall int64
	Rows      int64
}

// Option configures a Service.
type Option func(*Service)

// WithOperationLogger wires the audit sink.
func WithOperationLogger(logger ledger.OperationLogger) Option {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithRetryPolicy overrides the conflict retry policy.
func WithRetryPolicy(policy ledger.RetryPolicy) Option {
	return func(service *Service) {
		service.retryPolicy = policy
	}
}

// WithDebitPolicy selects how rollbacks treat spent payouts.
func WithDebitPolicy(policy DebitPolicy) Option {
	return func(service *Service) {
		service.debitPolicy = policy
	}
}

// WithBatchIDGenerator replaces the uuid generator.
func WithBatchIDGenerator(generator func() string) Option {
	return func(service *Service) {
		if generator != nil {
			service.newBatchID = generator
		}
	}
}

// Service runs payroll batches against a ledger store.
type Service struct {
	store       ledger.Store
	nowFn       func() int64
	logger      ledger.OperationLogger
	retryPolicy ledger.RetryPolicy
	debitPolicy DebitPolicy
	newBatchID  func() string
	runs        *keylock.Set
	rollbacks   singleflight.Group
}

// NewService wires a payroll Service.
func NewService(store ledger.Store, now func() int64, options ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ledger.ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ledger.ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		nowFn:       now,
		retryPolicy: ledger.DefaultRetryPolicy(),
		debitPolicy: FloorAtZero,
		newBatchID:  uuid.NewString,
		runs:        keylock.New(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Preview computes the payouts of a run without touching the store. Payouts are ordered by user id.
func Preview(wages map[RoleID]int64, membership map[ledger.UserID][]RoleID, aggregation Aggregation) ([]Payout, error) {
	if err := aggregation.validate(); err != nil {
		return nil, err
	}
	for role, wage := range wages {
		if wage <= 0 {
			return nil, fmt.Errorf("%w: wage for role %s must be positive", ErrInvalidRun, role)
		}
	}
	payouts := make([]Payout, 0, len(membership))
	for userID, roles := range membership {
		if userID.IsZero() || userID.IsSystem() {
			continue
		}
		var amount int64
		for _, role := range roles {
			wage, ok := wages[role]
			if !ok {
				continue
			}
			amount = aggregation.combine(amount, wage)
		}
		if amount > 0 {
			payouts = append(payouts, Payout{UserID: userID, Amount: amount})
		}
	}
	sort.Slice(payouts, func(left, right int) bool {
		return payouts[left].UserID.String() < payouts[right].UserID.String()
	})
	return payouts, nil
}

// Distribute pays every eligible member of run in one store transaction tagged with a fresh batch id.
func (service *Service) Distribute(ctx context.Context, run Run) (Result, error) {
	if run.Tag == "" {
		return Result{}, fmt.Errorf("%w: empty tag", ErrInvalidRun)
	}
	unlock, ok := service.runs.TryLock(run.Tag)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrRunInFlight, run.Tag)
	}
	defer unlock()

	payouts, err := Preview(run.Wages, run.Membership, run.Aggregation)
	if err != nil {
		return Result{}, err
	}
	if len(payouts) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNoEligibleMembers, run.Tag)
	}

	result := Result{BatchID: service.newBatchID(), Tag: run.Tag, Payouts: payouts}
	for _, payout := range payouts {
		result.Total += payout.Amount
	}
	description := run.Description
	if description == "" {
		description = fmt.Sprintf(defaultDescription, run.Tag)
	}
	createdUnixUTC := service.nowFn()
	transactions := make([]ledger.Transaction, 0, len(payouts))
	for _, payout := range payouts {
		transactions = append(transactions, ledger.Transaction{
			SenderID:       ledger.SystemUserID,
			ReceiverID:     payout.UserID,
			Amount:         payout.Amount,
			Type:           ledger.TransactionSalary,
			BatchID:        result.BatchID,
			PeriodTag:      ledger.PeriodTag(createdUnixUTC),
			Description:    description,
			CreatedUnixUTC: createdUnixUTC,
		})
	}

	err = ledger.RunInTx(ctx, service.store, service.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		for _, payout := range payouts {
			if _, err := txStore.IncrementBalance(ctx, payout.UserID, payout.Amount, payout.Amount); err != nil {
				return err
			}
		}
		return txStore.InsertTransactions(ctx, transactions)
	})
	ledger.LogOperation(ctx, service.logger, ledger.OperationLog{
		Operation: operationDistribute,
		Amount:    result.Total,
		Type:      ledger.TransactionSalary,
		BatchID:   result.BatchID,
		Detail:    fmt.Sprintf("tag=%s members=%d aggregation=%s", run.Tag, len(payouts), run.Aggregation),
		Error:     err,
	})
	if err != nil {
		return Result{}, ledger.WrapError("payroll", "distribute", "commit", err)
	}
	return result, nil
}

// Rollback reverses every SALARY row of batchID and deletes the batch. Concurrent calls for the
// same batch share a single execution, which runs to completion even when a caller's context is
// cancelled. A cancelled caller returns ctx.Err() without waiting.
func (service *Service) Rollback(ctx context.Context, batchID string) (RollbackResult, error) {
	if batchID == "" {
		return RollbackResult{}, fmt.Errorf("%w: empty batch id", ledger.ErrUnknownBatch)
	}
	flight := service.rollbacks.DoChan(batchID, func() (any, error) {
		return service.rollback(context.WithoutCancel(ctx), batchID)
	})
	select {
	case <-ctx.Done():
		return RollbackResult{}, ctx.Err()
	case outcome := <-flight:
		if outcome.Err != nil {
			return RollbackResult{}, outcome.Err
		}
		return outcome.Val.(RollbackResult), nil
	}
}

func (service *Service) rollback(ctx context.Context, batchID string) (RollbackResult, error) {
	var result RollbackResult
	err := ledger.RunInTx(ctx, service.store, service.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		result = RollbackResult{BatchID: batchID}
		rows, err := txStore.ListTransactionsByBatch(ctx, batchID, ledger.TransactionSalary)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownBatch, batchID)
		}
		for _, owed := range owedByReceiver(rows) {
			reclaimed, err := service.reclaim(ctx, txStore, owed)
			if err != nil {
				return err
			}
			result.Reclaimed = append(result.Reclaimed, Payout{UserID: owed.UserID, Amount: reclaimed})
			result.Total += reclaimed
			result.Shortfall += owed.Amount - reclaimed
		}
		deleted, err := txStore.DeleteTransactionsByBatch(ctx, batchID)
		if err != nil {
			return err
		}
		result.Rows = deleted
		return nil
	})
	ledger.LogOperation(ctx, service.logger, ledger.OperationLog{
		Operation: operationRollback,
		Amount:    result.Total,
		Type:      ledger.TransactionSalary,
		BatchID:   batchID,
		Detail:    fmt.Sprintf("policy=%s shortfall=%d", service.debitPolicy, result.Shortfall),
		Error:     err,
	})
	if err != nil {
		return RollbackResult{}, err
	}
	return result, nil
}

func (service *Service) reclaim(ctx context.Context, txStore ledger.Store, owed Payout) (int64, error) {
	if service.debitPolicy == Strict {
		if _, err := txStore.DecrementBalance(ctx, owed.UserID, owed.Amount); err != nil {
			return 0, err
		}
		return owed.Amount, nil
	}
	account, err := txStore.GetOrCreateAccount(ctx, owed.UserID)
	if err != nil {
		return 0, err
	}
	taken := min(account.Balance, owed.Amount)
	if taken <= 0 {
		return 0, nil
	}
	if err := txStore.CompareAndSetBalance(ctx, owed.UserID, account.Balance, account.Balance-taken); err != nil {
		return 0, err
	}
	return taken, nil
}

func owedByReceiver(rows []ledger.Transaction) []Payout {
	positions := make(map[ledger.UserID]int, len(rows))
	owed := make([]Payout, 0, len(rows))
	for _, row := range rows {
		position, ok := positions[row.ReceiverID]
		if !ok {
			positions[row.ReceiverID] = len(owed)
			owed = append(owed, Payout{UserID: row.ReceiverID, Amount: row.Amount})
			continue
		}
		owed[position].Amount += row.Amount
	}
	return owed
}

// Package accrual turns voice presence into time-based rewards.
package accrual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/keylock"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"golang.org/x/sync/errgroup"
)

const (
	operationStart              = "accrual.start"
	operationSettle             = "accrual.settle"
	operationRecover            = "accrual.recover"
	defaultRecoveryDelay        = 10 * time.Second
	defaultRecoveryConcurrency  = 4
	rewardDescriptionTemplate   = "voice presence %ds"
	recoveryDetailTemplate      = "scanned=%d settled=%d open=%d failed=%d"
	eligibilityDetailTemplate   = "eligibility lookup failed"
	settlementListenerOperation = "accrual.notify"
)

// EligibilityChecker reports whether a user still qualifies for accrual.
type EligibilityChecker interface {
	Eligible(ctx context.Context, userID ledger.UserID) (bool, error)
}

// EligibilityFunc adapts a function to EligibilityChecker.
type EligibilityFunc func(ctx context.Context, userID ledger.UserID) (bool, error)

// Eligible calls fn.
func (fn EligibilityFunc) Eligible(ctx context.Context, userID ledger.UserID) (bool, error) {
	return fn(ctx, userID)
}

// NeverEligible settles every lingering session during recovery.
var NeverEligible EligibilityChecker = EligibilityFunc(func(context.Context, ledger.UserID) (bool, error) {
	return false, nil
})

// Settlement describes one closed session.
type Settlement struct {
	UserID        ledger.UserID
	JoinedUnixUTC int64
	EndedUnixUTC  int64
	Elapsed       time.Duration
	Reward        int64
	Period        string
	Balance       int64
}

// SettlementListener is told about each committed settlement.
type SettlementListener interface {
	SessionSettled(ctx context.Context, settlement Settlement) error
}

// RecoveryReport summarises a RecoverPending pass.
type RecoveryReport struct {
	Scanned  int
	Settled  int
	LeftOpen int
	Failed   int
	Rewarded int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRateFunc supplies the current reward per minute. Non-positive values pay nothing.
func WithRateFunc(rate func(ctx context.Context) int64) Option {
	return func(tracker *Tracker) {
		if rate != nil {
			tracker.rateFn = rate
		}
	}
}

// WithRecoveryDelay sets how long RecoverPending waits for presence state to settle.
func WithRecoveryDelay(delay time.Duration) Option {
	return func(tracker *Tracker) {
		tracker.recoveryDelay = delay
	}
}

// WithRecoveryConcurrency bounds parallel settlements during recovery.
func WithRecoveryConcurrency(limit int) Option {
	return func(tracker *Tracker) {
		if limit > 0 {
			tracker.recoveryConcurrency = limit
		}
	}
}

// WithSettlementListener wires an audit sink for settlements.
func WithSettlementListener(listener SettlementListener) Option {
	return func(tracker *Tracker) {
		tracker.listener = listener
	}
}

// WithOperationLogger wires the operation log.
func WithOperationLogger(logger ledger.OperationLogger) Option {
	return func(tracker *Tracker) {
		tracker.logger = logger
	}
}

// WithRetryPolicy overrides the conflict retry policy.
func WithRetryPolicy(policy ledger.RetryPolicy) Option {
	return func(tracker *Tracker) {
		tracker.retryPolicy = policy
	}
}

// Tracker moves users between Idle and Accruing and pays out on settlement.
type Tracker struct {
	store               ledger.Store
	nowFn               func() int64
	rateFn              func(ctx context.Context) int64
	recoveryDelay       time.Duration
	recoveryConcurrency int
	listener            SettlementListener
	logger              ledger.OperationLogger
	retryPolicy         ledger.RetryPolicy
	users               *keylock.Set
}

// NewTracker wires a Tracker.
func NewTracker(store ledger.Store, now func() int64, options ...Option) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ledger.ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ledger.ErrInvalidServiceConfig)
	}
	tracker := &Tracker{
		store:               store,
		nowFn:               now,
		rateFn:              func(context.Context) int64 { return defaultRatePerMinute },
		recoveryDelay:       defaultRecoveryDelay,
		recoveryConcurrency: defaultRecoveryConcurrency,
		retryPolicy:         ledger.DefaultRetryPolicy(),
		users:               keylock.New(),
	}
	for _, option := range options {
		if option != nil {
			option(tracker)
		}
	}
	return tracker, nil
}

// Start opens a session for userID at the current time. It reports false when one was already open.
func (tracker *Tracker) Start(ctx context.Context, userID ledger.UserID) (bool, error) {
	if err := validateUser(userID); err != nil {
		return false, err
	}
	unlock := tracker.users.Lock(userID.String())
	defer unlock()

	var opened bool
	err := tracker.retryPolicy.Run(ctx, func(ctx context.Context) error {
		inserted, err := tracker.store.InsertVoiceSession(ctx, ledger.VoiceSession{UserID: userID, JoinedUnixUTC: tracker.nowFn()})
		if err != nil {
			return err
		}
		opened = inserted
		return nil
	})
	if err != nil || opened {
		ledger.LogOperation(ctx, tracker.logger, ledger.OperationLog{Operation: operationStart, UserID: userID, Error: err})
	}
	if err != nil {
		return false, ledger.WrapError("accrual", "start", "insert", err)
	}
	return opened, nil
}

// Settle closes the session of userID at the current time.
func (tracker *Tracker) Settle(ctx context.Context, userID ledger.UserID) (Settlement, error) {
	return tracker.SettleAt(ctx, userID, tracker.nowFn())
}

// SettleAt closes the session of userID as of endUnixUTC, credits the reward and adds the elapsed
// time to the period statistics in one store transaction. It returns ledger.ErrNoActiveSession when
// the user is idle.
func (tracker *Tracker) SettleAt(ctx context.Context, userID ledger.UserID, endUnixUTC int64) (Settlement, error) {
	if err := validateUser(userID); err != nil {
		return Settlement{}, err
	}
	unlock := tracker.users.Lock(userID.String())
	defer unlock()

	rate := tracker.rateFn(ctx)
	var settlement Settlement
	err := ledger.RunInTx(ctx, tracker.store, tracker.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		session, err := txStore.GetVoiceSession(ctx, userID)
		if err != nil {
			return err
		}
		if err := txStore.DeleteVoiceSession(ctx, userID); err != nil {
			return err
		}
		settlement = Settlement{
			UserID:        userID,
			JoinedUnixUTC: session.JoinedUnixUTC,
			EndedUnixUTC:  endUnixUTC,
			Elapsed:       time.Duration(max(endUnixUTC-session.JoinedUnixUTC, 0)) * time.Second,
			Period:        ledger.PeriodTag(endUnixUTC),
		}
		settlement.Reward = ComputeReward(settlement.Elapsed, rate)
		if settlement.Reward > 0 {
			amount, err := ledger.NewPositiveAmount(settlement.Reward)
			if err != nil {
				return err
			}
			account, err := ledger.ApplyCredit(ctx, txStore, ledger.Mutation{
				UserID:         userID,
				Amount:         amount,
				Type:           ledger.TransactionVoiceReward,
				PeriodTag:      settlement.Period,
				Description:    fmt.Sprintf(rewardDescriptionTemplate, int64(settlement.Elapsed/time.Second)),
				CreatedUnixUTC: endUnixUTC,
			})
			if err != nil {
				return err
			}
			settlement.Balance = account.Balance
		}
		if seconds := int64(settlement.Elapsed / time.Second); seconds > 0 {
			return txStore.AddVoiceSeconds(ctx, userID, settlement.Period, seconds)
		}
		return nil
	})
	if errors.Is(err, ledger.ErrNoActiveSession) {
		return Settlement{}, err
	}
	ledger.LogOperation(ctx, tracker.logger, ledger.OperationLog{
		Operation: operationSettle,
		UserID:    userID,
		Amount:    settlement.Reward,
		Type:      ledger.TransactionVoiceReward,
		Detail:    fmt.Sprintf("elapsed=%s rate=%d", settlement.Elapsed, rate),
		Error:     err,
	})
	if err != nil {
		return Settlement{}, ledger.WrapError("accrual", "settle", "commit", err)
	}
	if tracker.listener != nil {
		if notifyErr := tracker.listener.SessionSettled(ctx, settlement); notifyErr != nil {
			ledger.LogOperation(ctx, tracker.logger, ledger.OperationLog{
				Operation: settlementListenerOperation,
				UserID:    userID,
				Amount:    settlement.Reward,
				Error:     notifyErr,
			})
		}
	}
	return settlement, nil
}

// RecoverPending waits for the recovery delay, then settles every lingering session whose user
// is no longer eligible. Sessions with a failed eligibility lookup stay open.
func (tracker *Tracker) RecoverPending(ctx context.Context, checker EligibilityChecker) (RecoveryReport, error) {
	if checker == nil {
		checker = NeverEligible
	}
	if err := sleep(ctx, tracker.recoveryDelay); err != nil {
		return RecoveryReport{}, err
	}
	sessions, err := tracker.store.ListVoiceSessions(ctx)
	if err != nil {
		return RecoveryReport{}, ledger.WrapError("accrual", "recover", "list", err)
	}

	var (
		report RecoveryReport
		mu     sync.Mutex
	)
	report.Scanned = len(sessions)
	record := func(apply func(*RecoveryReport)) {
		mu.Lock()
		defer mu.Unlock()
		apply(&report)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(tracker.recoveryConcurrency)
	for _, session := range sessions {
		session := session
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			eligible, err := checker.Eligible(groupCtx, session.UserID)
			if err != nil {
				ledger.LogOperation(groupCtx, tracker.logger, ledger.OperationLog{
					Operation: operationRecover,
					UserID:    session.UserID,
					Detail:    eligibilityDetailTemplate,
					Error:     err,
				})
				record(func(report *RecoveryReport) { report.LeftOpen++ })
				return nil
			}
			if eligible {
				record(func(report *RecoveryReport) { report.LeftOpen++ })
				return nil
			}
			settlement, err := tracker.Settle(groupCtx, session.UserID)
			switch {
			case errors.Is(err, ledger.ErrNoActiveSession):
			case err != nil:
				record(func(report *RecoveryReport) { report.Failed++ })
			default:
				record(func(report *RecoveryReport) {
					report.Settled++
					report.Rewarded += settlement.Reward
				})
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}
	ledger.LogOperation(ctx, tracker.logger, ledger.OperationLog{
		Operation: operationRecover,
		Amount:    report.Rewarded,
		Detail:    fmt.Sprintf(recoveryDetailTemplate, report.Scanned, report.Settled, report.LeftOpen, report.Failed),
	})
	return report, nil
}

func validateUser(userID ledger.UserID) error {
	if userID.IsZero() {
		return fmt.Errorf("%w: empty value", ledger.ErrInvalidUserID)
	}
	if userID.IsSystem() {
		return fmt.Errorf("%w: %s", ledger.ErrDisallowedAccount, userID.String())
	}
	return nil
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	sqliteBusyCode             = 5
	sqliteLockedCode           = 6
	errorOperationStore        = "store"
	errorSubjectAccount        = "account"
	errorSubjectTransaction    = "transaction"
	errorSubjectVoiceSession   = "voice_session"
	errorSubjectVoiceStats     = "voice_stats"
	errorSubjectGamblingState  = "gambling_state"
	errorSubjectJackpot        = "jackpot"
	errorSubjectLottery        = "lottery_ticket"
	errorSubjectConfig         = "config"
	errorSubjectTx             = "tx"
	errorCodeCommit            = "commit"
	errorCodeCompareAndSet     = "compare_and_set"
	errorCodeDebit             = "debit"
	errorCodeDelete            = "delete"
	errorCodeDrain             = "drain"
	errorCodeGet               = "get"
	errorCodeIncrement         = "increment"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeLookup            = "lookup"
	errorCodeSave              = "save"
	errorCodeSeed              = "seed"
	jackpotPoolName            = "main"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db   *gorm.DB
	inTx bool
}

var _ ledger.Store = (*Store)(nil)

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Nested calls reuse the open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	var fnErr error
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		fnErr = fn(ctx, &Store{db: transaction, inTx: true})
		return fnErr
	})
	if err == nil || errors.Is(err, fnErr) {
		return err
	}
	return wrapStoreError(errorSubjectTx, errorCodeCommit, classify(err))
}

func (store *Store) GetOrCreateAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	db := store.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Account{UserID: userID.String()}).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, classify(err))
	}
	return store.loadAccount(ctx, userID)
}

func (store *Store) IncrementBalance(ctx context.Context, userID ledger.UserID, amount int64, earned int64) (ledger.Account, error) {
	row := Account{UserID: userID.String(), Balance: amount, TotalEarned: earned}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"balance":      gorm.Expr("accounts.balance + ?", amount),
				"total_earned": gorm.Expr("accounts.total_earned + ?", earned),
				"updated_at":   time.Now().UTC(),
			}),
		}).
		Create(&row).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeIncrement, classify(err))
	}
	return store.loadAccount(ctx, userID)
}

func (store *Store) DecrementBalance(ctx context.Context, userID ledger.UserID, amount int64) (ledger.Account, error) {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ? AND balance >= ?", userID.String(), amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeDebit, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeDebit, ledger.ErrInsufficientFunds)
	}
	return store.loadAccount(ctx, userID)
}

func (store *Store) CompareAndSetBalance(ctx context.Context, userID ledger.UserID, expected int64, next int64) error {
	if next < 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeCompareAndSet, ledger.ErrInsufficientFunds)
	}
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ? AND balance = ?", userID.String(), expected).
		Update("balance", next)
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCompareAndSet, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeCompareAndSet, ledger.ErrPersistenceConflict)
	}
	return nil
}

func (store *Store) loadAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var row Account
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&row).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, classify(err))
	}
	return mapAccount(row)
}

func mapAccount(row Account) (ledger.Account, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return ledger.Account{UserID: userID, Balance: row.Balance, TotalEarned: row.TotalEarned}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

// classify maps driver-level contention errors onto ledger.ErrPersistenceConflict.
func classify(err error) error {
	if isBusy(err) {
		return fmt.Errorf("%w: %v", ledger.ErrPersistenceConflict, err)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & 0xFF
		return primary == sqliteBusyCode || primary == sqliteLockedCode
	}
	return false
}

func timeFromUnix(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unixUTC, 0).UTC()
}

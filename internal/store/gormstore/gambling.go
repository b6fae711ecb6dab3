package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) GetGamblingState(ctx context.Context, userID ledger.UserID) (ledger.GamblingState, error) {
	var row GamblingState
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.GamblingState{UserID: userID}, nil
	}
	if err != nil {
		return ledger.GamblingState{}, wrapStoreError(errorSubjectGamblingState, errorCodeGet, classify(err))
	}
	return ledger.GamblingState{UserID: userID, ConsecutiveNonWins: row.ConsecutiveNonWins}, nil
}

func (store *Store) SaveGamblingState(ctx context.Context, state ledger.GamblingState) error {
	row := GamblingState{UserID: state.UserID.String(), ConsecutiveNonWins: state.ConsecutiveNonWins, UpdatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"consecutive_non_wins", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectGamblingState, errorCodeSave, classify(err))
	}
	return nil
}

func (store *Store) EnsureJackpot(ctx context.Context, seed int64) error {
	row := JackpotPool{Name: jackpotPoolName, Balance: seed}
	if err := store.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectJackpot, errorCodeSeed, classify(err))
	}
	return nil
}

func (store *Store) GetJackpot(ctx context.Context) (int64, error) {
	var row JackpotPool
	err := store.db.WithContext(ctx).Where("name = ?", jackpotPoolName).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeGet, ledger.ErrJackpotMissing)
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeGet, classify(err))
	}
	return row.Balance, nil
}

func (store *Store) IncrementJackpot(ctx context.Context, amount int64) (int64, error) {
	result := store.db.WithContext(ctx).
		Model(&JackpotPool{}).
		Where("name = ?", jackpotPoolName).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeIncrement, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeIncrement, ledger.ErrJackpotMissing)
	}
	return store.GetJackpot(ctx)
}

func (store *Store) DrainJackpot(ctx context.Context, reseed int64) (int64, error) {
	observed, err := store.GetJackpot(ctx)
	if err != nil {
		return 0, err
	}
	result := store.db.WithContext(ctx).
		Model(&JackpotPool{}).
		Where("name = ? AND balance = ?", jackpotPoolName, observed).
		Update("balance", reseed)
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeDrain, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeDrain, ledger.ErrPersistenceConflict)
	}
	return observed, nil
}

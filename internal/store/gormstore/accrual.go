package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) InsertVoiceSession(ctx context.Context, session ledger.VoiceSession) (bool, error) {
	row := VoiceTracking{UserID: session.UserID.String(), JoinedAt: timeFromUnix(session.JoinedUnixUTC)}
	result := store.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectVoiceSession, errorCodeInsert, classify(result.Error))
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) GetVoiceSession(ctx context.Context, userID ledger.UserID) (ledger.VoiceSession, error) {
	var row VoiceTracking
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.VoiceSession{}, wrapStoreError(errorSubjectVoiceSession, errorCodeGet, ledger.ErrNoActiveSession)
		}
		return ledger.VoiceSession{}, wrapStoreError(errorSubjectVoiceSession, errorCodeGet, classify(err))
	}
	return ledger.VoiceSession{UserID: userID, JoinedUnixUTC: row.JoinedAt.Unix()}, nil
}

func (store *Store) DeleteVoiceSession(ctx context.Context, userID ledger.UserID) error {
	result := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Delete(&VoiceTracking{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectVoiceSession, errorCodeDelete, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectVoiceSession, errorCodeDelete, ledger.ErrNoActiveSession)
	}
	return nil
}

func (store *Store) ListVoiceSessions(ctx context.Context) ([]ledger.VoiceSession, error) {
	var rows []VoiceTracking
	if err := store.db.WithContext(ctx).Order("joined_at ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectVoiceSession, errorCodeList, classify(err))
	}
	sessions := make([]ledger.VoiceSession, 0, len(rows))
	for _, row := range rows {
		userID, err := ledger.NewUserID(row.UserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectVoiceSession, errorCodeInvalid, err)
		}
		sessions = append(sessions, ledger.VoiceSession{UserID: userID, JoinedUnixUTC: row.JoinedAt.Unix()})
	}
	return sessions, nil
}

func (store *Store) AddVoiceSeconds(ctx context.Context, userID ledger.UserID, period string, seconds int64) error {
	row := VoiceStat{UserID: userID.String(), Period: period, TotalSeconds: seconds}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "period"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_seconds": gorm.Expr("voice_stats.total_seconds + ?", seconds),
			}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectVoiceStats, errorCodeSave, classify(err))
	}
	return nil
}

func (store *Store) GetVoiceStats(ctx context.Context, userID ledger.UserID, period string) (ledger.VoiceStats, error) {
	var row VoiceStat
	err := store.db.WithContext(ctx).Where("user_id = ? AND period = ?", userID.String(), period).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.VoiceStats{UserID: userID, Period: period}, nil
	}
	if err != nil {
		return ledger.VoiceStats{}, wrapStoreError(errorSubjectVoiceStats, errorCodeGet, classify(err))
	}
	return ledger.VoiceStats{UserID: userID, Period: period, TotalSeconds: row.TotalSeconds}, nil
}

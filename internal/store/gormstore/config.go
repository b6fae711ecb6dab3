package gormstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

const defaultConfigJSON = "null"

func (store *Store) ListConfig(ctx context.Context) ([]ledger.ConfigEntry, error) {
	var rows []ServerConfig
	if err := store.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectConfig, errorCodeList, classify(err))
	}
	entries := make([]ledger.ConfigEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, ledger.ConfigEntry{Key: row.Key, Value: []byte(row.Value)})
	}
	return entries, nil
}

func (store *Store) PutConfig(ctx context.Context, entry ledger.ConfigEntry) error {
	row := ServerConfig{Key: entry.Key, Value: datatypesJSON(entry.Value), UpdatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeSave, classify(err))
	}
	return nil
}

func datatypesJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte(defaultConfigJSON))
	}
	return datatypes.JSON(raw)
}

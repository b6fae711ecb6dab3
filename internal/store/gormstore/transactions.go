package gormstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
)

const insertBatchSize = 200

func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	row := toTransactionRow(transaction)
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, classify(err))
	}
	return nil
}

func (store *Store) InsertTransactions(ctx context.Context, transactions []ledger.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}
	rows := make([]Transaction, 0, len(transactions))
	for _, transaction := range transactions {
		rows = append(rows, toTransactionRow(transaction))
	}
	if err := store.db.WithContext(ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, classify(err))
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Transaction, error) {
	var rows []Transaction
	err := store.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID.String(), userID.String()).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, classify(err))
	}
	return mapTransactions(rows)
}

func (store *Store) ListTransactionsByBatch(ctx context.Context, batchID string, transactionType ledger.TransactionType) ([]ledger.Transaction, error) {
	var rows []Transaction
	err := store.db.WithContext(ctx).
		Where("batch_id = ? AND type = ?", batchID, transactionType.String()).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, classify(err))
	}
	return mapTransactions(rows)
}

func (store *Store) DeleteTransactionsByBatch(ctx context.Context, batchID string) (int64, error) {
	result := store.db.WithContext(ctx).Where("batch_id = ?", batchID).Delete(&Transaction{})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeDelete, classify(result.Error))
	}
	return result.RowsAffected, nil
}

func toTransactionRow(transaction ledger.Transaction) Transaction {
	var batchID *string
	if transaction.BatchID != "" {
		value := transaction.BatchID
		batchID = &value
	}
	return Transaction{
		SenderID:    transaction.SenderID.String(),
		ReceiverID:  transaction.ReceiverID.String(),
		Amount:      transaction.Amount,
		Type:        transaction.Type.String(),
		BatchID:     batchID,
		PeriodTag:   transaction.PeriodTag,
		Description: transaction.Description,
		CreatedAt:   timeFromUnix(transaction.CreatedUnixUTC),
	}
}

func mapTransactions(rows []Transaction) ([]ledger.Transaction, error) {
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func mapTransaction(row Transaction) (ledger.Transaction, error) {
	senderID, err := ledger.NewUserID(row.SenderID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	receiverID, err := ledger.NewUserID(row.ReceiverID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transactionType, err := ledger.ParseTransactionType(row.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	batchID := ""
	if row.BatchID != nil {
		batchID = *row.BatchID
	}
	return ledger.Transaction{
		ID:             row.TransactionID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Amount:         row.Amount,
		Type:           transactionType,
		BatchID:        batchID,
		PeriodTag:      row.PeriodTag,
		Description:    row.Description,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

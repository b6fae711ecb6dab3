package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
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
	errorSubjectSchema         = "schema"
	errorCodeBegin             = "begin"
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
	errorCodeMigrate           = "migrate"
	errorCodeSave              = "save"
	errorCodeSeed              = "seed"
	jackpotPoolName            = "main"
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ledger.Store using a pgx connection pool. Inside WithTx the same type
// runs every statement on the open transaction.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

var _ ledger.Store = (*Store)(nil)

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Migrate creates the schema when it is missing.
func (store *Store) Migrate(ctx context.Context) error {
	if _, err := store.db.Exec(ctx, sqlSchema); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeBegin, classify(err))
	}
	transactionStore := &Store{pool: store.pool, db: tx, inTx: true}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeCommit, classify(err))
	}
	return nil
}

func (store *Store) GetOrCreateAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var account accountRow
	err := store.db.QueryRow(ctx, sqlGetOrCreateAccount, userID.String()).Scan(&account.balance, &account.totalEarned)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, classify(err))
	}
	return account.toAccount(userID), nil
}

func (store *Store) IncrementBalance(ctx context.Context, userID ledger.UserID, amount int64, earned int64) (ledger.Account, error) {
	var account accountRow
	err := store.db.QueryRow(ctx, sqlIncrementBalance, userID.String(), amount, earned).Scan(&account.balance, &account.totalEarned)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeIncrement, classify(err))
	}
	return account.toAccount(userID), nil
}

func (store *Store) DecrementBalance(ctx context.Context, userID ledger.UserID, amount int64) (ledger.Account, error) {
	var account accountRow
	err := store.db.QueryRow(ctx, sqlDecrementBalance, userID.String(), amount).Scan(&account.balance, &account.totalEarned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeDebit, ledger.ErrInsufficientFunds)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeDebit, classify(err))
	}
	return account.toAccount(userID), nil
}

func (store *Store) CompareAndSetBalance(ctx context.Context, userID ledger.UserID, expected int64, next int64) error {
	if next < 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeCompareAndSet, ledger.ErrInsufficientFunds)
	}
	tag, err := store.db.Exec(ctx, sqlCompareAndSetBalance, userID.String(), expected, next)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCompareAndSet, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeCompareAndSet, ledger.ErrPersistenceConflict)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	_, err := store.db.Exec(ctx, sqlInsertTransaction, transactionArguments(transaction)...)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, classify(err))
	}
	return nil
}

func (store *Store) InsertTransactions(ctx context.Context, transactions []ledger.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, transaction := range transactions {
		batch.Queue(sqlInsertTransaction, transactionArguments(transaction)...)
	}
	return store.sendBatch(ctx, batch, len(transactions))
}

func (store *Store) sendBatch(ctx context.Context, batch *pgx.Batch, count int) error {
	var results pgx.BatchResults
	switch db := store.db.(type) {
	case pgx.Tx:
		results = db.SendBatch(ctx, batch)
	case *pgxpool.Pool:
		results = db.SendBatch(ctx, batch)
	default:
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, fmt.Errorf("unsupported querier %T", store.db))
	}
	for index := 0; index < count; index++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return wrapStoreError(errorSubjectTransaction, errorCodeInsert, classify(err))
		}
	}
	if err := results.Close(); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, classify(err))
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactions, userID.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, classify(err))
	}
	return collectTransactions(rows)
}

func (store *Store) ListTransactionsByBatch(ctx context.Context, batchID string, transactionType ledger.TransactionType) ([]ledger.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactionsByBatch, batchID, transactionType.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, classify(err))
	}
	return collectTransactions(rows)
}

func (store *Store) DeleteTransactionsByBatch(ctx context.Context, batchID string) (int64, error) {
	tag, err := store.db.Exec(ctx, sqlDeleteTransactionsByBatch, batchID)
	if err != nil {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeDelete, classify(err))
	}
	return tag.RowsAffected(), nil
}

func (store *Store) InsertVoiceSession(ctx context.Context, session ledger.VoiceSession) (bool, error) {
	tag, err := store.db.Exec(ctx, sqlInsertVoiceSession, session.UserID.String(), createdAt(session.JoinedUnixUTC))
	if err != nil {
		return false, wrapStoreError(errorSubjectVoiceSession, errorCodeInsert, classify(err))
	}
	return tag.RowsAffected() > 0, nil
}

func (store *Store) GetVoiceSession(ctx context.Context, userID ledger.UserID) (ledger.VoiceSession, error) {
	var joinedAt time.Time
	err := store.db.QueryRow(ctx, sqlGetVoiceSession, userID.String()).Scan(&joinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.VoiceSession{}, wrapStoreError(errorSubjectVoiceSession, errorCodeGet, ledger.ErrNoActiveSession)
	}
	if err != nil {
		return ledger.VoiceSession{}, wrapStoreError(errorSubjectVoiceSession, errorCodeGet, classify(err))
	}
	return ledger.VoiceSession{UserID: userID, JoinedUnixUTC: joinedAt.Unix()}, nil
}

func (store *Store) DeleteVoiceSession(ctx context.Context, userID ledger.UserID) error {
	tag, err := store.db.Exec(ctx, sqlDeleteVoiceSession, userID.String())
	if err != nil {
		return wrapStoreError(errorSubjectVoiceSession, errorCodeDelete, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectVoiceSession, errorCodeDelete, ledger.ErrNoActiveSession)
	}
	return nil
}

func (store *Store) ListVoiceSessions(ctx context.Context) ([]ledger.VoiceSession, error) {
	rows, err := store.db.Query(ctx, sqlListVoiceSessions)
	if err != nil {
		return nil, wrapStoreError(errorSubjectVoiceSession, errorCodeList, classify(err))
	}
	defer rows.Close()
	sessions := make([]ledger.VoiceSession, 0)
	for rows.Next() {
		var (
			userIDValue string
			joinedAt    time.Time
		)
		if err := rows.Scan(&userIDValue, &joinedAt); err != nil {
			return nil, wrapStoreError(errorSubjectVoiceSession, errorCodeList, err)
		}
		userID, err := ledger.NewUserID(userIDValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectVoiceSession, errorCodeInvalid, err)
		}
		sessions = append(sessions, ledger.VoiceSession{UserID: userID, JoinedUnixUTC: joinedAt.Unix()})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectVoiceSession, errorCodeList, classify(err))
	}
	return sessions, nil
}

func (store *Store) AddVoiceSeconds(ctx context.Context, userID ledger.UserID, period string, seconds int64) error {
	if _, err := store.db.Exec(ctx, sqlAddVoiceSeconds, userID.String(), period, seconds); err != nil {
		return wrapStoreError(errorSubjectVoiceStats, errorCodeSave, classify(err))
	}
	return nil
}

func (store *Store) GetVoiceStats(ctx context.Context, userID ledger.UserID, period string) (ledger.VoiceStats, error) {
	stats := ledger.VoiceStats{UserID: userID, Period: period}
	err := store.db.QueryRow(ctx, sqlGetVoiceStats, userID.String(), period).Scan(&stats.TotalSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return ledger.VoiceStats{}, wrapStoreError(errorSubjectVoiceStats, errorCodeGet, classify(err))
	}
	return stats, nil
}

func (store *Store) GetGamblingState(ctx context.Context, userID ledger.UserID) (ledger.GamblingState, error) {
	state := ledger.GamblingState{UserID: userID}
	err := store.db.QueryRow(ctx, sqlGetGamblingState, userID.String()).Scan(&state.ConsecutiveNonWins)
	if errors.Is(err, pgx.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return ledger.GamblingState{}, wrapStoreError(errorSubjectGamblingState, errorCodeGet, classify(err))
	}
	return state, nil
}

func (store *Store) SaveGamblingState(ctx context.Context, state ledger.GamblingState) error {
	if _, err := store.db.Exec(ctx, sqlSaveGamblingState, state.UserID.String(), state.ConsecutiveNonWins); err != nil {
		return wrapStoreError(errorSubjectGamblingState, errorCodeSave, classify(err))
	}
	return nil
}

func (store *Store) EnsureJackpot(ctx context.Context, seed int64) error {
	if _, err := store.db.Exec(ctx, sqlEnsureJackpot, jackpotPoolName, seed); err != nil {
		return wrapStoreError(errorSubjectJackpot, errorCodeSeed, classify(err))
	}
	return nil
}

func (store *Store) GetJackpot(ctx context.Context) (int64, error) {
	var balance int64
	err := store.db.QueryRow(ctx, sqlGetJackpot, jackpotPoolName).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeGet, ledger.ErrJackpotMissing)
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeGet, classify(err))
	}
	return balance, nil
}

func (store *Store) IncrementJackpot(ctx context.Context, amount int64) (int64, error) {
	var balance int64
	err := store.db.QueryRow(ctx, sqlIncrementJackpot, jackpotPoolName, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeIncrement, ledger.ErrJackpotMissing)
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeIncrement, classify(err))
	}
	return balance, nil
}

func (store *Store) DrainJackpot(ctx context.Context, reseed int64) (int64, error) {
	var drained int64
	err := store.db.QueryRow(ctx, sqlDrainJackpot, jackpotPoolName, reseed).Scan(&drained)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeDrain, ledger.ErrJackpotMissing)
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectJackpot, errorCodeDrain, classify(err))
	}
	return drained, nil
}

func (store *Store) InsertLotteryTickets(ctx context.Context, tickets []ledger.LotteryTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	userIDs := make([]string, 0, len(tickets))
	numbers := make([]int32, 0, len(tickets))
	created := make([]time.Time, 0, len(tickets))
	for _, ticket := range tickets {
		userIDs = append(userIDs, ticket.UserID.String())
		numbers = append(numbers, int32(ticket.Number))
		created = append(created, createdAt(ticket.CreatedUnixUTC))
	}
	if _, err := store.db.Exec(ctx, sqlInsertLotteryTickets, userIDs, numbers, created); err != nil {
		return wrapStoreError(errorSubjectLottery, errorCodeInsert, classify(err))
	}
	return nil
}

func (store *Store) ListLotteryTickets(ctx context.Context, userID ledger.UserID) ([]ledger.LotteryTicket, error) {
	rows, err := store.db.Query(ctx, sqlListLotteryTickets, userID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectLottery, errorCodeList, classify(err))
	}
	return collectTickets(rows)
}

func (store *Store) ListLotteryTicketsByNumber(ctx context.Context, number int) ([]ledger.LotteryTicket, error) {
	rows, err := store.db.Query(ctx, sqlListLotteryTicketsByNumber, number)
	if err != nil {
		return nil, wrapStoreError(errorSubjectLottery, errorCodeList, classify(err))
	}
	return collectTickets(rows)
}

func (store *Store) CountLotteryTickets(ctx context.Context) (int64, error) {
	var count int64
	if err := store.db.QueryRow(ctx, sqlCountLotteryTickets).Scan(&count); err != nil {
		return 0, wrapStoreError(errorSubjectLottery, errorCodeList, classify(err))
	}
	return count, nil
}

func (store *Store) LotteryTicketAt(ctx context.Context, offset int64) (ledger.LotteryTicket, error) {
	rows, err := store.db.Query(ctx, sqlLotteryTicketAt, offset)
	if err != nil {
		return ledger.LotteryTicket{}, wrapStoreError(errorSubjectLottery, errorCodeGet, classify(err))
	}
	tickets, err := collectTickets(rows)
	if err != nil {
		return ledger.LotteryTicket{}, err
	}
	if len(tickets) == 0 {
		return ledger.LotteryTicket{}, wrapStoreError(errorSubjectLottery, errorCodeGet, ledger.ErrTicketMissing)
	}
	return tickets[0], nil
}

func (store *Store) ClearLotteryTickets(ctx context.Context) (int64, error) {
	tag, err := store.db.Exec(ctx, sqlClearLotteryTickets)
	if err != nil {
		return 0, wrapStoreError(errorSubjectLottery, errorCodeDelete, classify(err))
	}
	return tag.RowsAffected(), nil
}

func (store *Store) ListConfig(ctx context.Context) ([]ledger.ConfigEntry, error) {
	rows, err := store.db.Query(ctx, sqlListConfig)
	if err != nil {
		return nil, wrapStoreError(errorSubjectConfig, errorCodeList, classify(err))
	}
	defer rows.Close()
	entries := make([]ledger.ConfigEntry, 0)
	for rows.Next() {
		var entry ledger.ConfigEntry
		if err := rows.Scan(&entry.Key, &entry.Value); err != nil {
			return nil, wrapStoreError(errorSubjectConfig, errorCodeList, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectConfig, errorCodeList, classify(err))
	}
	return entries, nil
}

func (store *Store) PutConfig(ctx context.Context, entry ledger.ConfigEntry) error {
	value := entry.Value
	if len(value) == 0 {
		value = []byte("null")
	}
	if _, err := store.db.Exec(ctx, sqlPutConfig, entry.Key, string(value)); err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeSave, classify(err))
	}
	return nil
}

type accountRow struct {
	balance     int64
	totalEarned int64
}

func (row accountRow) toAccount(userID ledger.UserID) ledger.Account {
	return ledger.Account{UserID: userID, Balance: row.balance, TotalEarned: row.totalEarned}
}

func collectTransactions(rows pgx.Rows) ([]ledger.Transaction, error) {
	defer rows.Close()
	transactions := make([]ledger.Transaction, 0)
	for rows.Next() {
		var (
			transactionID   string
			senderIDValue   string
			receiverIDValue string
			amount          int64
			typeValue       string
			batchID         string
			periodTag       string
			description     string
			createdAtValue  time.Time
		)
		if err := rows.Scan(&transactionID, &senderIDValue, &receiverIDValue, &amount, &typeValue, &batchID, &periodTag, &description, &createdAtValue); err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
		}
		senderID, err := ledger.NewUserID(senderIDValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		receiverID, err := ledger.NewUserID(receiverIDValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactionType, err := ledger.ParseTransactionType(typeValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, ledger.Transaction{
			ID:             transactionID,
			SenderID:       senderID,
			ReceiverID:     receiverID,
			Amount:         amount,
			Type:           transactionType,
			BatchID:        batchID,
			PeriodTag:      periodTag,
			Description:    description,
			CreatedUnixUTC: createdAtValue.Unix(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, classify(err))
	}
	return transactions, nil
}

func collectTickets(rows pgx.Rows) ([]ledger.LotteryTicket, error) {
	defer rows.Close()
	tickets := make([]ledger.LotteryTicket, 0)
	for rows.Next() {
		var (
			id             int64
			userIDValue    string
			number         int32
			createdAtValue time.Time
		)
		if err := rows.Scan(&id, &userIDValue, &number, &createdAtValue); err != nil {
			return nil, wrapStoreError(errorSubjectLottery, errorCodeList, err)
		}
		userID, err := ledger.NewUserID(userIDValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLottery, errorCodeInvalid, err)
		}
		tickets = append(tickets, ledger.LotteryTicket{ID: id, UserID: userID, Number: int(number), CreatedUnixUTC: createdAtValue.Unix()})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectLottery, errorCodeList, classify(err))
	}
	return tickets, nil
}

func transactionArguments(transaction ledger.Transaction) []any {
	transactionID := transaction.ID
	if transactionID == "" {
		transactionID = uuid.NewString()
	}
	return []any{
		transactionID,
		transaction.SenderID.String(),
		transaction.ReceiverID.String(),
		transaction.Amount,
		transaction.Type.String(),
		transaction.BatchID,
		transaction.PeriodTag,
		transaction.Description,
		createdAt(transaction.CreatedUnixUTC),
	}
}

func createdAt(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unixUTC, 0).UTC()
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func classify(err error) error {
	if isConflict(err) {
		return fmt.Errorf("%w: %v", ledger.ErrPersistenceConflict, err)
	}
	return err
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	return false
}

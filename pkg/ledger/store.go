package ledger

import "context"

// AccountStore mutates balances. Every decrement is a conditional update; there is no
// read-then-write path that could drive a balance below zero.
type AccountStore interface {
	GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error)
	// IncrementBalance adds amount to the balance and earned to the lifetime counter,
	// creating the account when absent.
	IncrementBalance(ctx context.Context, userID UserID, amount int64, earned int64) (Account, error)
	// DecrementBalance subtracts amount only when balance >= amount and returns
	// ErrInsufficientFunds when no row matched.
	DecrementBalance(ctx context.Context, userID UserID, amount int64) (Account, error)
	// CompareAndSetBalance writes next only when the stored balance still equals expected
	// and returns ErrPersistenceConflict otherwise.
	CompareAndSetBalance(ctx context.Context, userID UserID, expected int64, next int64) error
}

// TransactionStore appends and reads the immutable transaction log.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, transaction Transaction) error
	InsertTransactions(ctx context.Context, transactions []Transaction) error
	ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error)
	ListTransactionsByBatch(ctx context.Context, batchID string, transactionType TransactionType) ([]Transaction, error)
	DeleteTransactionsByBatch(ctx context.Context, batchID string) (int64, error)
}

// AccrualStore persists presence sessions and their settled totals.
type AccrualStore interface {
	// InsertVoiceSession opens a session unless one exists and reports whether it inserted.
	InsertVoiceSession(ctx context.Context, session VoiceSession) (bool, error)
	GetVoiceSession(ctx context.Context, userID UserID) (VoiceSession, error)
	// DeleteVoiceSession returns ErrNoActiveSession when no row was removed.
	DeleteVoiceSession(ctx context.Context, userID UserID) error
	ListVoiceSessions(ctx context.Context) ([]VoiceSession, error)
	AddVoiceSeconds(ctx context.Context, userID UserID, period string, seconds int64) error
	GetVoiceStats(ctx context.Context, userID UserID, period string) (VoiceStats, error)
}

// GamblingStore persists pity counters and the shared jackpot pool.
type GamblingStore interface {
	GetGamblingState(ctx context.Context, userID UserID) (GamblingState, error)
	SaveGamblingState(ctx context.Context, state GamblingState) error
	// EnsureJackpot seeds the pool when it does not exist yet.
	EnsureJackpot(ctx context.Context, seed int64) error
	GetJackpot(ctx context.Context) (int64, error)
	// IncrementJackpot atomically adds amount and returns the new pool size.
	IncrementJackpot(ctx context.Context, amount int64) (int64, error)
	// DrainJackpot resets the pool to reseed and returns the amount it held.
	DrainJackpot(ctx context.Context, reseed int64) (int64, error)
}

// LotteryStore persists the tickets of the open lottery round.
type LotteryStore interface {
	InsertLotteryTickets(ctx context.Context, tickets []LotteryTicket) error
	// ListLotteryTickets returns the tickets held by userID ordered by number.
	ListLotteryTickets(ctx context.Context, userID UserID) ([]LotteryTicket, error)
	ListLotteryTicketsByNumber(ctx context.Context, number int) ([]LotteryTicket, error)
	CountLotteryTickets(ctx context.Context) (int64, error)
	// LotteryTicketAt returns the ticket at offset in insertion order.
	LotteryTicketAt(ctx context.Context, offset int64) (LotteryTicket, error)
	// ClearLotteryTickets closes the round and returns how many tickets it removed.
	ClearLotteryTickets(ctx context.Context) (int64, error)
}

// ConfigStore persists opaque server configuration values.
type ConfigStore interface {
	ListConfig(ctx context.Context) ([]ConfigEntry, error)
	PutConfig(ctx context.Context, entry ConfigEntry) error
}

// Store is the persistence contract shared by every service. WithTx runs fn in one
// atomic unit; an error from fn rolls back every write made through txStore.
type Store interface {
	AccountStore
	TransactionStore
	AccrualStore
	GamblingStore
	LotteryStore
	ConfigStore
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
}

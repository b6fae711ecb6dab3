package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
)

const (
	methodGetOrCreateAccount   = "GetOrCreateAccount"
	methodIncrementBalance     = "IncrementBalance"
	methodDecrementBalance     = "DecrementBalance"
	methodCompareAndSetBalance = "CompareAndSetBalance"
	methodInsertTransaction    = "InsertTransaction"
	methodListTransactions     = "ListTransactions"
	methodWithTx               = "WithTx"
)

type stubState struct {
	accounts     map[UserID]Account
	transactions []Transaction
	nextID       int
}

func (state stubState) clone() stubState {
	accounts := make(map[UserID]Account, len(state.accounts))
	for key, value := range state.accounts {
		accounts[key] = value
	}
	transactions := make([]Transaction, len(state.transactions))
	copy(transactions, state.transactions)
	return stubState{accounts: accounts, transactions: transactions, nextID: state.nextID}
}

// stubStore keeps balances in memory and applies WithTx atomically by working on a copy.
type stubStore struct {
	mutex     *sync.Mutex
	state     *stubState
	failures  map[string]error
	inTx      bool
	conflicts *int
	txCount   *int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	conflicts := 0
	txCount := 0
	return &stubStore{
		mutex:     &sync.Mutex{},
		state:     &stubState{accounts: map[UserID]Account{}},
		failures:  map[string]error{},
		conflicts: &conflicts,
		txCount:   &txCount,
	}
}

func (store *stubStore) seed(userID UserID, balance int64) {
	store.state.accounts[userID] = Account{UserID: userID, Balance: balance}
}

func (store *stubStore) balance(userID UserID) int64 {
	return store.state.accounts[userID].Balance
}

func (store *stubStore) lock() func() {
	if store.inTx {
		return func() {}
	}
	store.mutex.Lock()
	return store.mutex.Unlock
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	*store.txCount++
	if err := store.failures[methodWithTx]; err != nil {
		return err
	}
	if *store.conflicts > 0 {
		*store.conflicts--
		return fmt.Errorf("%w: simulated", ErrPersistenceConflict)
	}
	working := store.state.clone()
	transactionStore := &stubStore{
		mutex:     store.mutex,
		state:     &working,
		failures:  store.failures,
		inTx:      true,
		conflicts: store.conflicts,
		txCount:   store.txCount,
	}
	if err := fn(ctx, transactionStore); err != nil {
		return err
	}
	*store.state = working
	return nil
}

func (store *stubStore) GetOrCreateAccount(_ context.Context, userID UserID) (Account, error) {
	defer store.lock()()
	if err := store.failures[methodGetOrCreateAccount]; err != nil {
		return Account{}, err
	}
	account, ok := store.state.accounts[userID]
	if !ok {
		account = Account{UserID: userID}
		store.state.accounts[userID] = account
	}
	return account, nil
}

func (store *stubStore) IncrementBalance(_ context.Context, userID UserID, amount int64, earned int64) (Account, error) {
	defer store.lock()()
	if err := store.failures[methodIncrementBalance]; err != nil {
		return Account{}, err
	}
	account := store.state.accounts[userID]
	account.UserID = userID
	account.Balance += amount
	account.TotalEarned += earned
	store.state.accounts[userID] = account
	return account, nil
}

func (store *stubStore) DecrementBalance(_ context.Context, userID UserID, amount int64) (Account, error) {
	defer store.lock()()
	if err := store.failures[methodDecrementBalance]; err != nil {
		return Account{}, err
	}
	account, ok := store.state.accounts[userID]
	if !ok || account.Balance < amount {
		return Account{}, ErrInsufficientFunds
	}
	account.Balance -= amount
	store.state.accounts[userID] = account
	return account, nil
}

func (store *stubStore) CompareAndSetBalance(_ context.Context, userID UserID, expected int64, next int64) error {
	defer store.lock()()
	if err := store.failures[methodCompareAndSetBalance]; err != nil {
		return err
	}
	account, ok := store.state.accounts[userID]
	if !ok || account.Balance != expected {
		return ErrPersistenceConflict
	}
	account.Balance = next
	store.state.accounts[userID] = account
	return nil
}

func (store *stubStore) InsertTransaction(_ context.Context, transaction Transaction) error {
	defer store.lock()()
	if err := store.failures[methodInsertTransaction]; err != nil {
		return err
	}
	store.state.nextID++
	transaction.ID = fmt.Sprintf("tx-%d", store.state.nextID)
	store.state.transactions = append(store.state.transactions, transaction)
	return nil
}

func (store *stubStore) InsertTransactions(ctx context.Context, transactions []Transaction) error {
	for _, transaction := range transactions {
		if err := store.InsertTransaction(ctx, transaction); err != nil {
			return err
		}
	}
	return nil
}

func (store *stubStore) ListTransactions(_ context.Context, userID UserID, limit int) ([]Transaction, error) {
	defer store.lock()()
	if err := store.failures[methodListTransactions]; err != nil {
		return nil, err
	}
	matches := make([]Transaction, 0)
	for index := len(store.state.transactions) - 1; index >= 0 && len(matches) < limit; index-- {
		transaction := store.state.transactions[index]
		if transaction.SenderID == userID || transaction.ReceiverID == userID {
			matches = append(matches, transaction)
		}
	}
	return matches, nil
}

func (store *stubStore) ListTransactionsByBatch(_ context.Context, batchID string, transactionType TransactionType) ([]Transaction, error) {
	defer store.lock()()
	matches := make([]Transaction, 0)
	for _, transaction := range store.state.transactions {
		if transaction.BatchID == batchID && transaction.Type == transactionType {
			matches = append(matches, transaction)
		}
	}
	sort.Slice(matches, func(left, right int) bool { return matches[left].ID < matches[right].ID })
	return matches, nil
}

func (store *stubStore) DeleteTransactionsByBatch(_ context.Context, batchID string) (int64, error) {
	defer store.lock()()
	kept := store.state.transactions[:0]
	var removed int64
	for _, transaction := range store.state.transactions {
		if transaction.BatchID == batchID {
			removed++
			continue
		}
		kept = append(kept, transaction)
	}
	store.state.transactions = kept
	return removed, nil
}

func (store *stubStore) InsertVoiceSession(context.Context, VoiceSession) (bool, error) {
	return false, nil
}

func (store *stubStore) GetVoiceSession(context.Context, UserID) (VoiceSession, error) {
	return VoiceSession{}, ErrNoActiveSession
}

func (store *stubStore) DeleteVoiceSession(context.Context, UserID) error {
	return ErrNoActiveSession
}

func (store *stubStore) ListVoiceSessions(context.Context) ([]VoiceSession, error) {
	return nil, nil
}

func (store *stubStore) AddVoiceSeconds(context.Context, UserID, string, int64) error {
	return nil
}

func (store *stubStore) GetVoiceStats(_ context.Context, userID UserID, period string) (VoiceStats, error) {
	return VoiceStats{UserID: userID, Period: period}, nil
}

func (store *stubStore) GetGamblingState(_ context.Context, userID UserID) (GamblingState, error) {
	return GamblingState{UserID: userID}, nil
}

func (store *stubStore) SaveGamblingState(context.Context, GamblingState) error {
	return nil
}

func (store *stubStore) EnsureJackpot(context.Context, int64) error {
	return nil
}

func (store *stubStore) GetJackpot(context.Context) (int64, error) {
	return 0, nil
}

func (store *stubStore) IncrementJackpot(_ context.Context, amount int64) (int64, error) {
	return amount, nil
}

func (store *stubStore) DrainJackpot(context.Context, int64) (int64, error) {
	return 0, nil
}

func (store *stubStore) InsertLotteryTickets(context.Context, []LotteryTicket) error {
	return nil
}

func (store *stubStore) ListLotteryTickets(context.Context, UserID) ([]LotteryTicket, error) {
	return nil, nil
}

func (store *stubStore) ListLotteryTicketsByNumber(context.Context, int) ([]LotteryTicket, error) {
	return nil, nil
}

func (store *stubStore) CountLotteryTickets(context.Context) (int64, error) {
	return 0, nil
}

func (store *stubStore) LotteryTicketAt(context.Context, int64) (LotteryTicket, error) {
	return LotteryTicket{}, ErrTicketMissing
}

func (store *stubStore) ClearLotteryTickets(context.Context) (int64, error) {
	return 0, nil
}

func (store *stubStore) ListConfig(context.Context) ([]ConfigEntry, error) {
	return nil, nil
}

func (store *stubStore) PutConfig(context.Context, ConfigEntry) error {
	return nil
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return fixedNowUnixUTC }, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

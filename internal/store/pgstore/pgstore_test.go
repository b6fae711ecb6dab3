package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresDSNEnv = "LUMENBANK_TEST_POSTGRES_DSN"

func TestClassifyMapsRetryableCodes(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "serialization", err: &pgconn.PgError{Code: pgSerializationFailureCode}, retryable: true},
		{name: "deadlock", err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: pgDeadlockDetectedCode}), retryable: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, retryable: false},
		{name: "plain", err: errors.New("boom"), retryable: false},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			classified := classify(testCase.err)
			if got := errors.Is(classified, ledger.ErrPersistenceConflict); got != testCase.retryable {
				test.Fatalf("expected retryable=%v, got %v (%v)", testCase.retryable, got, classified)
			}
		})
	}
}

func TestTransactionArgumentsFillDefaults(test *testing.T) {
	test.Parallel()
	arguments := transactionArguments(ledger.Transaction{
		SenderID:   ledger.SystemUserID,
		ReceiverID: ledger.SystemUserID,
		Amount:     5,
		Type:       ledger.TransactionBonus,
	})
	if _, err := uuid.Parse(arguments[0].(string)); err != nil {
		test.Fatalf("expected generated uuid, got %v", arguments[0])
	}
	created := arguments[len(arguments)-1].(time.Time)
	if time.Since(created) > time.Minute {
		test.Fatalf("expected current timestamp, got %v", created)
	}
}

func TestStoreAgainstPostgres(test *testing.T) {
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		test.Skipf("%s not set", postgresDSNEnv)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		test.Fatalf("connect: %v", err)
	}
	test.Cleanup(pool.Close)
	store := New(pool)
	if err := store.Migrate(ctx); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	userID, err := ledger.NewUserID("pg-" + uuid.NewString())
	if err != nil {
		test.Fatalf("user id: %v", err)
	}

	err = store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		if _, err := txStore.IncrementBalance(ctx, userID, 100, 100); err != nil {
			return err
		}
		return txStore.InsertTransaction(ctx, ledger.Transaction{
			SenderID: ledger.SystemUserID, ReceiverID: userID, Amount: 100, Type: ledger.TransactionBonus, PeriodTag: "2026-10",
		})
	})
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	if _, err := store.DecrementBalance(ctx, userID, 101); !errors.Is(err, ledger.ErrInsufficientFunds) {
		test.Fatalf("expected insufficient funds, got %v", err)
	}
	account, err := store.DecrementBalance(ctx, userID, 40)
	if err != nil {
		test.Fatalf("decrement: %v", err)
	}
	if account.Balance != 60 || account.TotalEarned != 100 {
		test.Fatalf("unexpected account: %+v", account)
	}
	history, err := store.ListTransactions(ctx, userID, 10)
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Type != ledger.TransactionBonus {
		test.Fatalf("unexpected history: %+v", history)
	}
}

func openTestPool(test *testing.T) *Store {
	test.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		test.Skipf("%s not set", postgresDSNEnv)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		test.Fatalf("connect: %v", err)
	}
	test.Cleanup(pool.Close)
	store := New(pool)
	if err := store.Migrate(ctx); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	return store
}

func TestGetOrCreateAccountUnderContention(test *testing.T) {
	store := openTestPool(test)
	ctx := context.Background()
	userID, err := ledger.NewUserID("pg-race-" + uuid.NewString())
	if err != nil {
		test.Fatalf("user id: %v", err)
	}

	const workers = 16
	var waitGroup sync.WaitGroup
	start := make(chan struct{})
	for index := 0; index < workers; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			<-start
			account, err := store.GetOrCreateAccount(ctx, userID)
			if err != nil {
				test.Errorf("get or create: %v", err)
				return
			}
			if account.Balance != 0 {
				test.Errorf("unexpected balance %d", account.Balance)
			}
		}()
	}
	close(start)
	waitGroup.Wait()
}

func TestLotteryTicketsAgainstPostgres(test *testing.T) {
	store := openTestPool(test)
	ctx := context.Background()
	userID, err := ledger.NewUserID("pg-lottery-" + uuid.NewString())
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	tickets := []ledger.LotteryTicket{{UserID: userID, Number: 999}, {UserID: userID, Number: 3}}
	if err := store.InsertLotteryTickets(ctx, tickets); err != nil {
		test.Fatalf("insert: %v", err)
	}
	held, err := store.ListLotteryTickets(ctx, userID)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(held) != 2 || held[0].Number != 3 || held[1].Number != 999 {
		test.Fatalf("unexpected tickets: %+v", held)
	}
}

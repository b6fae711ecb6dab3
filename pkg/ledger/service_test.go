package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

const (
	fixedNowUnixUTC      int64 = 1_760_000_000
	userIDValue                = "user-1"
	otherUserIDValue           = "user-2"
	errStoreMessage            = "store error"
	errorMismatchMessage       = "expected %v, got %v"
	balanceMismatchMessage     = "expected balance %d, got %d"
	transactionCountMessage    = "expected %d transactions, got %d"
	caseZeroAmount             = "zero amount"
	caseNegativeAmount         = "negative amount"
	caseIncrementFailure       = "increment failure"
	caseInsertFailure          = "insert failure"
	caseDecrementFailure       = "decrement failure"
	caseInsufficientFunds      = "insufficient funds"
	caseSystemAccountRejection = "system account"
)

var errStoreFailure = errors.New(errStoreMessage)

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf(errorMismatchMessage, ErrInvalidServiceConfig, err)
	}
	if _, err := NewService(newStubStore(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf(errorMismatchMessage, ErrInvalidServiceConfig, err)
	}
}

func TestBalanceCreatesAccountLazily(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	account, err := service.Balance(context.Background(), mustUserID(test, userIDValue))
	if err != nil {
		test.Fatalf("balance failed: %v", err)
	}
	if account.Balance != 0 || account.TotalEarned != 0 {
		test.Fatalf("expected empty account, got %+v", account)
	}
	if _, ok := store.state.accounts[mustUserID(test, userIDValue)]; !ok {
		test.Fatalf("expected account to be created")
	}
}

func TestCreditIncrementsBalanceAndRecordsTransaction(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, userIDValue)

	account, err := service.Credit(context.Background(), CreditRequest{UserID: userID, Amount: 250, Type: TransactionBonus, Description: "welcome"})
	if err != nil {
		test.Fatalf("credit failed: %v", err)
	}
	if account.Balance != 250 || account.TotalEarned != 250 {
		test.Fatalf("unexpected account: %+v", account)
	}
	if len(store.state.transactions) != 1 {
		test.Fatalf(transactionCountMessage, 1, len(store.state.transactions))
	}
	transaction := store.state.transactions[0]
	if transaction.SenderID != SystemUserID || transaction.ReceiverID != userID || transaction.Amount != 250 || transaction.Type != TransactionBonus {
		test.Fatalf("unexpected transaction: %+v", transaction)
	}
	if transaction.PeriodTag != PeriodTag(fixedNowUnixUTC) {
		test.Fatalf("expected period tag %s, got %s", PeriodTag(fixedNowUnixUTC), transaction.PeriodTag)
	}
}

func TestCreditRejectsInvalidInput(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		userID    UserID
		amount    int64
		configure func(store *stubStore)
		wantErr   error
	}{
		{name: caseZeroAmount, userID: UserID{value: userIDValue}, amount: 0, wantErr: ErrInvalidAmount},
		{name: caseNegativeAmount, userID: UserID{value: userIDValue}, amount: -5, wantErr: ErrInvalidAmount},
		{name: caseSystemAccountRejection, userID: SystemUserID, amount: 5, wantErr: ErrDisallowedAccount},
		{
			name:      caseIncrementFailure,
			userID:    UserID{value: userIDValue},
			amount:    5,
			configure: func(store *stubStore) { store.failures[methodIncrementBalance] = errStoreFailure },
			wantErr:   errStoreFailure,
		},
		{
			name:      caseInsertFailure,
			userID:    UserID{value: userIDValue},
			amount:    5,
			configure: func(store *stubStore) { store.failures[methodInsertTransaction] = errStoreFailure },
			wantErr:   errStoreFailure,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			if testCase.configure != nil {
				testCase.configure(store)
			}
			service := mustNewService(test, store)
			_, err := service.Credit(context.Background(), CreditRequest{UserID: testCase.userID, Amount: testCase.amount})
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatchMessage, testCase.wantErr, err)
			}
			if len(store.state.transactions) != 0 {
				test.Fatalf(transactionCountMessage, 0, len(store.state.transactions))
			}
			if store.balance(testCase.userID) != 0 {
				test.Fatalf(balanceMismatchMessage, 0, store.balance(testCase.userID))
			}
		})
	}
}

func TestDebitFailuresLeaveNoTrace(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		amount    int64
		configure func(store *stubStore)
		wantErr   error
	}{
		{name: caseZeroAmount, amount: 0, wantErr: ErrInvalidAmount},
		{name: caseInsufficientFunds, amount: 101, wantErr: ErrInsufficientFunds},
		{
			name:      caseDecrementFailure,
			amount:    10,
			configure: func(store *stubStore) { store.failures[methodDecrementBalance] = errStoreFailure },
			wantErr:   errStoreFailure,
		},
		{
			name:      caseInsertFailure,
			amount:    10,
			configure: func(store *stubStore) { store.failures[methodInsertTransaction] = errStoreFailure },
			wantErr:   errStoreFailure,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			userID := mustUserID(test, userIDValue)
			store.seed(userID, 100)
			if testCase.configure != nil {
				testCase.configure(store)
			}
			service := mustNewService(test, store)
			_, err := service.Debit(context.Background(), DebitRequest{UserID: userID, Amount: testCase.amount})
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatchMessage, testCase.wantErr, err)
			}
			if store.balance(userID) != 100 {
				test.Fatalf(balanceMismatchMessage, 100, store.balance(userID))
			}
			if len(store.state.transactions) != 0 {
				test.Fatalf(transactionCountMessage, 0, len(store.state.transactions))
			}
		})
	}
}

func TestDebitRecordsTransactionToSystem(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, userIDValue)
	store.seed(userID, 100)
	service := mustNewService(test, store)

	account, err := service.Debit(context.Background(), DebitRequest{UserID: userID, Amount: 40, Type: TransactionShop})
	if err != nil {
		test.Fatalf("debit failed: %v", err)
	}
	if account.Balance != 60 {
		test.Fatalf(balanceMismatchMessage, 60, account.Balance)
	}
	transaction := store.state.transactions[0]
	if transaction.SenderID != userID || transaction.ReceiverID != SystemUserID || transaction.Type != TransactionShop {
		test.Fatalf("unexpected transaction: %+v", transaction)
	}
}

func TestConcurrentDebitsNeverOverdraw(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, userIDValue)
	store.seed(userID, 1000)
	service := mustNewService(test, store)

	const workers = 25
	var waitGroup sync.WaitGroup
	var successMutex sync.Mutex
	successes := 0
	for index := 0; index < workers; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if _, err := service.Debit(context.Background(), DebitRequest{UserID: userID, Amount: 100}); err == nil {
				successMutex.Lock()
				successes++
				successMutex.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				test.Errorf("unexpected error: %v", err)
			}
		}()
	}
	waitGroup.Wait()
	if successes != 10 {
		test.Fatalf("expected 10 successful debits, got %d", successes)
	}
	if store.balance(userID) != 0 {
		test.Fatalf(balanceMismatchMessage, 0, store.balance(userID))
	}
}

func TestCreditRetriesPersistenceConflicts(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	*store.conflicts = 2
	service := mustNewService(test, store, WithRetryPolicy(RetryPolicy{MaxAttempts: 3}))
	userID := mustUserID(test, userIDValue)

	if _, err := service.Credit(context.Background(), CreditRequest{UserID: userID, Amount: 10}); err != nil {
		test.Fatalf("credit failed: %v", err)
	}
	if *store.txCount != 3 {
		test.Fatalf("expected 3 attempts, got %d", *store.txCount)
	}
	if store.balance(userID) != 10 {
		test.Fatalf(balanceMismatchMessage, 10, store.balance(userID))
	}
}

func TestHistoryNormalizesLimit(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, userIDValue)
	for index := 0; index < 3; index++ {
		if _, err := service.Credit(context.Background(), CreditRequest{UserID: userID, Amount: int64(index + 1)}); err != nil {
			test.Fatalf("credit failed: %v", err)
		}
	}
	transactions, err := service.History(context.Background(), userID, 0)
	if err != nil {
		test.Fatalf("history failed: %v", err)
	}
	if len(transactions) != 3 || transactions[0].Amount != 3 {
		test.Fatalf("unexpected history: %+v", transactions)
	}
	if _, err := service.History(context.Background(), userID, maxHistoryLimit+1); !errors.Is(err, ErrInvalidLimit) {
		test.Fatalf(errorMismatchMessage, ErrInvalidLimit, err)
	}
	store.failures[methodListTransactions] = errStoreFailure
	if _, err := service.History(context.Background(), userID, 5); !errors.Is(err, errStoreFailure) {
		test.Fatalf(errorMismatchMessage, errStoreFailure, err)
	}
}

func TestApplyDebitUpToCapsAtBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, userIDValue)
	store.seed(userID, 70)
	amount, _ := NewPositiveAmount(100)

	var taken int64
	err := store.WithTx(context.Background(), func(ctx context.Context, txStore Store) error {
		_, debited, err := ApplyDebitUpTo(ctx, txStore, Mutation{UserID: userID, Amount: amount, Type: TransactionDiceLoss})
		taken = debited
		return err
	})
	if err != nil {
		test.Fatalf("debit up to failed: %v", err)
	}
	if taken != 70 || store.balance(userID) != 0 {
		test.Fatalf("expected 70 taken and empty balance, got %d and %d", taken, store.balance(userID))
	}
	if store.state.transactions[0].Amount != 70 {
		test.Fatalf("expected recorded amount 70, got %d", store.state.transactions[0].Amount)
	}
}

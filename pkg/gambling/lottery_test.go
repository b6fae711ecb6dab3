package gambling

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
)

const sponsorIDValue = "sponsor"

func sponsoredBy(userID ledger.UserID) Option {
	return WithSponsorFunc(func(context.Context) (ledger.UserID, bool) { return userID, true })
}

func soldTickets(test *testing.T, store ledger.Store) int64 {
	test.Helper()
	count, err := store.CountLotteryTickets(context.Background())
	if err != nil {
		test.Fatalf("count tickets: %v", err)
	}
	return count
}

func TestBuyTicketsSplitsPrice(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name       string
		sponsored  bool
		sponsorCut int64
		poolFed    int64
	}{
		{name: "sponsor takes its cut", sponsored: true, sponsorCut: 1000, poolFed: 9000},
		{name: "no sponsor feeds the whole price", poolFed: 10000},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newTestStore(test)
			ctx := context.Background()
			playerID := mustUserID(test, playerIDValue)
			sponsorID := mustUserID(test, sponsorIDValue)
			fund(test, store, playerID, 20000)
			options := []Option{}
			if testCase.sponsored {
				options = append(options, sponsoredBy(sponsorID))
			}
			engine := mustEngine(test, store, []int{42, 7}, options...)

			purchase, err := engine.BuyTickets(ctx, TicketRequest{UserID: playerID, Count: 2})
			if err != nil {
				test.Fatalf("buy: %v", err)
			}
			if purchase.Cost != 10000 || purchase.SponsorCut != testCase.sponsorCut || purchase.PoolFed != testCase.poolFed || purchase.Held != 2 {
				test.Fatalf("unexpected purchase: %+v", purchase)
			}
			if purchase.Balance != 10000 || balance(test, store, playerID) != 10000 {
				test.Fatalf("expected price debited, got %d", purchase.Balance)
			}
			if balance(test, store, sponsorID) != testCase.sponsorCut {
				test.Fatalf("expected sponsor credited %d", testCase.sponsorCut)
			}
			status, err := engine.LotteryStatus(ctx, playerID)
			if err != nil {
				test.Fatalf("status: %v", err)
			}
			if status.Pool != testFloor+testCase.poolFed || status.TicketsSold != 2 {
				test.Fatalf("unexpected status: %+v", status)
			}
			if len(status.Numbers) != 2 || status.Numbers[0] != 7 || status.Numbers[1] != 42 {
				test.Fatalf("expected numbers ordered, got %v", status.Numbers)
			}
		})
	}
}

func TestBuyTicketsEnforcesLimit(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	playerID := mustUserID(test, playerIDValue)
	fund(test, store, playerID, 100000)
	config := testConfig()
	config.TicketLimit = 3
	engine := mustEngine(test, store, nil, WithConfig(config))

	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: playerID, Count: 2}); err != nil {
		test.Fatalf("buy: %v", err)
	}
	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: playerID, Count: 2}); !errors.Is(err, ErrTicketLimit) {
		test.Fatalf(expectedErrFmt, ErrTicketLimit, err)
	}
	for _, count := range []int{0, 4} {
		if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: playerID, Count: count}); !errors.Is(err, ledger.ErrInvalidAmount) {
			test.Fatalf(expectedErrFmt, ledger.ErrInvalidAmount, err)
		}
	}
	if balance(test, store, playerID) != 90000 || soldTickets(test, store) != 2 {
		test.Fatalf("rejected purchases must not charge or issue tickets")
	}

	poorID := mustUserID(test, "poor")
	fund(test, store, poorID, 4999)
	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: poorID, Count: 1}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		test.Fatalf(expectedErrFmt, ledger.ErrInsufficientFunds, err)
	}
	if soldTickets(test, store) != 2 {
		test.Fatalf("unfunded purchase issued tickets")
	}
}

func TestDrawLotteryCarriesPoolWithoutWinner(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	playerID := mustUserID(test, playerIDValue)
	fund(test, store, playerID, 5000)
	engine := mustEngine(test, store, []int{7, 500, 0})

	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: playerID, Count: 1}); err != nil {
		test.Fatalf("buy: %v", err)
	}
	draw, err := engine.DrawLottery(ctx, LotteryDrawRequest{})
	if err != nil {
		test.Fatalf("draw: %v", err)
	}
	if draw.Number != 500 || !draw.CarriedOver || draw.Drained != 0 || len(draw.Winners) != 0 {
		test.Fatalf("unexpected draw: %+v", draw)
	}
	if draw.Pool != testFloor+5000 || draw.TicketsSold != 1 {
		test.Fatalf("expected pool carried over, got %+v", draw)
	}
	if soldTickets(test, store) != 0 {
		test.Fatalf("expected tickets cleared after the draw")
	}
}

func TestDrawLotteryPaysPerTicket(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	firstID := mustUserID(test, "first")
	secondID := mustUserID(test, "second")
	thirdID := mustUserID(test, "third")
	for _, userID := range []ledger.UserID{firstID, secondID, thirdID} {
		fund(test, store, userID, 10000)
	}
	engine := mustEngine(test, store, []int{7, 7, 7, 8, 7, 0})

	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: firstID, Count: 2}); err != nil {
		test.Fatalf("buy: %v", err)
	}
	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: secondID, Count: 1}); err != nil {
		test.Fatalf("buy: %v", err)
	}
	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: thirdID, Count: 1}); err != nil {
		test.Fatalf("buy: %v", err)
	}
	draw, err := engine.DrawLottery(ctx, LotteryDrawRequest{})
	if err != nil {
		test.Fatalf("draw: %v", err)
	}
	if draw.Number != 7 || draw.CarriedOver || draw.Drained != testFloor+20000 || draw.Share != 7000 {
		test.Fatalf("unexpected draw: %+v", draw)
	}
	if len(draw.Winners) != 2 || draw.Winners[0].UserID != firstID || draw.Winners[0].Tickets != 2 || draw.Winners[0].Amount != 14000 {
		test.Fatalf("unexpected winners: %+v", draw.Winners)
	}
	if balance(test, store, firstID) != 14000 || balance(test, store, secondID) != 12000 || balance(test, store, thirdID) != 5000 {
		test.Fatalf("unexpected balances after draw")
	}
	if draw.Pool != testFloor || soldTickets(test, store) != 0 {
		test.Fatalf("expected reseeded pool and cleared tickets, got %+v", draw)
	}
}

func TestDrawLotteryForcedPicksSoldTicket(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	firstID := mustUserID(test, "first")
	secondID := mustUserID(test, "second")
	fund(test, store, firstID, 5000)
	fund(test, store, secondID, 5000)
	engine := mustEngine(test, store, []int{500, 1, 3, 9, 500, 1})

	if _, err := engine.DrawLottery(ctx, LotteryDrawRequest{Forced: true}); !errors.Is(err, ErrNoTickets) {
		test.Fatalf(expectedErrFmt, ErrNoTickets, err)
	}
	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: firstID, Count: 1}); err != nil {
		test.Fatalf("buy: %v", err)
	}
	if _, err := engine.BuyTickets(ctx, TicketRequest{UserID: secondID, Count: 1}); err != nil {
		test.Fatalf("buy: %v", err)
	}
	draw, err := engine.DrawLottery(ctx, LotteryDrawRequest{Forced: true})
	if err != nil {
		test.Fatalf("draw: %v", err)
	}
	if draw.Number != 9 || len(draw.Winners) != 1 || draw.Winners[0].UserID != secondID {
		test.Fatalf("expected the second sold ticket to win, got %+v", draw)
	}
	if balance(test, store, secondID) != testFloor+10000 {
		test.Fatalf("expected whole pool paid, got %d", balance(test, store, secondID))
	}
}

func TestScavenge(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		funds   int64
		roll    int
		found   int64
		wantErr error
	}{
		{name: "broke player finds coins", funds: 0, roll: 0, found: 500},
		{name: "ceiling is inclusive", funds: 500, roll: 1000, found: 1500},
		{name: "comfortable player is turned away", funds: 501, roll: 0, wantErr: ErrScavengeDenied},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newTestStore(test)
			playerID := mustUserID(test, playerIDValue)
			if testCase.funds > 0 {
				fund(test, store, playerID, testCase.funds)
			}
			engine := mustEngine(test, store, []int{testCase.roll})

			result, err := engine.Scavenge(context.Background(), playerID)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf(expectedErrFmt, testCase.wantErr, err)
				}
				if balance(test, store, playerID) != testCase.funds {
					test.Fatalf("denied scavenge moved funds")
				}
				return
			}
			if err != nil {
				test.Fatalf("scavenge: %v", err)
			}
			if result.Found != testCase.found || result.Balance != testCase.funds+testCase.found {
				test.Fatalf("unexpected scavenge: %+v", result)
			}
		})
	}
}

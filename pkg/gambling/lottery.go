package gambling

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
)

// TicketRequest buys Count lottery tickets with randomly drawn numbers.
type TicketRequest struct {
	UserID ledger.UserID
	Count  int
}

// TicketPurchase describes a committed purchase. PoolFed is the part of Cost that went to the jackpot.
type TicketPurchase struct {
	Numbers    []int
	Cost       int64
	SponsorID  ledger.UserID
	SponsorCut int64
	PoolFed    int64
	Held       int
	Balance    int64
}

// BuyTickets charges the ticket price, pays the sponsor cut and feeds the rest to the jackpot pool.
// Without a configured sponsor the whole price feeds the pool.
func (engine *Engine) BuyTickets(ctx context.Context, request TicketRequest) (TicketPurchase, error) {
	if err := validatePlayer(request.UserID); err != nil {
		return TicketPurchase{}, err
	}
	if request.Count <= 0 || request.Count > engine.config.TicketLimit {
		return TicketPurchase{}, fmt.Errorf("%w: ticket count must be between 1 and %d", ledger.ErrInvalidAmount, engine.config.TicketLimit)
	}
	sponsorID, hasSponsor := engine.sponsorFn(ctx)
	if hasSponsor && validatePlayer(sponsorID) != nil {
		hasSponsor = false
	}
	numbers := make([]int, request.Count)
	for index := range numbers {
		numbers[index] = engine.random.IntN(engine.config.LotteryNumbers)
	}
	cost := engine.config.TicketPrice * int64(request.Count)
	createdUnixUTC := engine.clock().Unix()

	release := engine.ticketBuyers.Lock(request.UserID.String())
	defer release()
	engine.lotteryMu.RLock()
	defer engine.lotteryMu.RUnlock()

	var purchase TicketPurchase
	err := ledger.RunInTx(ctx, engine.store, engine.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		purchase = TicketPurchase{Numbers: numbers, Cost: cost}
		held, err := txStore.ListLotteryTickets(ctx, request.UserID)
		if err != nil {
			return err
		}
		if len(held)+request.Count > engine.config.TicketLimit {
			return fmt.Errorf("%w: holding %d of %d", ErrTicketLimit, len(held), engine.config.TicketLimit)
		}
		account, err := applyDebit(ctx, txStore, request.UserID, cost, ledger.TransactionTicket, createdUnixUTC)
		if err != nil {
			return err
		}
		purchase.Balance = account.Balance
		if hasSponsor {
			purchase.SponsorID = sponsorID
			purchase.SponsorCut = cost * engine.config.SponsorCutPercent / percentDenominator
		}
		if purchase.SponsorCut > 0 {
			sponsor, err := applyCredit(ctx, txStore, sponsorID, purchase.SponsorCut, ledger.TransactionSponsorCut, createdUnixUTC)
			if err != nil {
				return err
			}
			if sponsorID == request.UserID {
				purchase.Balance = sponsor.Balance
			}
		}
		purchase.PoolFed = cost - purchase.SponsorCut
		if err := txStore.EnsureJackpot(ctx, engine.config.JackpotFloor); err != nil {
			return err
		}
		if purchase.PoolFed > 0 {
			if _, err := txStore.IncrementJackpot(ctx, purchase.PoolFed); err != nil {
				return err
			}
		}
		tickets := make([]ledger.LotteryTicket, len(numbers))
		for index, number := range numbers {
			tickets[index] = ledger.LotteryTicket{UserID: request.UserID, Number: number, CreatedUnixUTC: createdUnixUTC}
		}
		if err := txStore.InsertLotteryTickets(ctx, tickets); err != nil {
			return err
		}
		purchase.Held = len(held) + len(tickets)
		return nil
	})
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation:      operationTickets,
		UserID:         request.UserID,
		CounterpartyID: purchase.SponsorID,
		Amount:         cost,
		Type:           ledger.TransactionTicket,
		Detail:         fmt.Sprintf("tickets=%d sponsor_cut=%d pool=%d", request.Count, purchase.SponsorCut, purchase.PoolFed),
		Error:          err,
	})
	if err != nil {
		return TicketPurchase{}, ledger.WrapError("gambling", "lottery", "buy", err)
	}
	return purchase, nil
}

// LotteryDrawRequest runs a draw. Forced picks the winning number from a sold ticket.
type LotteryDrawRequest struct {
	Forced bool
}

// LotteryWinner is one player's share of a draw.
type LotteryWinner struct {
	UserID  ledger.UserID
	Tickets int
	Amount  int64
}

// LotteryDraw describes a committed draw. CarriedOver means nobody matched and the pool stays.
type LotteryDraw struct {
	Number      int
	Forced      bool
	TicketsSold int64
	Winners     []LotteryWinner
	Drained     int64
	Share       int64
	CarriedOver bool
	Pool        int64
}

// DrawLottery draws a number, pays every ticket holding it an equal share of the pool and clears the
// tickets. With no matching ticket the pool carries over to the next draw.
func (engine *Engine) DrawLottery(ctx context.Context, request LotteryDrawRequest) (LotteryDraw, error) {
	number := engine.random.IntN(engine.config.LotteryNumbers)
	pick := int64(engine.random.IntN(math.MaxInt32))
	createdUnixUTC := engine.clock().Unix()

	engine.lotteryMu.Lock()
	defer engine.lotteryMu.Unlock()

	var draw LotteryDraw
	err := ledger.RunInTx(ctx, engine.store, engine.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		draw = LotteryDraw{Number: number, Forced: request.Forced}
		if err := txStore.EnsureJackpot(ctx, engine.config.JackpotFloor); err != nil {
			return err
		}
		sold, err := txStore.CountLotteryTickets(ctx)
		if err != nil {
			return err
		}
		draw.TicketsSold = sold
		if request.Forced {
			if sold == 0 {
				return ErrNoTickets
			}
			ticket, err := txStore.LotteryTicketAt(ctx, pick%sold)
			if err != nil {
				return err
			}
			draw.Number = ticket.Number
		}
		matching, err := txStore.ListLotteryTicketsByNumber(ctx, draw.Number)
		if err != nil {
			return err
		}
		if len(matching) == 0 {
			draw.CarriedOver = true
		} else {
			if err := engine.payLotteryWinners(ctx, txStore, &draw, matching, createdUnixUTC); err != nil {
				return err
			}
		}
		if _, err := txStore.ClearLotteryTickets(ctx); err != nil {
			return err
		}
		pool, err := txStore.GetJackpot(ctx)
		if err != nil {
			return err
		}
		draw.Pool = pool
		return nil
	})
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation: operationLottery,
		Amount:    draw.Drained,
		Type:      ledger.TransactionJackpot,
		Detail:    fmt.Sprintf("number=%03d sold=%d winners=%d carried=%t", draw.Number, draw.TicketsSold, len(draw.Winners), draw.CarriedOver),
		Error:     err,
	})
	if err != nil {
		return LotteryDraw{}, ledger.WrapError("gambling", "lottery", "draw", err)
	}
	return draw, nil
}

// payLotteryWinners splits the drained pool per winning ticket. The indivisible remainder stays in the pool.
func (engine *Engine) payLotteryWinners(ctx context.Context, txStore ledger.Store, draw *LotteryDraw, matching []ledger.LotteryTicket, createdUnixUTC int64) error {
	drained, err := txStore.DrainJackpot(ctx, engine.config.JackpotFloor)
	if err != nil {
		return err
	}
	draw.Drained = drained
	draw.Share = drained / int64(len(matching))
	if remainder := drained - draw.Share*int64(len(matching)); remainder > 0 {
		if _, err := txStore.IncrementJackpot(ctx, remainder); err != nil {
			return err
		}
	}
	counts := make(map[ledger.UserID]int, len(matching))
	for _, ticket := range matching {
		counts[ticket.UserID]++
	}
	draw.Winners = make([]LotteryWinner, 0, len(counts))
	for userID, tickets := range counts {
		draw.Winners = append(draw.Winners, LotteryWinner{UserID: userID, Tickets: tickets, Amount: draw.Share * int64(tickets)})
	}
	sort.Slice(draw.Winners, func(left, right int) bool {
		return draw.Winners[left].UserID.String() < draw.Winners[right].UserID.String()
	})
	if draw.Share == 0 {
		return nil
	}
	for _, winner := range draw.Winners {
		if _, err := applyCredit(ctx, txStore, winner.UserID, winner.Amount, ledger.TransactionJackpot, createdUnixUTC); err != nil {
			return err
		}
	}
	return nil
}

// LotteryStatus is the pool, the tickets sold and the numbers one player holds.
type LotteryStatus struct {
	Pool        int64
	TicketsSold int64
	Numbers     []int
	TicketPrice int64
	TicketLimit int
}

// LotteryStatus reports the current round. A zero userID skips the per-player numbers.
func (engine *Engine) LotteryStatus(ctx context.Context, userID ledger.UserID) (LotteryStatus, error) {
	pool, err := engine.JackpotBalance(ctx)
	if err != nil {
		return LotteryStatus{}, ledger.WrapError("gambling", "lottery", "status", err)
	}
	sold, err := engine.store.CountLotteryTickets(ctx)
	if err != nil {
		return LotteryStatus{}, ledger.WrapError("gambling", "lottery", "status", err)
	}
	status := LotteryStatus{
		Pool:        pool,
		TicketsSold: sold,
		Numbers:     []int{},
		TicketPrice: engine.config.TicketPrice,
		TicketLimit: engine.config.TicketLimit,
	}
	if userID.IsZero() {
		return status, nil
	}
	tickets, err := engine.store.ListLotteryTickets(ctx, userID)
	if err != nil {
		return LotteryStatus{}, ledger.WrapError("gambling", "lottery", "status", err)
	}
	for _, ticket := range tickets {
		status.Numbers = append(status.Numbers, ticket.Number)
	}
	return status, nil
}

// ScavengeResult describes a committed scavenge.
type ScavengeResult struct {
	Found   int64
	Balance int64
}

// Scavenge pays a small random amount to a player holding at most the scavenge ceiling.
func (engine *Engine) Scavenge(ctx context.Context, userID ledger.UserID) (ScavengeResult, error) {
	if err := validatePlayer(userID); err != nil {
		return ScavengeResult{}, err
	}
	span := engine.config.ScavengeMax - engine.config.ScavengeMin + 1
	found := engine.config.ScavengeMin + int64(engine.random.IntN(int(span)))
	createdUnixUTC := engine.clock().Unix()

	var result ScavengeResult
	err := ledger.RunInTx(ctx, engine.store, engine.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		account, err := txStore.GetOrCreateAccount(ctx, userID)
		if err != nil {
			return err
		}
		if account.Balance > engine.config.ScavengeCeiling {
			return fmt.Errorf("%w: holding %d", ErrScavengeDenied, account.Balance)
		}
		// Pins the balance read above so a concurrent credit forces a retry.
		if err := txStore.CompareAndSetBalance(ctx, userID, account.Balance, account.Balance); err != nil {
			return err
		}
		credited, err := applyCredit(ctx, txStore, userID, found, ledger.TransactionScavenge, createdUnixUTC)
		if err != nil {
			return err
		}
		result = ScavengeResult{Found: found, Balance: credited.Balance}
		return nil
	})
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation: operationScavenge,
		UserID:    userID,
		Amount:    found,
		Type:      ledger.TransactionScavenge,
		Error:     err,
	})
	if err != nil {
		return ScavengeResult{}, ledger.WrapError("gambling", "scavenge", "credit", err)
	}
	return result, nil
}

// Package gambling implements the reel, ranked-hand, duel, fortune and jackpot games over a ledger store.
package gambling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/keylock"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/google/uuid"
)

const (
	operationSpin        = "gambling.spin"
	operationHand        = "gambling.hand"
	operationDuel        = "gambling.duel"
	operationFortune     = "gambling.fortune"
	operationJackpotDraw = "gambling.jackpot_draw"
	operationChallenge   = "gambling.duel_challenge"
	operationTickets     = "gambling.lottery_tickets"
	operationLottery     = "gambling.lottery_draw"
	operationScavenge    = "gambling.scavenge"
	percentDenominator   = 100
)

// Config holds wager bounds, the house cut and jackpot rules.
type Config struct {
	SlotMinWager          int64
	HandMinWager          int64
	DuelMinWager          int64
	MaxWager              int64
	FortuneCost           int64
	HouseTaxPercent       int64
	SlotJackpotPercent    int64
	HandJackpotPercent    int64
	FortuneJackpotPercent int64
	JackpotFloor          int64
	// JackpotOdds is N in a 1-in-N chance per spin to win the pool. Zero disables the draw.
	JackpotOdds int
	SlotArena   ArenaConfig
	HandArena   ArenaConfig

	// ChallengeTTL is how long a duel offer waits for the opponent.
	ChallengeTTL  time.Duration
	MaxChallenges int

	TicketPrice       int64
	TicketLimit       int
	LotteryNumbers    int
	SponsorCutPercent int64

	// A scavenge pays a random amount in [ScavengeMin, ScavengeMax] to players holding at most ScavengeCeiling.
	ScavengeCeiling int64
	ScavengeMin     int64
	ScavengeMax     int64
}

// DefaultConfig mirrors the rules the bots have always used.
func DefaultConfig() Config {
	return Config{
		SlotMinWager:          100,
		HandMinWager:          100,
		DuelMinWager:          500,
		MaxWager:              100_000_000,
		FortuneCost:           300,
		HouseTaxPercent:       10,
		SlotJackpotPercent:    5,
		HandJackpotPercent:    5,
		FortuneJackpotPercent: 20,
		JackpotFloor:          1_000_000,
		JackpotOdds:           50_000,
		SlotArena: ArenaConfig{
			Cooldown:         3500 * time.Millisecond,
			CoolOff:          5 * time.Second,
			LossStreakLimit:  10,
			LossStreakResume: 5,
			IdleTTL:          30 * time.Minute,
			MaxEntries:       10_000,
		},
		HandArena: ArenaConfig{
			Cooldown:         3 * time.Second,
			CoolOff:          5 * time.Second,
			LossStreakLimit:  6,
			LossStreakResume: 3,
			IdleTTL:          30 * time.Minute,
			MaxEntries:       10_000,
		},
		ChallengeTTL:      2 * time.Minute,
		MaxChallenges:     1_000,
		TicketPrice:       5000,
		TicketLimit:       30,
		LotteryNumbers:    1000,
		SponsorCutPercent: 10,
		ScavengeCeiling:   500,
		ScavengeMin:       500,
		ScavengeMax:       1500,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces DefaultConfig.
func WithConfig(config Config) Option {
	return func(engine *Engine) {
		engine.config = config
	}
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(engine *Engine) {
		if clock != nil {
			engine.clock = clock
		}
	}
}

// WithModeFunc supplies the reel mode used when a spin does not name one.
func WithModeFunc(mode func(ctx context.Context) string) Option {
	return func(engine *Engine) {
		if mode != nil {
			engine.modeFn = mode
		}
	}
}

// WithSponsorFunc names the account that receives the sponsor cut of ticket sales.
func WithSponsorFunc(sponsor func(ctx context.Context) (ledger.UserID, bool)) Option {
	return func(engine *Engine) {
		if sponsor != nil {
			engine.sponsorFn = sponsor
		}
	}
}

// WithChallengeIDGenerator replaces the uuid duel challenge ids.
func WithChallengeIDGenerator(generator func() string) Option {
	return func(engine *Engine) {
		if generator != nil {
			engine.newChallengeID = generator
		}
	}
}

// WithOperationLogger wires the operation log.
func WithOperationLogger(logger ledger.OperationLogger) Option {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// WithRetryPolicy overrides the conflict retry policy.
func WithRetryPolicy(policy ledger.RetryPolicy) Option {
	return func(engine *Engine) {
		engine.retryPolicy = policy
	}
}

// Engine runs games. Outcomes are drawn before the store transaction so a retried unit
// replays the same result.
type Engine struct {
	store       ledger.Store
	random      RandomSource
	clock       func() time.Time
	modeFn      func(ctx context.Context) string
	config      Config
	logger      ledger.OperationLogger
	retryPolicy ledger.RetryPolicy
	slotArena   *Arena
	handArena   *Arena

	sponsorFn      func(ctx context.Context) (ledger.UserID, bool)
	newChallengeID func() string
	challenges     *challengeBook
	ticketBuyers   *keylock.Set
	// Ticket purchases hold the read side; a draw holds the write side so no purchase lands mid-draw.
	lotteryMu sync.RWMutex
}

// NewEngine wires an Engine.
func NewEngine(store ledger.Store, random RandomSource, options ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ledger.ErrInvalidServiceConfig)
	}
	if random == nil {
		return nil, fmt.Errorf("%w: random source is nil", ledger.ErrInvalidServiceConfig)
	}
	engine := &Engine{
		store:       store,
		random:      random,
		clock:       time.Now,
		modeFn:      func(context.Context) string { return DefaultMode },
		config:      DefaultConfig(),
		retryPolicy: ledger.DefaultRetryPolicy(),

		sponsorFn:      func(context.Context) (ledger.UserID, bool) { return ledger.UserID{}, false },
		newChallengeID: uuid.NewString,
		ticketBuyers:   keylock.New(),
	}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	if err := engine.config.validate(); err != nil {
		return nil, err
	}
	engine.slotArena = NewArena(engine.config.SlotArena)
	engine.handArena = NewArena(engine.config.HandArena)
	engine.challenges = newChallengeBook(engine.config.ChallengeTTL, engine.config.MaxChallenges)
	return engine, nil
}

func (config Config) validate() error {
	switch {
	case config.JackpotFloor < 0, config.HouseTaxPercent < 0, config.HouseTaxPercent > percentDenominator:
		return fmt.Errorf("%w: jackpot floor or house tax out of range", ledger.ErrInvalidServiceConfig)
	case config.MaxWager <= 0, config.MaxWager < max(config.SlotMinWager, config.HandMinWager, config.DuelMinWager):
		return fmt.Errorf("%w: max wager below a minimum wager", ledger.ErrInvalidServiceConfig)
	case config.TicketPrice <= 0, config.TicketLimit <= 0, config.LotteryNumbers <= 0:
		return fmt.Errorf("%w: lottery ticket rules must be positive", ledger.ErrInvalidServiceConfig)
	case config.SponsorCutPercent < 0, config.SponsorCutPercent > percentDenominator:
		return fmt.Errorf("%w: sponsor cut out of range", ledger.ErrInvalidServiceConfig)
	case config.ScavengeMin <= 0, config.ScavengeMax < config.ScavengeMin:
		return fmt.Errorf("%w: scavenge range is empty", ledger.ErrInvalidServiceConfig)
	}
	return nil
}

// SlotArena exposes the reel pacing state.
func (engine *Engine) SlotArena() *Arena { return engine.slotArena }

// HandArena exposes the ranked-hand pacing state.
func (engine *Engine) HandArena() *Arena { return engine.handArena }

// SweepArenas evicts idle arena entries and expired duel challenges and returns how many were removed.
func (engine *Engine) SweepArenas(now time.Time) int {
	return engine.slotArena.Sweep(now) + engine.handArena.Sweep(now) + engine.challenges.sweep(now)
}

// SpinRequest asks for one reel spin. An empty Mode uses the configured mode.
type SpinRequest struct {
	UserID ledger.UserID
	Wager  int64
	Mode   string
}

// SpinResult describes a committed spin.
type SpinResult struct {
	Mode               string
	Symbol             Symbol
	Multiplier         int64
	Forced             bool
	Wager              int64
	Payout             int64
	ConsecutiveNonWins int64
	JackpotFed         int64
	JackpotWon         int64
	Balance            int64
}

// Spin debits the wager, resolves the reel against the pity counter, pays out and feeds or
// drains the jackpot in one store transaction.
func (engine *Engine) Spin(ctx context.Context, request SpinRequest) (SpinResult, error) {
	if err := validatePlayer(request.UserID); err != nil {
		return SpinResult{}, err
	}
	if err := validateWager(request.Wager, engine.config.SlotMinWager, engine.config.MaxWager); err != nil {
		return SpinResult{}, err
	}
	mode := request.Mode
	if mode == "" {
		mode = engine.modeFn(ctx)
	}
	reel, err := ReelForMode(mode)
	if err != nil {
		return SpinResult{}, err
	}
	now := engine.clock()
	if err := engine.slotArena.Admit(request.UserID, now); err != nil {
		return SpinResult{}, err
	}

	reelRoll := engine.random.IntN(reel.TotalWeight())
	forcedRoll := engine.random.IntN(forcedTotalWeight())
	jackpotHit := engine.jackpotHit()
	createdUnixUTC := now.Unix()

	var result SpinResult
	err = ledger.RunInTx(ctx, engine.store, engine.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		result = SpinResult{Mode: reel.Mode, Wager: request.Wager}
		account, err := applyDebit(ctx, txStore, request.UserID, request.Wager, ledger.TransactionSlotBet, createdUnixUTC)
		if err != nil {
			return err
		}
		state, err := txStore.GetGamblingState(ctx, request.UserID)
		if err != nil {
			return err
		}
		entry, forced := reel.Resolve(state.ConsecutiveNonWins, reelRoll, forcedRoll)
		result.Symbol, result.Multiplier, result.Forced = entry.Symbol, entry.Multiplier, forced
		result.Payout = request.Wager * entry.Multiplier
		if result.Payout > 0 {
			if account, err = applyCredit(ctx, txStore, request.UserID, result.Payout, ledger.TransactionSlotWin, createdUnixUTC); err != nil {
				return err
			}
			state.ConsecutiveNonWins = 0
		} else {
			state.ConsecutiveNonWins++
		}
		if err := txStore.SaveGamblingState(ctx, state); err != nil {
			return err
		}
		result.ConsecutiveNonWins = state.ConsecutiveNonWins
		if result.JackpotFed, err = engine.feedJackpot(ctx, txStore, request.Wager-result.Payout, engine.config.SlotJackpotPercent); err != nil {
			return err
		}
		if jackpotHit {
			if err := txStore.EnsureJackpot(ctx, engine.config.JackpotFloor); err != nil {
				return err
			}
			drained, err := txStore.DrainJackpot(ctx, engine.config.JackpotFloor)
			if err != nil {
				return err
			}
			if drained > 0 {
				if account, err = applyCredit(ctx, txStore, request.UserID, drained, ledger.TransactionJackpot, createdUnixUTC); err != nil {
					return err
				}
			}
			result.JackpotWon = drained
		}
		result.Balance = account.Balance
		return nil
	})
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation: operationSpin,
		UserID:    request.UserID,
		Amount:    request.Wager,
		Type:      ledger.TransactionSlotBet,
		Detail:    fmt.Sprintf("mode=%s symbol=%s payout=%d forced=%t jackpot=%d", reel.Mode, result.Symbol, result.Payout, result.Forced, result.JackpotWon),
		Error:     err,
	})
	if err != nil {
		return SpinResult{}, ledger.WrapError("gambling", "spin", "commit", err)
	}
	engine.slotArena.Record(request.UserID, result.Payout > 0)
	return result, nil
}

// HandRequest asks for one ranked-hand round against the house. A nil Keep re-draws only on no hand.
type HandRequest struct {
	UserID ledger.UserID
	Wager  int64
	Keep   KeepPolicy
}

// HandResult describes a committed ranked-hand round. DealerPreempted means the house drew a
// strong hand and the player never drew.
type HandResult struct {
	Player          Hand
	Dealer          Hand
	PlayerAttempts  int
	DealerAttempts  int
	DealerPreempted bool
	PlayerWins      bool
	Multiplier      int64
	Payout          int64
	Tax             int64
	Loss            int64
	JackpotFed      int64
	Balance         int64
}

// PlayRankedHand stakes the wager, draws the house then the player and settles in one store transaction.
func (engine *Engine) PlayRankedHand(ctx context.Context, request HandRequest) (HandResult, error) {
	if err := validatePlayer(request.UserID); err != nil {
		return HandResult{}, err
	}
	if err := validateWager(request.Wager, engine.config.HandMinWager, engine.config.MaxWager); err != nil {
		return HandResult{}, err
	}
	now := engine.clock()
	if err := engine.handArena.Admit(request.UserID, now); err != nil {
		return HandResult{}, err
	}

	outcome := HandResult{}
	outcome.Dealer, outcome.DealerAttempts = RollHand(engine.random, DealerKeep)
	if outcome.Dealer.Strong() {
		outcome.DealerPreempted = true
		outcome.Multiplier = max(outcome.Dealer.Multiplier, 1)
	} else {
		outcome.Player, outcome.PlayerAttempts = RollHand(engine.random, request.Keep)
		settlement := SettleHands(outcome.Player, outcome.Dealer)
		outcome.PlayerWins, outcome.Multiplier = settlement.PlayerWins, settlement.Multiplier
	}
	createdUnixUTC := now.Unix()

	var result HandResult
	err := ledger.RunInTx(ctx, engine.store, engine.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		result = outcome
		account, err := applyDebit(ctx, txStore, request.UserID, request.Wager, ledger.TransactionDiceBet, createdUnixUTC)
		if err != nil {
			return err
		}
		if result.PlayerWins {
			winnings := request.Wager * result.Multiplier
			result.Tax = winnings * engine.config.HouseTaxPercent / percentDenominator
			result.Payout = request.Wager + winnings - result.Tax
			if account, err = applyCredit(ctx, txStore, request.UserID, result.Payout, ledger.TransactionDiceWin, createdUnixUTC); err != nil {
				return err
			}
			result.Balance = account.Balance
			return nil
		}
		result.Loss = request.Wager
		if extra := request.Wager * (result.Multiplier - 1); extra > 0 {
			amount, err := ledger.NewPositiveAmount(extra)
			if err != nil {
				return err
			}
			debited, taken, err := ledger.ApplyDebitUpTo(ctx, txStore, ledger.Mutation{
				UserID:         request.UserID,
				Amount:         amount,
				Type:           ledger.TransactionDiceLoss,
				CreatedUnixUTC: createdUnixUTC,
			})
			if err != nil {
				return err
			}
			account = debited
			result.Loss += taken
		}
		if result.JackpotFed, err = engine.feedJackpot(ctx, txStore, result.Loss, engine.config.HandJackpotPercent); err != nil {
			return err
		}
		result.Balance = account.Balance
		return nil
	})
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation: operationHand,
		UserID:    request.UserID,
		Amount:    request.Wager,
		Type:      ledger.TransactionDiceBet,
		Detail:    fmt.Sprintf("player=%s dealer=%s win=%t multiplier=%d", outcome.Player.Rank, outcome.Dealer.Rank, outcome.PlayerWins, outcome.Multiplier),
		Error:     err,
	})
	if err != nil {
		return HandResult{}, ledger.WrapError("gambling", "hand", "commit", err)
	}
	engine.handArena.Record(request.UserID, result.PlayerWins)
	return result, nil
}

// DuelRequest is a player-versus-player ranked-hand round. The challenger holds the house side.
type DuelRequest struct {
	ChallengerID   ledger.UserID
	OpponentID     ledger.UserID
	Wager          int64
	ChallengerKeep KeepPolicy
	OpponentKeep   KeepPolicy
}

// DuelResult describes a committed duel. Moved is what the loser paid, Prize what the winner received.
type DuelResult struct {
	Challenger    Hand
	Opponent      Hand
	WinnerID      ledger.UserID
	LoserID       ledger.UserID
	Multiplier    int64
	Moved         int64
	Prize         int64
	Tax           int64
	WinnerBalance int64
	LoserBalance  int64
}

// Duel settles a ranked-hand round between two players. Both must hold the wager; the loser pays
// min(wager*multiplier, balance), the house keeps its tax.
func (engine *Engine) Duel(ctx context.Context, request DuelRequest) (DuelResult, error) {
	if err := validatePlayer(request.ChallengerID); err != nil {
		return DuelResult{}, err
	}
	if err := validatePlayer(request.OpponentID); err != nil {
		return DuelResult{}, err
	}
	if request.ChallengerID == request.OpponentID {
		return DuelResult{}, fmt.Errorf("%w: duel against self", ledger.ErrSelfTransfer)
	}
	if err := validateWager(request.Wager, engine.config.DuelMinWager, engine.config.MaxWager); err != nil {
		return DuelResult{}, err
	}

	outcome := DuelResult{}
	outcome.Challenger, _ = RollHand(engine.random, request.ChallengerKeep)
	outcome.Opponent, _ = RollHand(engine.random, request.OpponentKeep)
	settlement := SettleHands(outcome.Opponent, outcome.Challenger)
	outcome.Multiplier = settlement.Multiplier
	outcome.WinnerID, outcome.LoserID = request.ChallengerID, request.OpponentID
	if settlement.PlayerWins {
		outcome.WinnerID, outcome.LoserID = request.OpponentID, request.ChallengerID
	}
	createdUnixUTC := engine.clock().Unix()
	periodTag := ledger.PeriodTag(createdUnixUTC)

	var result DuelResult
	err := ledger.RunInTx(ctx, engine.store, engine.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		result = outcome
		winner, err := txStore.GetOrCreateAccount(ctx, result.WinnerID)
		if err != nil {
			return err
		}
		loser, err := txStore.GetOrCreateAccount(ctx, result.LoserID)
		if err != nil {
			return err
		}
		if winner.Balance < request.Wager || loser.Balance < request.Wager {
			return fmt.Errorf("%w: both players must hold the wager", ledger.ErrInsufficientFunds)
		}
		result.Moved = min(request.Wager*result.Multiplier, loser.Balance)
		if err := txStore.CompareAndSetBalance(ctx, result.LoserID, loser.Balance, loser.Balance-result.Moved); err != nil {
			return err
		}
		result.Tax = result.Moved * engine.config.HouseTaxPercent / percentDenominator
		result.Prize = result.Moved - result.Tax
		credited, err := txStore.IncrementBalance(ctx, result.WinnerID, result.Prize, result.Prize)
		if err != nil {
			return err
		}
		result.WinnerBalance = credited.Balance
		result.LoserBalance = loser.Balance - result.Moved
		rows := make([]ledger.Transaction, 0, 2)
		if result.Prize > 0 {
			rows = append(rows, ledger.Transaction{
				SenderID: result.LoserID, ReceiverID: result.WinnerID, Amount: result.Prize,
				Type: ledger.TransactionDuel, PeriodTag: periodTag, CreatedUnixUTC: createdUnixUTC,
			})
		}
		if result.Tax > 0 {
			rows = append(rows, ledger.Transaction{
				SenderID: result.LoserID, ReceiverID: ledger.SystemUserID, Amount: result.Tax,
				Type: ledger.TransactionDuelTax, PeriodTag: periodTag, CreatedUnixUTC: createdUnixUTC,
			})
		}
		return txStore.InsertTransactions(ctx, rows)
	})
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation:      operationDuel,
		UserID:         outcome.LoserID,
		CounterpartyID: outcome.WinnerID,
		Amount:         result.Moved,
		Type:           ledger.TransactionDuel,
		Detail:         fmt.Sprintf("challenger=%s opponent=%s multiplier=%d", outcome.Challenger.Rank, outcome.Opponent.Rank, outcome.Multiplier),
		Error:          err,
	})
	if err != nil {
		return DuelResult{}, ledger.WrapError("gambling", "duel", "commit", err)
	}
	return result, nil
}

// FortuneResult describes a committed fortune draw.
type FortuneResult struct {
	Fortune    Fortune
	Cost       int64
	Net        int64
	JackpotFed int64
	Balance    int64
}

// DrawFortune charges the fixed cost, pays the drawn fortune and feeds the jackpot from the net loss.
func (engine *Engine) DrawFortune(ctx context.Context, userID ledger.UserID) (FortuneResult, error) {
	if err := validatePlayer(userID); err != nil {
		return FortuneResult{}, err
	}
	fortune := PickFortune(engine.random.IntN(fortuneTotalWeight()))
	cost := engine.config.FortuneCost
	createdUnixUTC := engine.clock().Unix()

	var result FortuneResult
	err := ledger.RunInTx(ctx, engine.store, engine.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		result = FortuneResult{Fortune: fortune, Cost: cost, Net: fortune.Payout - cost}
		account, err := applyDebit(ctx, txStore, userID, cost, ledger.TransactionFortuneBet, createdUnixUTC)
		if err != nil {
			return err
		}
		if fortune.Payout > 0 {
			if account, err = applyCredit(ctx, txStore, userID, fortune.Payout, ledger.TransactionFortuneWin, createdUnixUTC); err != nil {
				return err
			}
		}
		if result.JackpotFed, err = engine.feedJackpot(ctx, txStore, -result.Net, engine.config.FortuneJackpotPercent); err != nil {
			return err
		}
		result.Balance = account.Balance
		return nil
	})
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation: operationFortune,
		UserID:    userID,
		Amount:    cost,
		Type:      ledger.TransactionFortuneBet,
		Detail:    fmt.Sprintf("fortune=%s net=%d", fortune.Name, fortune.Payout-cost),
		Error:     err,
	})
	if err != nil {
		return FortuneResult{}, ledger.WrapError("gambling", "fortune", "commit", err)
	}
	return result, nil
}

// JackpotDraw describes a drained pool. Remainder is the part of Drained that did not divide evenly.
type JackpotDraw struct {
	Winners   []ledger.UserID
	Drained   int64
	Share     int64
	Remainder int64
}

// DrawJackpot drains the pool, splits it evenly among winners and reseeds it to the floor.
func (engine *Engine) DrawJackpot(ctx context.Context, winners []ledger.UserID) (JackpotDraw, error) {
	unique := make([]ledger.UserID, 0, len(winners))
	seen := make(map[ledger.UserID]struct{}, len(winners))
	for _, winner := range winners {
		if err := validatePlayer(winner); err != nil {
			return JackpotDraw{}, err
		}
		if _, ok := seen[winner]; ok {
			continue
		}
		seen[winner] = struct{}{}
		unique = append(unique, winner)
	}
	if len(unique) == 0 {
		return JackpotDraw{}, ErrNoWinners
	}
	createdUnixUTC := engine.clock().Unix()

	var draw JackpotDraw
	err := ledger.RunInTx(ctx, engine.store, engine.retryPolicy, func(ctx context.Context, txStore ledger.Store) error {
		draw = JackpotDraw{Winners: unique}
		if err := txStore.EnsureJackpot(ctx, engine.config.JackpotFloor); err != nil {
			return err
		}
		drained, err := txStore.DrainJackpot(ctx, engine.config.JackpotFloor)
		if err != nil {
			return err
		}
		draw.Drained = drained
		draw.Share = drained / int64(len(unique))
		draw.Remainder = drained - draw.Share*int64(len(unique))
		if draw.Share == 0 {
			return nil
		}
		for _, winner := range unique {
			if _, err := applyCredit(ctx, txStore, winner, draw.Share, ledger.TransactionJackpot, createdUnixUTC); err != nil {
				return err
			}
		}
		return nil
	})
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation: operationJackpotDraw,
		Amount:    draw.Drained,
		Type:      ledger.TransactionJackpot,
		Detail:    fmt.Sprintf("winners=%d share=%d", len(unique), draw.Share),
		Error:     err,
	})
	if err != nil {
		return JackpotDraw{}, ledger.WrapError("gambling", "jackpot", "draw", err)
	}
	return draw, nil
}

// JackpotBalance returns the pool, seeding it to the floor on first use.
func (engine *Engine) JackpotBalance(ctx context.Context) (int64, error) {
	if err := engine.store.EnsureJackpot(ctx, engine.config.JackpotFloor); err != nil {
		return 0, err
	}
	return engine.store.GetJackpot(ctx)
}

func (engine *Engine) jackpotHit() bool {
	if engine.config.JackpotOdds <= 0 {
		return false
	}
	return engine.random.IntN(engine.config.JackpotOdds) == 0
}

func (engine *Engine) feedJackpot(ctx context.Context, txStore ledger.Store, netLoss int64, percent int64) (int64, error) {
	if netLoss <= 0 || percent <= 0 {
		return 0, nil
	}
	feed := netLoss * percent / percentDenominator
	if feed <= 0 {
		return 0, nil
	}
	if err := txStore.EnsureJackpot(ctx, engine.config.JackpotFloor); err != nil {
		return 0, err
	}
	if _, err := txStore.IncrementJackpot(ctx, feed); err != nil {
		return 0, err
	}
	return feed, nil
}

func applyDebit(ctx context.Context, txStore ledger.Store, userID ledger.UserID, amount int64, transactionType ledger.TransactionType, createdUnixUTC int64) (ledger.Account, error) {
	positive, err := ledger.NewPositiveAmount(amount)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.ApplyDebit(ctx, txStore, ledger.Mutation{UserID: userID, Amount: positive, Type: transactionType, CreatedUnixUTC: createdUnixUTC})
}

func applyCredit(ctx context.Context, txStore ledger.Store, userID ledger.UserID, amount int64, transactionType ledger.TransactionType, createdUnixUTC int64) (ledger.Account, error) {
	positive, err := ledger.NewPositiveAmount(amount)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.ApplyCredit(ctx, txStore, ledger.Mutation{UserID: userID, Amount: positive, Type: transactionType, CreatedUnixUTC: createdUnixUTC})
}

func validatePlayer(userID ledger.UserID) error {
	if userID.IsZero() {
		return fmt.Errorf("%w: empty value", ledger.ErrInvalidUserID)
	}
	if userID.IsSystem() {
		return fmt.Errorf("%w: %s", ledger.ErrDisallowedAccount, userID.String())
	}
	return nil
}

func validateWager(wager int64, minimum int64, maximum int64) error {
	if wager <= 0 || wager < minimum {
		return fmt.Errorf("%w: wager must be at least %d", ledger.ErrInvalidAmount, max(minimum, 1))
	}
	if wager > maximum {
		return fmt.Errorf("%w: wager must not exceed %d", ledger.ErrInvalidAmount, maximum)
	}
	return nil
}

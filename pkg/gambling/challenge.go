package gambling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
)

// Challenge is a duel offer waiting for the opponent. Only the opponent can accept it.
type Challenge struct {
	ID           string
	ChallengerID ledger.UserID
	OpponentID   ledger.UserID
	Wager        int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type pendingChallenge struct {
	Challenge
	keep KeepPolicy
}

type challengeBook struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*pendingChallenge
}

func newChallengeBook(ttl time.Duration, maxEntries int) *challengeBook {
	return &challengeBook{ttl: ttl, maxEntries: maxEntries, entries: make(map[string]*pendingChallenge)}
}

func (book *challengeBook) add(pending *pendingChallenge, now time.Time) error {
	book.mu.Lock()
	defer book.mu.Unlock()

	book.evictExpired(now)
	if book.maxEntries > 0 && len(book.entries) >= book.maxEntries {
		return fmt.Errorf("%w: %d pending", ErrChallengeLimit, len(book.entries))
	}
	pending.CreatedAt = now
	pending.ExpiresAt = now.Add(book.ttl)
	book.entries[pending.ID] = pending
	return nil
}

// take removes the challenge when userID is its opponent.
func (book *challengeBook) take(challengeID string, userID ledger.UserID, now time.Time) (*pendingChallenge, error) {
	book.mu.Lock()
	defer book.mu.Unlock()

	pending, ok := book.entries[challengeID]
	if !ok || !now.Before(pending.ExpiresAt) {
		delete(book.entries, challengeID)
		return nil, fmt.Errorf("%w: %s", ErrUnknownChallenge, challengeID)
	}
	if pending.OpponentID != userID {
		return nil, fmt.Errorf("%w: %s is not the opponent", ErrChallengeForbidden, userID.String())
	}
	delete(book.entries, challengeID)
	return pending, nil
}

// cancel removes the challenge when userID is either side of it.
func (book *challengeBook) cancel(challengeID string, userID ledger.UserID, now time.Time) (Challenge, error) {
	book.mu.Lock()
	defer book.mu.Unlock()

	pending, ok := book.entries[challengeID]
	if !ok || !now.Before(pending.ExpiresAt) {
		delete(book.entries, challengeID)
		return Challenge{}, fmt.Errorf("%w: %s", ErrUnknownChallenge, challengeID)
	}
	if pending.OpponentID != userID && pending.ChallengerID != userID {
		return Challenge{}, fmt.Errorf("%w: %s is not a participant", ErrChallengeForbidden, userID.String())
	}
	delete(book.entries, challengeID)
	return pending.Challenge, nil
}

func (book *challengeBook) involving(userID ledger.UserID, now time.Time) []Challenge {
	book.mu.Lock()
	defer book.mu.Unlock()

	challenges := make([]Challenge, 0)
	for _, pending := range book.entries {
		if !now.Before(pending.ExpiresAt) {
			continue
		}
		if pending.ChallengerID == userID || pending.OpponentID == userID {
			challenges = append(challenges, pending.Challenge)
		}
	}
	sort.Slice(challenges, func(left, right int) bool {
		return challenges[left].ExpiresAt.Before(challenges[right].ExpiresAt)
	})
	return challenges
}

func (book *challengeBook) sweep(now time.Time) int {
	book.mu.Lock()
	defer book.mu.Unlock()
	return book.evictExpired(now)
}

func (book *challengeBook) evictExpired(now time.Time) int {
	removed := 0
	for id, pending := range book.entries {
		if !now.Before(pending.ExpiresAt) {
			delete(book.entries, id)
			removed++
		}
	}
	return removed
}

// ChallengeRequest offers a duel. Keep is the challenger's draw policy.
type ChallengeRequest struct {
	ChallengerID ledger.UserID
	OpponentID   ledger.UserID
	Wager        int64
	Keep         KeepPolicy
}

// Challenge records a duel offer. Nothing moves until the opponent accepts.
func (engine *Engine) Challenge(ctx context.Context, request ChallengeRequest) (Challenge, error) {
	if err := validatePlayer(request.ChallengerID); err != nil {
		return Challenge{}, err
	}
	if err := validatePlayer(request.OpponentID); err != nil {
		return Challenge{}, err
	}
	if request.ChallengerID == request.OpponentID {
		return Challenge{}, fmt.Errorf("%w: duel against self", ledger.ErrSelfTransfer)
	}
	if err := validateWager(request.Wager, engine.config.DuelMinWager, engine.config.MaxWager); err != nil {
		return Challenge{}, err
	}
	account, err := engine.store.GetOrCreateAccount(ctx, request.ChallengerID)
	if err != nil {
		return Challenge{}, ledger.WrapError("gambling", "challenge", "load", err)
	}
	if account.Balance < request.Wager {
		return Challenge{}, fmt.Errorf("%w: challenger holds %d", ledger.ErrInsufficientFunds, account.Balance)
	}
	keep := request.Keep
	if keep == nil {
		keep = KeepAnyHand
	}
	pending := &pendingChallenge{
		Challenge: Challenge{
			ID:           engine.newChallengeID(),
			ChallengerID: request.ChallengerID,
			OpponentID:   request.OpponentID,
			Wager:        request.Wager,
		},
		keep: keep,
	}
	err = engine.challenges.add(pending, engine.clock())
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation:      operationChallenge,
		UserID:         request.ChallengerID,
		CounterpartyID: request.OpponentID,
		Amount:         request.Wager,
		Detail:         fmt.Sprintf("challenge=%s", pending.ID),
		Error:          err,
	})
	if err != nil {
		return Challenge{}, err
	}
	return pending.Challenge, nil
}

// AcceptRequest answers a pending challenge. OpponentID must be the challenged player.
type AcceptRequest struct {
	ChallengeID string
	OpponentID  ledger.UserID
	Keep        KeepPolicy
}

// AcceptChallenge consumes the offer and settles the duel. A failed settlement still consumes it.
func (engine *Engine) AcceptChallenge(ctx context.Context, request AcceptRequest) (DuelResult, error) {
	pending, err := engine.challenges.take(request.ChallengeID, request.OpponentID, engine.clock())
	if err != nil {
		return DuelResult{}, err
	}
	keep := request.Keep
	if keep == nil {
		keep = KeepAnyHand
	}
	return engine.Duel(ctx, DuelRequest{
		ChallengerID:   pending.ChallengerID,
		OpponentID:     pending.OpponentID,
		Wager:          pending.Wager,
		ChallengerKeep: pending.keep,
		OpponentKeep:   keep,
	})
}

// DeclineChallenge withdraws the offer. Either participant may decline.
func (engine *Engine) DeclineChallenge(ctx context.Context, challengeID string, userID ledger.UserID) (Challenge, error) {
	challenge, err := engine.challenges.cancel(challengeID, userID, engine.clock())
	ledger.LogOperation(ctx, engine.logger, ledger.OperationLog{
		Operation: operationChallenge,
		UserID:    userID,
		Detail:    fmt.Sprintf("declined=%s", challengeID),
		Error:     err,
	})
	return challenge, err
}

// PendingChallenges lists live offers the user made or received, soonest expiry first.
func (engine *Engine) PendingChallenges(userID ledger.UserID) []Challenge {
	return engine.challenges.involving(userID, engine.clock())
}

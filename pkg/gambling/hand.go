package gambling

import (
	"fmt"
	"sort"
	"strings"
)

// MaxAttempts bounds how often one side may draw a ranked hand.
const MaxAttempts = 3

const (
	scorePinzoro      = 111
	scoreTripleBase   = 100
	scoreStraight     = 90
	scorePenalty      = -1
	scoreNone         = 0
	strongScoreCutoff = 90
	diceFaces         = 6
)

// HandRank names a tier of the ranking table.
type HandRank string

const (
	RankPinzoro  HandRank = "PINZORO"
	RankTriple   HandRank = "TRIPLE"
	RankStraight HandRank = "STRAIGHT_456"
	RankPair     HandRank = "PAIR"
	RankNone     HandRank = "NONE"
	RankPenalty  HandRank = "PENALTY_123"
)

// Hand is one evaluated three-dice draw.
type Hand struct {
	Dice       [3]int
	Rank       HandRank
	Score      int
	Multiplier int64
}

// Strong reports a hand that ends drawing immediately.
func (hand Hand) Strong() bool {
	return hand.Score >= strongScoreCutoff
}

// Penalty reports the 1-2-3 hand that owes double.
func (hand Hand) Penalty() bool {
	return hand.Score < 0
}

// EvaluateHand scores three dice.
func EvaluateHand(dice [3]int) Hand {
	sorted := dice
	sort.Ints(sorted[:])
	hand := Hand{Dice: sorted}
	switch {
	case sorted == [3]int{1, 1, 1}:
		hand.Rank, hand.Score, hand.Multiplier = RankPinzoro, scorePinzoro, 5
	case sorted[0] == sorted[2]:
		hand.Rank, hand.Score, hand.Multiplier = RankTriple, scoreTripleBase+sorted[0], 3
	case sorted == [3]int{4, 5, 6}:
		hand.Rank, hand.Score, hand.Multiplier = RankStraight, scoreStraight, 2
	case sorted == [3]int{1, 2, 3}:
		hand.Rank, hand.Score, hand.Multiplier = RankPenalty, scorePenalty, -2
	case sorted[0] == sorted[1]:
		hand.Rank, hand.Score, hand.Multiplier = RankPair, sorted[2], 1
	case sorted[1] == sorted[2]:
		hand.Rank, hand.Score, hand.Multiplier = RankPair, sorted[0], 1
	default:
		hand.Rank, hand.Score, hand.Multiplier = RankNone, scoreNone, 0
	}
	return hand
}

// KeepPolicy decides whether a non-final, non-strong draw is kept. attempt starts at 1.
type KeepPolicy func(attempt int, hand Hand) bool

// KeepFirst keeps whatever comes first.
func KeepFirst(int, Hand) bool { return true }

// KeepAnyHand re-draws only on no hand.
func KeepAnyHand(_ int, hand Hand) bool { return hand.Rank != RankNone }

// KeepStrongOnly re-draws until a strong hand or the last attempt.
func KeepStrongOnly(_ int, hand Hand) bool { return hand.Strong() }

// DealerKeep re-draws a no-hand once and then keeps.
func DealerKeep(attempt int, hand Hand) bool {
	return hand.Rank != RankNone || attempt >= 2
}

var keepPolicies = map[string]KeepPolicy{
	"first":  KeepFirst,
	"any":    KeepAnyHand,
	"strong": KeepStrongOnly,
}

// ParseKeepPolicy accepts "first", "any" or "strong". Empty selects "any".
func ParseKeepPolicy(raw string) (KeepPolicy, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return KeepAnyHand, nil
	}
	policy, ok := keepPolicies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeepPolicy, raw)
	}
	return policy, nil
}

// RollDice draws three fair dice.
func RollDice(random RandomSource) [3]int {
	return [3]int{random.IntN(diceFaces) + 1, random.IntN(diceFaces) + 1, random.IntN(diceFaces) + 1}
}

// RollHand draws up to MaxAttempts hands and returns the kept one with the attempt count.
// Strong hands, the penalty hand and the last attempt are kept regardless of keep.
func RollHand(random RandomSource, keep KeepPolicy) (Hand, int) {
	if keep == nil {
		keep = KeepAnyHand
	}
	var hand Hand
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		hand = EvaluateHand(RollDice(random))
		if hand.Strong() || hand.Penalty() || attempt == MaxAttempts || keep(attempt, hand) {
			return hand, attempt
		}
	}
	return hand, MaxAttempts
}

// HandSettlement is the result of comparing two hands.
type HandSettlement struct {
	PlayerWins bool
	Multiplier int64
}

// SettleHands compares player against house. Ties go to the house.
func SettleHands(player Hand, house Hand) HandSettlement {
	if player.Score > house.Score {
		return HandSettlement{PlayerWins: true, Multiplier: settlementMultiplier(player, house)}
	}
	return HandSettlement{PlayerWins: false, Multiplier: settlementMultiplier(house, player)}
}

func settlementMultiplier(winner Hand, loser Hand) int64 {
	floor := int64(1)
	if loser.Penalty() {
		floor = -loser.Multiplier
	}
	return max(winner.Multiplier, floor)
}

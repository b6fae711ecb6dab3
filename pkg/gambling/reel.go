package gambling

import (
	"fmt"
	"sort"
)

// Symbol is one reel outcome.
type Symbol string

const (
	SymbolDiamond Symbol = "DIAMOND"
	SymbolSeven   Symbol = "SEVEN"
	SymbolWild    Symbol = "WILD"
	SymbolBell    Symbol = "BELL"
	SymbolCherry  Symbol = "CHERRY"
	SymbolMiss    Symbol = "MISS"
)

// DefaultMode is used when no mode is configured.
const DefaultMode = "4"

// ReelEntry is one weighted row of a reel table.
type ReelEntry struct {
	Symbol     Symbol
	Weight     int
	Multiplier int64
}

// ForcedOutcome is a weighted entry of the table used once the pity ceiling is reached.
type ForcedOutcome struct {
	Symbol Symbol
	Weight int
}

// ForcedOutcomes is drawn instead of the reel when the ceiling is reached.
var ForcedOutcomes = []ForcedOutcome{
	{Symbol: SymbolSeven, Weight: 9},
	{Symbol: SymbolDiamond, Weight: 1},
}

// Reel is a weighted outcome table with a pity ceiling.
type Reel struct {
	Mode    string
	Entries []ReelEntry
	Ceiling int64
	total   int
}

// NewReel validates entries and precomputes the weight sum.
func NewReel(mode string, entries []ReelEntry, ceiling int64) (Reel, error) {
	total := 0
	for _, entry := range entries {
		if entry.Weight < 0 || entry.Multiplier < 0 {
			return Reel{}, fmt.Errorf("%w: negative weight or multiplier for %s", ErrInvalidReel, entry.Symbol)
		}
		total += entry.Weight
	}
	if total == 0 {
		return Reel{}, fmt.Errorf("%w: weights sum to zero", ErrInvalidReel)
	}
	if ceiling <= 0 {
		return Reel{}, fmt.Errorf("%w: ceiling must be positive", ErrInvalidReel)
	}
	copied := make([]ReelEntry, len(entries))
	copy(copied, entries)
	return Reel{Mode: mode, Entries: copied, Ceiling: ceiling, total: total}, nil
}

// TotalWeight is the normalising denominator of the table.
func (reel Reel) TotalWeight() int {
	return reel.total
}

// Pick maps roll in [0, TotalWeight) onto an entry.
func (reel Reel) Pick(roll int) ReelEntry {
	cumulative := 0
	for _, entry := range reel.Entries {
		cumulative += entry.Weight
		if roll < cumulative {
			return entry
		}
	}
	return ReelEntry{Symbol: SymbolMiss}
}

// Draw picks one entry using random.
func (reel Reel) Draw(random RandomSource) ReelEntry {
	return reel.Pick(random.IntN(reel.total))
}

// Resolve returns the outcome for a player with nonWins consecutive non-winning spins.
// At or above the ceiling the forced table replaces the weighted draw. forcedRoll is in
// [0, total forced weight).
func (reel Reel) Resolve(nonWins int64, roll int, forcedRoll int) (ReelEntry, bool) {
	if nonWins < reel.Ceiling {
		return reel.Pick(roll), false
	}
	symbol := pickForced(forcedRoll)
	return ReelEntry{Symbol: symbol, Multiplier: reel.multiplierOf(symbol)}, true
}

func (reel Reel) multiplierOf(symbol Symbol) int64 {
	for _, entry := range reel.Entries {
		if entry.Symbol == symbol {
			return entry.Multiplier
		}
	}
	return 0
}

func forcedTotalWeight() int {
	total := 0
	for _, outcome := range ForcedOutcomes {
		total += outcome.Weight
	}
	return total
}

func pickForced(roll int) Symbol {
	cumulative := 0
	for _, outcome := range ForcedOutcomes {
		cumulative += outcome.Weight
		if roll < cumulative {
			return outcome.Symbol
		}
	}
	return ForcedOutcomes[0].Symbol
}

var presetReels = map[string]Reel{
	"1": mustPreset("1", 1000, 3, 50, 100, 800, 1800, 7247),
	"2": mustPreset("2", 900, 5, 60, 120, 850, 1900, 7065),
	"3": mustPreset("3", 800, 8, 70, 150, 900, 2000, 6872),
	"4": mustPreset("4", 600, 12, 100, 200, 1000, 2100, 6588),
	"5": mustPreset("5", 500, 20, 150, 300, 1100, 2200, 6230),
	"6": mustPreset("6", 300, 40, 300, 500, 1200, 2300, 5660),
	"L": mustPreset("L", 99999, 0, 0, 0, 0, 500, 9500),
}

func mustPreset(mode string, ceiling int64, diamond, seven, wild, bell, cherry, miss int) Reel {
	reel, err := NewReel(mode, []ReelEntry{
		{Symbol: SymbolDiamond, Weight: diamond, Multiplier: 100},
		{Symbol: SymbolSeven, Weight: seven, Multiplier: 20},
		{Symbol: SymbolWild, Weight: wild, Multiplier: 10},
		{Symbol: SymbolBell, Weight: bell, Multiplier: 5},
		{Symbol: SymbolCherry, Weight: cherry, Multiplier: 2},
		{Symbol: SymbolMiss, Weight: miss, Multiplier: 0},
	}, ceiling)
	if err != nil {
		panic(err)
	}
	return reel
}

// ReelForMode returns the preset reel for mode, or DefaultMode when mode is empty.
func ReelForMode(mode string) (Reel, error) {
	if mode == "" {
		mode = DefaultMode
	}
	reel, ok := presetReels[mode]
	if !ok {
		return Reel{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return reel, nil
}

// Modes lists the preset mode names.
func Modes() []string {
	modes := make([]string, 0, len(presetReels))
	for mode := range presetReels {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

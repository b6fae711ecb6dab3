package gambling

import (
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
)

// ArenaConfig holds per-game pacing rules.
//
// A player must wait Cooldown between plays. After LossStreakLimit consecutive losses the
// next attempt is refused, the player is cooled off for CoolOff and the streak drops to
// LossStreakResume. Entries idle for longer than IdleTTL are evicted by Sweep; when the arena
// holds MaxEntries players the least recently active one is evicted to admit a new player.
type ArenaConfig struct {
	Cooldown         time.Duration
	CoolOff          time.Duration
	LossStreakLimit  int
	LossStreakResume int
	IdleTTL          time.Duration
	MaxEntries       int
}

// ArenaStatus is a snapshot of one player.
type ArenaStatus struct {
	LastPlayed   time.Time
	LossStreak   int
	CoolOffUntil time.Time
}

type arenaEntry struct {
	lastPlayed   time.Time
	lossStreak   int
	coolOffUntil time.Time
}

// Arena tracks cooldowns and loss streaks in memory.
type Arena struct {
	mu      sync.Mutex
	config  ArenaConfig
	entries map[ledger.UserID]*arenaEntry
}

// NewArena returns an empty Arena.
func NewArena(config ArenaConfig) *Arena {
	return &Arena{config: config, entries: make(map[ledger.UserID]*arenaEntry)}
}

// Admit reserves a play for userID at now or explains why it must wait.
func (arena *Arena) Admit(userID ledger.UserID, now time.Time) error {
	arena.mu.Lock()
	defer arena.mu.Unlock()

	entry, ok := arena.entries[userID]
	if !ok {
		arena.makeRoom(now)
		entry = &arenaEntry{}
		arena.entries[userID] = entry
	}
	if now.Before(entry.coolOffUntil) {
		return fmt.Errorf("%w: %s left", ErrCoolingOff, entry.coolOffUntil.Sub(now).Round(time.Millisecond))
	}
	if !entry.lastPlayed.IsZero() && now.Sub(entry.lastPlayed) < arena.config.Cooldown {
		return fmt.Errorf("%w: %s left", ErrCooldownActive, arena.config.Cooldown-now.Sub(entry.lastPlayed))
	}
	if arena.config.LossStreakLimit > 0 && entry.lossStreak >= arena.config.LossStreakLimit {
		streak := entry.lossStreak
		entry.lossStreak = arena.config.LossStreakResume
		entry.coolOffUntil = now.Add(arena.config.CoolOff)
		entry.lastPlayed = now
		return fmt.Errorf("%w: %d losses in a row", ErrCoolingOff, streak)
	}
	entry.lastPlayed = now
	return nil
}

// Record updates the loss streak after a settled play.
func (arena *Arena) Record(userID ledger.UserID, won bool) {
	arena.mu.Lock()
	defer arena.mu.Unlock()
	entry, ok := arena.entries[userID]
	if !ok {
		return
	}
	if won {
		entry.lossStreak = 0
		return
	}
	entry.lossStreak++
}

// Status returns the current entry for userID.
func (arena *Arena) Status(userID ledger.UserID) (ArenaStatus, bool) {
	arena.mu.Lock()
	defer arena.mu.Unlock()
	entry, ok := arena.entries[userID]
	if !ok {
		return ArenaStatus{}, false
	}
	return ArenaStatus{LastPlayed: entry.lastPlayed, LossStreak: entry.lossStreak, CoolOffUntil: entry.coolOffUntil}, true
}

// Sweep evicts entries idle for longer than IdleTTL and returns how many were removed.
func (arena *Arena) Sweep(now time.Time) int {
	arena.mu.Lock()
	defer arena.mu.Unlock()
	return arena.sweepLocked(now)
}

// Len reports tracked players.
func (arena *Arena) Len() int {
	arena.mu.Lock()
	defer arena.mu.Unlock()
	return len(arena.entries)
}

func (arena *Arena) sweepLocked(now time.Time) int {
	if arena.config.IdleTTL <= 0 {
		return 0
	}
	removed := 0
	for userID, entry := range arena.entries {
		if now.Sub(entry.lastPlayed) > arena.config.IdleTTL && !now.Before(entry.coolOffUntil) {
			delete(arena.entries, userID)
			removed++
		}
	}
	return removed
}

func (arena *Arena) makeRoom(now time.Time) {
	if arena.config.MaxEntries <= 0 || len(arena.entries) < arena.config.MaxEntries {
		return
	}
	arena.sweepLocked(now)
	for len(arena.entries) >= arena.config.MaxEntries {
		var (
			oldestID   ledger.UserID
			oldestTime time.Time
			found      bool
		)
		for userID, entry := range arena.entries {
			if !found || entry.lastPlayed.Before(oldestTime) {
				oldestID, oldestTime, found = userID, entry.lastPlayed, true
			}
		}
		if !found {
			return
		}
		delete(arena.entries, oldestID)
	}
}

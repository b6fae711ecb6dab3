// Package access defines the ordered privilege levels used to gate operator commands.
package access

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLevel indicates a level name that does not parse.
var ErrUnknownLevel = errors.New("unknown access level")

// Level is an ordered privilege; a higher value grants everything a lower one does.
type Level int

const (
	LevelNone Level = iota
	LevelAdmin
	LevelGoddess
	LevelSupremeGod
)

const (
	levelNameNone       = "NONE"
	levelNameAdmin      = "ADMIN"
	levelNameGoddess    = "GODDESS"
	levelNameSupremeGod = "SUPREME_GOD"
)

var levelNames = map[Level]string{
	LevelNone:       levelNameNone,
	LevelAdmin:      levelNameAdmin,
	LevelGoddess:    levelNameGoddess,
	LevelSupremeGod: levelNameSupremeGod,
}

// ParseLevel accepts the canonical names case-insensitively. An empty string is LevelNone.
func ParseLevel(raw string) (Level, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return LevelNone, nil
	}
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for level, name := range levelNames {
		if name == normalized {
			return level, nil
		}
	}
	return LevelNone, fmt.Errorf("%w: %q", ErrUnknownLevel, raw)
}

// AtLeast reports whether level grants required.
func (level Level) AtLeast(required Level) bool {
	return level >= required
}

func (level Level) String() string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(level))
}

// Valid reports whether level is one of the defined constants.
func (level Level) Valid() bool {
	_, ok := levelNames[level]
	return ok
}

func (level Level) MarshalText() ([]byte, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, int(level))
	}
	return []byte(level.String()), nil
}

func (level *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*level = parsed
	return nil
}

// Highest returns the strongest level among levels, LevelNone when empty.
func Highest(levels ...Level) Level {
	highest := LevelNone
	for _, level := range levels {
		if level > highest {
			highest = level
		}
	}
	return highest
}

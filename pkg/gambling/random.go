package gambling

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// RandomSource yields uniform integers in [0, n).
type RandomSource interface {
	IntN(n int) int
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource returns a goroutine-safe PCG source seeded from crypto/rand.
func NewRandomSource() (RandomSource, error) {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return NewSeededSource(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:])), nil
}

// NewSeededSource returns a deterministic goroutine-safe source.
func NewSeededSource(first uint64, second uint64) RandomSource {
	return &lockedSource{rng: rand.New(rand.NewPCG(first, second))}
}

func (source *lockedSource) IntN(n int) int {
	source.mu.Lock()
	defer source.mu.Unlock()
	return source.rng.IntN(n)
}

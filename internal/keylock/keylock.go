// Package keylock provides mutual exclusion scoped to a string key.
package keylock

import "sync"

// Set hands out one mutex per key and forgets keys nobody holds or waits on.
type Set struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty Set.
func New() *Set {
	return &Set{entries: make(map[string]*entry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (set *Set) Lock(key string) func() {
	held := set.acquire(key)
	held.mu.Lock()
	return set.releaser(key, held)
}

// TryLock returns false without blocking when key is already held.
func (set *Set) TryLock(key string) (func(), bool) {
	held := set.acquire(key)
	if !held.mu.TryLock() {
		set.drop(key, held)
		return nil, false
	}
	return set.releaser(key, held), true
}

// Len reports how many keys are currently tracked.
func (set *Set) Len() int {
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.entries)
}

func (set *Set) acquire(key string) *entry {
	set.mu.Lock()
	defer set.mu.Unlock()
	if set.entries == nil {
		set.entries = make(map[string]*entry)
	}
	held, ok := set.entries[key]
	if !ok {
		held = &entry{}
		set.entries[key] = held
	}
	held.refs++
	return held
}

func (set *Set) releaser(key string, held *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			held.mu.Unlock()
			set.drop(key, held)
		})
	}
}

func (set *Set) drop(key string, held *entry) {
	set.mu.Lock()
	defer set.mu.Unlock()
	held.refs--
	if held.refs == 0 {
		delete(set.entries, key)
	}
}

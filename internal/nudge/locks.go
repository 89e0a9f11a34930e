package nudge

import (
	"sort"
	"sync"

	"github.com/spigell/jobmatch/internal/domain"
)

// keyedMutex serializes read-modify-write cycles per vector inside one process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

func lockKey(t domain.EntityType, id string) string {
	return string(t) + ":" + id
}

// lock acquires every key in sorted order and returns the release func.
func (k *keyedMutex) lock(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]string, 0, len(sorted))
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		k.acquire(key).Lock()
		held = append(held, key)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.release(held[i])
		}
	}
}

func (k *keyedMutex) acquire(key string) *refMutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	return m
}

func (k *keyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	m := k.locks[key]
	m.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
}

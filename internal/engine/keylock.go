package engine

import "sync"

// keyLocks hands out one mutex per ledger key so two events for the same
// (lead, provider) pair serialize while unrelated records proceed in
// parallel. Entries are refcounted and removed when the last holder leaves,
// so the map does not grow with ledger history.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// Acquire blocks until the key's mutex is held and returns the release func.
func (k *keyLocks) Acquire(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

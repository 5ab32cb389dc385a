package tracker

import "sync"

// keyedLocks hands out one mutex per load id so position updates for the
// same load never interleave, while unrelated loads proceed in parallel.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*entry)}
}

// lock acquires the mutex for key and returns its release func. Entries are
// reference-counted and removed when the last holder releases, so the map
// does not grow with the total number of loads ever seen.
func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

package core

import "sync"

// KeyedMutex hands out one mutex per key and forgets it once nobody holds
// or waits for it. The zero value is ready to use.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until k is free and returns the matching unlock.
func (km *KeyedMutex[K]) Lock(k K) (unlock func()) {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[K]*refMutex)
	}
	m, ok := km.locks[k]
	if !ok {
		m = &refMutex{}
		km.locks[k] = m
	}
	m.refs++
	km.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		km.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(km.locks, k)
		}
		km.mu.Unlock()
	}
}

// Len is the number of keys currently held or waited on.
func (km *KeyedMutex[K]) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}

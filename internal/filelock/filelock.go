// Package filelock provides a per-key in-process lock guarding the
// per-session, per-job, and per-user document files: one writer at a
// time, and reads take the same lock to avoid torn reads.
package filelock

import "sync"

// KeyedLocker hands out one *sync.Mutex per key, created lazily and kept
// for the process lifetime.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty KeyedLocker.
func New() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedLocker) mutexFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock blocks until the key's lock is acquired and returns an unlock func.
func (k *KeyedLocker) Lock(key string) func() {
	m := k.mutexFor(key)
	m.Lock()
	return m.Unlock
}

// Package keymutex provides named mutual exclusion. Callers lock a
// string key and release via the returned func; entries are reference
// counted and dropped when the last holder releases, so the map does
// not grow with every key ever seen.
package keymutex

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyMutex serializes work per string key. The zero value is not
// usable; construct with New.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

// Lock blocks until key is held and returns the release func.
// The release func is idempotent.
func (k *KeyMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		})
	}
}

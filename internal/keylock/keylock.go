// Package keylock provides mutual exclusion scoped to an entity key.
package keylock

import "sync"

// Locker hands out one mutex per key and forgets it once nobody holds or
// waits on it.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// RequestKey is the lock key of a service request.
func RequestKey(id string) string { return "request:" + id }

// AgentKey is the lock key of an agent.
func AgentKey(id string) string { return "agent:" + id }

// ZoneKey is the lock key of a zone.
func ZoneKey(id string) string { return "zone:" + id }

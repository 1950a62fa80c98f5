package services

import "sync"

// DuelLocks serializa las transiciones de cada duelo. Los mutex se crean bajo
// demanda y se liberan cuando nadie los usa; duelos distintos nunca compiten.
type DuelLocks struct {
	mu    sync.Mutex
	locks map[string]*duelLock
}

type duelLock struct {
	mu   sync.Mutex
	refs int
}

// NewDuelLocks crea un registro de locks vacío
func NewDuelLocks() *DuelLocks {
	return &DuelLocks{locks: make(map[string]*duelLock)}
}

// Lock bloquea el duelo y devuelve la función que lo libera
func (l *DuelLocks) Lock(duelID string) (unlock func()) {
	l.mu.Lock()
	lock, ok := l.locks[duelID]
	if !ok {
		lock = &duelLock{}
		l.locks[duelID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, duelID)
		}
		l.mu.Unlock()
	}
}

// Len devuelve cuántos duelos tienen el lock tomado o en espera
func (l *DuelLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

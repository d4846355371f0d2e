package runlock

import (
	"context"
	"sync"
)

// LocalLock serializes runs within a single process. Used when no
// redis URL is configured.
type LocalLock struct {
	mu   sync.Mutex
	held map[int64]bool
}

func NewLocal() *LocalLock {
	return &LocalLock{held: make(map[int64]bool)}
}

func (l *LocalLock) Acquire(ctx context.Context, configurationID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[configurationID] {
		return false, nil
	}
	l.held[configurationID] = true
	return true, nil
}

func (l *LocalLock) Release(ctx context.Context, configurationID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, configurationID)
	return nil
}

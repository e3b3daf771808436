// Package lock serializes pipeline runs per specification id.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

// Local is an in-process keyed mutex for single-instance deployments.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		held, busy := l.slots[key]
		if !busy {
			done := make(chan struct{})
			l.slots[key] = done
			l.mu.Unlock()
			return l.releaser(key, done), nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, domain.WrapError(domain.ErrLockNotAcquired, "lock "+key, fmt.Errorf("wait: %w", ctx.Err()))
		}
	}
}

func (l *Local) releaser(key string, done chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.slots[key] == done {
				delete(l.slots, key)
			}
			l.mu.Unlock()
			close(done)
		})
	}
}

package lock

import (
	"context"
	"sync"
	"time"

	"github.com/hive-corporation/actionables/internal/core/ports"
)

var _ ports.JobLock = (*LocalLock)(nil)

// LocalLock only excludes jobs within one process. It is used when redis
// is not configured.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: map[string]time.Time{}, now: time.Now}
}

func (l *LocalLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expires, ok := l.held[name]; ok && l.now().Before(expires) {
		return nil, false, nil
	}
	expires := l.now().Add(ttl)
	l.held[name] = expires

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// a lease that expired and was taken over is not ours to drop
		if l.held[name].Equal(expires) {
			delete(l.held, name)
		}
	}
	return release, true, nil
}

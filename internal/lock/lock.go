// Package lock provides the host-local advisory lock that serializes trading cycles across bot
// processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrTimeout is returned when the lock could not be taken within the timeout.
var ErrTimeout = errors.New("lock: acquisition timed out")

// retryDelay is how often a contended lock is retried.
const retryDelay = 50 * time.Millisecond

// Guard is a held lock. Release it with defer right after Acquire succeeds.
type Guard struct {
	fl       *flock.Flock
	once     sync.Once
	acquired time.Time
	waited   time.Duration
}

// Acquire takes the lock file at path, waiting at most timeout. A timeout or a cancelled ctx
// yields ErrTimeout (wrapped) and nothing is held.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Guard, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("lock dir: %w", err)
		}
	}

	start := time.Now()
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(path)
	ok, err := fl.TryLockContext(lctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, path, timeout)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, path, timeout)
	}
	now := time.Now()
	return &Guard{fl: fl, acquired: now, waited: now.Sub(start)}, nil
}

// Waited is how long Acquire blocked before the lock was granted.
func (g *Guard) Waited() time.Duration { return g.waited }

// Held is how long the lock has been held.
func (g *Guard) Held() time.Duration { return time.Since(g.acquired) }

// Release unlocks. Safe to call more than once and on a nil guard.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	var err error
	g.once.Do(func() {
		err = g.fl.Unlock()
	})
	return err
}

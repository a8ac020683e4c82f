// Package notifier delivers operator notifications. Delivery is best effort: a failed
// notification is logged and never affects trading.
package notifier

import (
	"context"
	"sync/atomic"

	"github.com/sourcegraph/conc"
)

// Notifier sends one message. It reports whether the message was delivered.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) bool
}

// Multi fans a message out to every notifier concurrently. It reports true when at least one
// delivery succeeded.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, subject, body string) bool {
	var (
		wg conc.WaitGroup
		ok atomic.Bool
	)
	for _, n := range m {
		wg.Go(func() {
			if n.Notify(ctx, subject, body) {
				ok.Store(true)
			}
		})
	}
	wg.Wait()
	return ok.Load()
}

// Noop discards messages.
type Noop struct{}

func (Noop) Notify(context.Context, string, string) bool { return true }

package browser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"webreplay/internal/logging"
)

// DefaultQueueTimeout is how long an acquisition request waits for a
// free slot before giving up.
const DefaultQueueTimeout = 30 * time.Second

// Pool bounds how many browser sessions exist at once. Requests beyond
// the limit queue; a queue wait that exceeds the timeout surfaces as an
// AcquisitionError, the same failure mode as a browser that never
// started.
type Pool struct {
	acquirer     *Acquirer
	slots        *semaphore.Weighted
	queueTimeout time.Duration
	logger       *logging.Logger
}

// NewPool wraps an acquirer with maxSessions concurrent slots.
// maxSessions <= 0 means unbounded.
func NewPool(acquirer *Acquirer, maxSessions int, queueTimeout time.Duration) *Pool {
	var slots *semaphore.Weighted
	if maxSessions > 0 {
		slots = semaphore.NewWeighted(int64(maxSessions))
	}
	if queueTimeout <= 0 {
		queueTimeout = DefaultQueueTimeout
	}
	return &Pool{
		acquirer:     acquirer,
		slots:        slots,
		queueTimeout: queueTimeout,
		logger:       logging.NewComponentLogger("BrowserPool"),
	}
}

// Acquire waits for a slot, then delegates to the acquirer. The slot is
// returned when the handle is released, however the run ended.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	return p.AcquireWith(ctx, p.acquirer.opts)
}

// AcquireWith is Acquire with per-call options.
func (p *Pool) AcquireWith(ctx context.Context, opts Options) (*Handle, error) {
	if p.slots != nil {
		waitCtx, cancel := context.WithTimeout(ctx, p.queueTimeout)
		err := p.slots.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("acquisition cancelled: %w", ctx.Err())
			}
			p.logger.Warn("Browser slot queue timed out after %s", p.queueTimeout)
			return nil, &AcquisitionError{Attempts: []StrategyFailure{{
				Strategy: "pool",
				Err:      fmt.Errorf("no browser slot available within %s", p.queueTimeout),
			}}}
		}
	}

	handle, err := p.acquirer.AcquireWith(ctx, opts)
	if err != nil {
		if p.slots != nil {
			p.slots.Release(1)
		}
		return nil, err
	}

	if p.slots != nil {
		// Release is once-guarded, so the slot comes back exactly once.
		handle.onRelease = func() { p.slots.Release(1) }
	}
	return handle, nil
}

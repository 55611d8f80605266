package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"webreplay/internal/logging"
)

// Handle is an acquired browser session. It is opaque to downstream
// code: callers drive the browser through Run and never branch on which
// strategy produced it. Strategy exists for logging only.
type Handle struct {
	strategy Strategy
	ctx      context.Context
	cleanup  []context.CancelFunc

	releaseOnce sync.Once
	onRelease   func()

	mu       sync.Mutex
	lastUsed time.Time

	logger *logging.Logger
}

func newHandle(strategy Strategy, ctx context.Context, cleanup ...context.CancelFunc) *Handle {
	return &Handle{
		strategy: strategy,
		ctx:      ctx,
		cleanup:  cleanup,
		lastUsed: time.Now(),
		logger:   logging.NewComponentLogger("BrowserHandle"),
	}
}

// Strategy names the acquisition strategy that produced this handle.
// Diagnostics only.
func (h *Handle) Strategy() string {
	return string(h.strategy)
}

// Target returns the underlying automation context. Selector lookups
// run against it directly.
func (h *Handle) Target() context.Context {
	return h.ctx
}

// Run executes one driver call against the session with a hard
// timeout. Calls are serialized: a session is one page with one
// cumulative state, concurrent driver calls against it would interleave
// unpredictably.
func (h *Handle) Run(callCtx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if h == nil {
		return fmt.Errorf("browser handle is nil")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastUsed = time.Now()

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(h.ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(runCtx) }()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		// The in-flight call is not preemptible; wait for it so the
		// browser is never abandoned mid-operation.
		err := <-done
		if err != nil {
			return err
		}
		return callCtx.Err()
	}
}

// Release tears the session down. Safe to call more than once and safe
// to call on a handle from a partially failed acquisition.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.releaseOnce.Do(func() {
		h.logger.Debug("Releasing browser handle (strategy=%s)", h.strategy)
		for _, cancel := range h.cleanup {
			if cancel != nil {
				cancel()
			}
		}
		if h.onRelease != nil {
			h.onRelease()
		}
	})
}

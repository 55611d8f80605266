package browser

import (
	"context"
	"fmt"
	"strings"

	"webreplay/internal/logging"
)

// StrategyFailure records one strategy's failed attempt.
type StrategyFailure struct {
	Strategy Strategy
	Err      error
}

// AcquisitionError means no strategy produced a usable browser. It is
// fatal to the run that requested the session.
type AcquisitionError struct {
	Attempts []StrategyFailure
}

func (e *AcquisitionError) Error() string {
	if len(e.Attempts) == 0 {
		return "browser acquisition failed: no strategies configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return fmt.Sprintf("browser acquisition failed after %d strategies: %s",
		len(e.Attempts), strings.Join(parts, "; "))
}

// Acquirer obtains browser sessions by walking a fixed, ordered list of
// strategies. It moves to the next strategy only on a recognized
// initialization failure; any other error propagates immediately so
// real faults are not papered over by fallback.
type Acquirer struct {
	opts       Options
	strategies []NamedStrategy
	logger     *logging.Logger
}

// New builds an acquirer with the default strategy order for the given
// options.
func New(opts Options) *Acquirer {
	return NewWithStrategies(opts, defaultStrategies(opts))
}

// NewWithStrategies builds an acquirer with an explicit strategy list.
func NewWithStrategies(opts Options, strategies []NamedStrategy) *Acquirer {
	return &Acquirer{
		opts:       opts,
		strategies: strategies,
		logger:     logging.NewComponentLogger("SessionAcquisition"),
	}
}

// Acquire returns the first handle a strategy produces. The winning
// strategy is visible via Handle.Strategy for logs, nothing more.
func (a *Acquirer) Acquire(ctx context.Context) (*Handle, error) {
	return a.AcquireWith(ctx, a.opts)
}

// AcquireWith runs the same strategy list with per-call options, e.g. a
// caller-requested headless override.
func (a *Acquirer) AcquireWith(ctx context.Context, opts Options) (*Handle, error) {
	var attempts []StrategyFailure

	for _, s := range a.strategies {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("acquisition cancelled: %w", err)
		}

		handle, err := s.Acquire(ctx, opts)
		if err == nil {
			a.logger.Info("Browser acquired via strategy %s", s.Name)
			return handle, nil
		}

		if !IsInitFailure(err) {
			return nil, fmt.Errorf("strategy %s failed: %w", s.Name, err)
		}
		a.logger.Warn("Strategy %s failed to initialize, trying next: %v", s.Name, err)
		attempts = append(attempts, StrategyFailure{Strategy: s.Name, Err: err})
	}

	return nil, &AcquisitionError{Attempts: attempts}
}

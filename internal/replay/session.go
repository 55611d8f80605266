package replay

import (
	"context"
	"time"
)

// Session is the slice of a browser handle the replay path needs.
// Downstream code never learns which acquisition strategy produced it;
// Strategy is surfaced for logs only.
type Session interface {
	Run(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error
	Target() context.Context
	Strategy() string
	Release()
}

// AcquireFunc obtains a fresh session for one replay run. Callers
// close over an acquirer or pool, picking the browser options for the
// run.
type AcquireFunc func(ctx context.Context) (Session, error)

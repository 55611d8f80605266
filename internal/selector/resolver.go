package selector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"webreplay/internal/logging"
	"webreplay/internal/xerrors"
)

// DefaultCandidateTimeout bounds a single candidate lookup so one slow
// query cannot eat the whole resolution budget.
const DefaultCandidateTimeout = 1500 * time.Millisecond

// Resolved is the outcome of a successful resolution: the candidate that
// matched and the executable query it compiled to.
type Resolved struct {
	Candidate Candidate
	Query     string
	ByXPath   bool
}

// ResolutionError reports that every candidate was tried and none
// matched an interactable element. Exhausted lists the kinds attempted
// in the order they were tried; it is empty when the action carried no
// candidates at all.
type ResolutionError struct {
	Exhausted []Kind
}

func (e *ResolutionError) Error() string {
	if len(e.Exhausted) == 0 {
		return "selector resolution failed: no candidates recorded"
	}
	kinds := make([]string, len(e.Exhausted))
	for i, k := range e.Exhausted {
		kinds[i] = string(k)
	}
	return fmt.Sprintf("selector resolution failed: exhausted candidates [%s]", strings.Join(kinds, ", "))
}

// LookupFunc probes the page for a single query. It reports whether an
// element matched and whether that element is interactable (visible and
// enabled). Transient probe errors are treated by the resolver the same
// as not-found; permanent faults abort the resolution.
type LookupFunc func(ctx context.Context, query string, byXPath bool, timeout time.Duration) (found, interactable bool, err error)

// Resolver walks an action's candidate list in canonical priority order
// until one matches an interactable element. When a full pass over the
// list finds nothing and budget remains, it backs off briefly and
// re-walks from the top so late-rendering pages still resolve on the
// most stable candidate rather than whichever appeared first.
type Resolver struct {
	Lookup           LookupFunc
	CandidateTimeout time.Duration
	Retry            xerrors.RetryConfig

	logger *logging.Logger
}

// New builds a resolver around the given lookup. Pass ChromedpLookup
// for a live browser target, or a fake in tests.
func New(lookup LookupFunc) *Resolver {
	return &Resolver{
		Lookup:           lookup,
		CandidateTimeout: DefaultCandidateTimeout,
		Retry: xerrors.RetryConfig{
			BaseDelay: 200 * time.Millisecond,
			MaxDelay:  time.Second,
		},
		logger: logging.NewComponentLogger("SelectorResolver"),
	}
}

// Resolve tries candidates in canonical priority order within the given
// total timeout. A lower-priority candidate is only attempted after
// every higher-priority one in the current pass came up empty.
func (r *Resolver) Resolve(ctx context.Context, candidates []Candidate, timeout time.Duration) (*Resolved, error) {
	sorted := SortCandidates(candidates)
	if len(sorted) == 0 {
		return nil, &ResolutionError{Exhausted: []Kind{}}
	}

	// Exhausted reports only kinds whose probe actually ran; a pass cut
	// short by the deadline must not blame candidates it never tried.
	attempted := make([]Kind, 0, len(sorted))

	deadline := time.Now().Add(timeout)
	for pass := 0; ; pass++ {
		for _, c := range sorted {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("resolution cancelled: %w", err)
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, &ResolutionError{Exhausted: attempted}
			}

			query, byXPath, err := c.Query()
			if err != nil {
				r.logger.Warn("Skipping malformed candidate %s: %v", c, err)
				continue
			}

			budget := r.candidateTimeout()
			if budget > remaining {
				budget = remaining
			}
			if pass == 0 {
				attempted = append(attempted, c.Kind)
			}
			found, interactable, err := r.Lookup(ctx, query, byXPath, budget)
			if err != nil {
				if !xerrors.IsTransient(err) {
					return nil, fmt.Errorf("lookup via %s: %w", c, err)
				}
				// Transient probe churn must not promote a weaker
				// candidate for a reason other than genuine absence.
				// Treat it as absent and move on.
				r.logger.Debug("Transient lookup failure for %s, treating as absent: %v", c, err)
				continue
			}
			if found && interactable {
				r.logger.Debug("Resolved via %s after pass %d", c, pass+1)
				return &Resolved{Candidate: c, Query: query, ByXPath: byXPath}, nil
			}
			if found {
				r.logger.Debug("Candidate %s matched but element not interactable", c)
			}
		}

		wait := xerrors.Backoff(pass, r.Retry)
		if time.Until(deadline) <= wait {
			return nil, &ResolutionError{Exhausted: attempted}
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("resolution cancelled: %w", ctx.Err())
		}
	}
}

func (r *Resolver) candidateTimeout() time.Duration {
	if r.CandidateTimeout > 0 {
		return r.CandidateTimeout
	}
	return DefaultCandidateTimeout
}

// probeScript locates the first element matched by the query and grades
// it: "missing", "disabled", "hidden" or "ok". One Evaluate round trip
// keeps the probe atomic, no stale node ids between find and check.
const probeScript = `(() => {
	const q = %s;
	let el = null;
	if (%t) {
		const r = document.evaluate(q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
		el = r.singleNodeValue;
	} else {
		el = document.querySelector(q);
	}
	if (!el) return "missing";
	if (el.disabled) return "disabled";
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	if (style.display === "none" || style.visibility === "hidden" || rect.width === 0 || rect.height === 0) {
		return "hidden";
	}
	return "ok";
})()`

// ChromedpLookup probes a live page. ctx must be a chromedp target
// context.
func ChromedpLookup(ctx context.Context, query string, byXPath bool, timeout time.Duration) (bool, bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var verdict string
	script := fmt.Sprintf(probeScript, strconv.Quote(query), byXPath)
	if err := chromedp.Run(probeCtx, chromedp.Evaluate(script, &verdict)); err != nil {
		if probeCtx.Err() == context.DeadlineExceeded {
			return false, false, nil
		}
		return false, false, err
	}

	switch verdict {
	case "ok":
		return true, true, nil
	case "hidden", "disabled":
		return true, false, nil
	default:
		return false, false, nil
	}
}

package replay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"webreplay/internal/logging"
	"webreplay/internal/recording"
	"webreplay/internal/selector"
	"webreplay/internal/xerrors"
)

// FailureKind classifies why a step failed. None of these abort the
// run; they are recorded per step.
type FailureKind string

const (
	FailureSelectorExhausted FailureKind = "selector_exhausted"
	FailureActionTimeout     FailureKind = "action_timeout"
	FailureActionRejected    FailureKind = "action_rejected"
	FailurePostcondition     FailureKind = "postcondition_failed"
)

// Outcome is the result of executing one recorded action.
type Outcome struct {
	Success bool
	Kind    FailureKind
	Error   string

	// NonFatal failures (extract) count against actions_failed but not
	// against overall replay success.
	NonFatal bool

	// Done marks the explicit terminal action; the engine stops the
	// sequence after it.
	Done bool

	// Extracted holds the content read by an extract action.
	Extracted string
}

func failure(kind FailureKind, format string, args ...any) Outcome {
	return Outcome{Kind: kind, Error: fmt.Sprintf(format, args...)}
}

// StepExecutor performs one recorded action against a session.
type StepExecutor interface {
	Execute(ctx context.Context, sess Session, action recording.RecordedAction) Outcome
}

// Executor is the chromedp-backed StepExecutor.
type Executor struct {
	// Resolver locates the target element for selector-driven actions.
	Resolver *selector.Resolver

	// Secrets re-supplies values the recording stored redacted.
	Secrets map[string]string

	ResolveTimeout time.Duration
	ActionTimeout  time.Duration

	// DefaultScrollDelta is used when a scroll step recorded no delta.
	DefaultScrollDelta float64

	// Driver executes chromedp actions against a target context.
	// Swapped in tests.
	Driver func(ctx context.Context, actions ...chromedp.Action) error

	// Retry bounds re-attempts of driver calls that fail with transient
	// CDP errors: stale node ids, dropped DevTools connections.
	// Permanent rejections surface on the first attempt.
	Retry xerrors.RetryConfig

	logger *logging.Logger
}

// NewExecutor builds an executor that resolves selectors against the
// live session.
func NewExecutor() *Executor {
	return &Executor{
		Resolver:           selector.New(selector.ChromedpLookup),
		ResolveTimeout:     10 * time.Second,
		ActionTimeout:      30 * time.Second,
		DefaultScrollDelta: 400,
		Driver:             chromedp.Run,
		Retry: xerrors.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   150 * time.Millisecond,
			MaxDelay:    time.Second,
		},
		logger: logging.NewComponentLogger("ActionExecutor"),
	}
}

// act runs one driver interaction under the action timeout, retrying
// transient CDP failures.
func (e *Executor) act(ctx context.Context, sess Session, fn func(context.Context) error) error {
	return sess.Run(ctx, e.ActionTimeout, func(runCtx context.Context) error {
		return xerrors.RetryWithLog(runCtx, e.Retry, fn, e.logger)
	})
}

// Execute dispatches on the action type. Selector-driven actions
// resolve first; a resolution failure is the step's failure, the
// driver is never called with an unresolved target.
func (e *Executor) Execute(ctx context.Context, sess Session, action recording.RecordedAction) Outcome {
	switch action.Type {
	case recording.ActionNavigate:
		return e.navigate(ctx, sess, action)
	case recording.ActionWait:
		return e.wait(action)
	case recording.ActionDone:
		return Outcome{Success: true, Done: true}
	case recording.ActionClick, recording.ActionFill, recording.ActionScroll, recording.ActionExtract:
		resolved, err := e.Resolver.Resolve(sess.Target(), action.SelectorCandidates, e.ResolveTimeout)
		if err != nil {
			var resErr *selector.ResolutionError
			if errors.As(err, &resErr) {
				out := failure(FailureSelectorExhausted, "step %d (%s): %v", action.Step, action.Type, resErr)
				out.NonFatal = action.Type == recording.ActionExtract
				return out
			}
			return e.classify(action, err)
		}
		e.logger.Debug("Step %d resolved via %s candidate", action.Step, resolved.Candidate.Kind)

		switch action.Type {
		case recording.ActionClick:
			return e.click(ctx, sess, action, resolved)
		case recording.ActionFill:
			return e.fill(ctx, sess, action, resolved)
		case recording.ActionScroll:
			return e.scroll(ctx, sess, action, resolved)
		default:
			return e.extract(ctx, sess, action, resolved)
		}
	default:
		return failure(FailureActionRejected, "step %d: unsupported action type %q", action.Step, action.Type)
	}
}

func (e *Executor) navigate(ctx context.Context, sess Session, action recording.RecordedAction) Outcome {
	err := e.act(ctx, sess, func(runCtx context.Context) error {
		return e.Driver(runCtx, chromedp.Navigate(action.Params.URL))
	})
	if err != nil {
		return e.classify(action, err)
	}
	return Outcome{Success: true}
}

func (e *Executor) wait(action recording.RecordedAction) Outcome {
	d := time.Duration(action.Params.DurationSeconds * float64(time.Second))
	if d < 0 {
		return failure(FailureActionRejected, "step %d: negative wait duration", action.Step)
	}
	// In-flight actions are not preemptible: a cancellation requested
	// mid-wait takes effect at the next step boundary, after the full
	// duration has elapsed.
	time.Sleep(d)
	return Outcome{Success: true}
}

func (e *Executor) click(ctx context.Context, sess Session, action recording.RecordedAction, resolved *selector.Resolved) Outcome {
	err := e.act(ctx, sess, func(runCtx context.Context) error {
		return e.Driver(runCtx, chromedp.Click(resolved.Query, queryOption(resolved)))
	})
	if err != nil {
		return e.classify(action, err)
	}
	return Outcome{Success: true}
}

func (e *Executor) fill(ctx context.Context, sess Session, action recording.RecordedAction, resolved *selector.Resolved) Outcome {
	text, err := action.Params.FillText(e.Secrets)
	if err != nil {
		return failure(FailureActionRejected, "step %d: %v", action.Step, err)
	}

	err = e.act(ctx, sess, func(runCtx context.Context) error {
		return e.Driver(runCtx,
			chromedp.Clear(resolved.Query, queryOption(resolved)),
			chromedp.SendKeys(resolved.Query, text, queryOption(resolved)),
		)
	})
	if err != nil {
		return e.classify(action, err)
	}

	// Postcondition: the field must actually hold what we typed.
	var got string
	err = e.act(ctx, sess, func(runCtx context.Context) error {
		return e.Driver(runCtx, chromedp.Value(resolved.Query, &got, queryOption(resolved)))
	})
	if err != nil {
		return e.classify(action, err)
	}
	if got != text {
		// Never echo the expected text, it may be a secret.
		return failure(FailurePostcondition, "step %d: field value does not match typed text (%d chars vs %d)",
			action.Step, len(got), len(text))
	}
	return Outcome{Success: true}
}

func (e *Executor) scroll(ctx context.Context, sess Session, action recording.RecordedAction, resolved *selector.Resolved) Outcome {
	dx, dy := action.Params.DeltaX, action.Params.DeltaY
	if dx == 0 && dy == 0 {
		dy = e.DefaultScrollDelta
	}

	err := e.act(ctx, sess, func(runCtx context.Context) error {
		var center []float64
		script := fmt.Sprintf(centerScript, strconv.Quote(resolved.Query), resolved.ByXPath)
		if err := e.Driver(runCtx, chromedp.Evaluate(script, &center)); err != nil {
			return err
		}
		if len(center) != 2 {
			return fmt.Errorf("element center not available")
		}
		wheel := func(p *input.DispatchMouseEventParams) *input.DispatchMouseEventParams {
			return p.WithDeltaX(dx).WithDeltaY(dy)
		}
		return e.Driver(runCtx, chromedp.MouseEvent(input.MouseWheel, center[0], center[1], wheel))
	})
	if err != nil {
		return e.classify(action, err)
	}
	return Outcome{Success: true}
}

func (e *Executor) extract(ctx context.Context, sess Session, action recording.RecordedAction, resolved *selector.Resolved) Outcome {
	var content string
	err := e.act(ctx, sess, func(runCtx context.Context) error {
		script := fmt.Sprintf(extractScript,
			strconv.Quote(resolved.Query), resolved.ByXPath, strconv.Quote(action.Params.Attribute))
		return e.Driver(runCtx, chromedp.Evaluate(script, &content))
	})
	if err != nil {
		out := e.classify(action, err)
		out.NonFatal = true
		return out
	}
	if content == "" {
		return Outcome{
			Kind:     FailurePostcondition,
			Error:    fmt.Sprintf("step %d: extract read empty content", action.Step),
			NonFatal: true,
		}
	}
	return Outcome{Success: true, Extracted: content}
}

// classify maps a driver error onto the failure taxonomy.
func (e *Executor) classify(action recording.RecordedAction, err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure(FailureActionTimeout, "step %d (%s): timed out: %v", action.Step, action.Type, err)
	}
	return failure(FailureActionRejected, "step %d (%s): %v", action.Step, action.Type, err)
}

func queryOption(resolved *selector.Resolved) chromedp.QueryOption {
	if resolved.ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// centerScript returns the viewport center of the matched element as
// [x, y].
const centerScript = `(() => {
	const q = %s;
	let el = null;
	if (%t) {
		el = document.evaluate(q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	} else {
		el = document.querySelector(q);
	}
	if (!el) return [];
	const r = el.getBoundingClientRect();
	return [r.left + r.width / 2, r.top + r.height / 2];
})()`

// extractScript reads an attribute, the form value or the visible text
// of the matched element.
const extractScript = `(() => {
	const q = %s;
	let el = null;
	if (%t) {
		el = document.evaluate(q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	} else {
		el = document.querySelector(q);
	}
	if (!el) return "";
	const attr = %s;
	if (attr) return el.getAttribute(attr) || "";
	if (el.value !== undefined && el.value !== null && el.value !== "") return String(el.value);
	return (el.textContent || "").trim();
})()`

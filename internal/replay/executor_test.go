package replay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"webreplay/internal/recording"
	"webreplay/internal/selector"
	"webreplay/internal/xerrors"
)

// executorForTest resolves against a lookup that never finds anything,
// with budgets small enough for fast tests.
func executorForTest(lookup selector.LookupFunc) *Executor {
	e := NewExecutor()
	e.Resolver = selector.New(lookup)
	e.Resolver.CandidateTimeout = 5 * time.Millisecond
	e.Resolver.Retry.BaseDelay = time.Millisecond
	e.ResolveTimeout = 20 * time.Millisecond
	e.ActionTimeout = 50 * time.Millisecond
	e.Retry = xerrors.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return e
}

func absentLookup(ctx context.Context, q string, x bool, d time.Duration) (bool, bool, error) {
	return false, false, nil
}

func TestExecuteWaitSleepsAndSucceeds(t *testing.T) {
	e := executorForTest(absentLookup)
	action := recording.RecordedAction{Step: 1, Type: recording.ActionWait,
		Params: recording.ActionParams{DurationSeconds: 0.01}}

	start := time.Now()
	out := e.Execute(context.Background(), &fakeSession{}, action)
	if !out.Success {
		t.Fatalf("wait failed: %+v", out)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("wait returned before its duration elapsed")
	}
}

func TestExecuteWaitFinishesDespiteCancellation(t *testing.T) {
	e := executorForTest(absentLookup)
	action := recording.RecordedAction{Step: 1, Type: recording.ActionWait,
		Params: recording.ActionParams{DurationSeconds: 0.04}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := e.Execute(ctx, &fakeSession{}, action)
	elapsed := time.Since(start)

	if !out.Success {
		t.Fatalf("a wait interrupted by cancellation must still succeed: %+v", out)
	}
	if elapsed < 40*time.Millisecond {
		t.Fatalf("wait cut short by cancellation: elapsed %v", elapsed)
	}
}

func TestExecuteClickRetriesTransientDriverErrors(t *testing.T) {
	found := func(ctx context.Context, q string, x bool, d time.Duration) (bool, bool, error) {
		return true, true, nil
	}
	e := executorForTest(found)

	calls := 0
	e.Driver = func(ctx context.Context, actions ...chromedp.Action) error {
		calls++
		if calls == 1 {
			return errors.New("could not find node with given id")
		}
		return nil
	}

	out := e.Execute(context.Background(), &fakeSession{}, recording.RecordedAction{
		Step: 2, Type: recording.ActionClick,
		SelectorCandidates: []selector.Candidate{{Kind: selector.KindID, Value: "login"}},
	})
	if !out.Success {
		t.Fatalf("stale node id should be retried away: %+v", out)
	}
	if calls != 2 {
		t.Fatalf("expected one retry after the stale node id, got %d driver calls", calls)
	}
}

func TestExecuteClickDoesNotRetryPermanentErrors(t *testing.T) {
	found := func(ctx context.Context, q string, x bool, d time.Duration) (bool, bool, error) {
		return true, true, nil
	}
	e := executorForTest(found)

	calls := 0
	e.Driver = func(ctx context.Context, actions ...chromedp.Action) error {
		calls++
		return errors.New("node is not clickable at point")
	}

	out := e.Execute(context.Background(), &fakeSession{}, recording.RecordedAction{
		Step: 2, Type: recording.ActionClick,
		SelectorCandidates: []selector.Candidate{{Kind: selector.KindID, Value: "login"}},
	})
	if out.Success || out.Kind != FailureActionRejected {
		t.Fatalf("expected action_rejected, got %+v", out)
	}
	if calls != 1 {
		t.Fatalf("permanent rejection must surface on the first attempt, got %d driver calls", calls)
	}
}

func TestExecuteDoneIsTerminal(t *testing.T) {
	e := executorForTest(absentLookup)
	out := e.Execute(context.Background(), &fakeSession{}, recording.RecordedAction{
		Step: 4, Type: recording.ActionDone,
	})
	if !out.Success || !out.Done {
		t.Fatalf("done outcome: %+v", out)
	}
}

func TestExecuteClickWithNoMatchIsSelectorExhausted(t *testing.T) {
	e := executorForTest(absentLookup)
	out := e.Execute(context.Background(), &fakeSession{}, recording.RecordedAction{
		Step: 2, Type: recording.ActionClick,
		SelectorCandidates: []selector.Candidate{
			{Kind: selector.KindID, Value: "login"},
			{Kind: selector.KindText, Value: "Log in"},
		},
	})
	if out.Success || out.Kind != FailureSelectorExhausted {
		t.Fatalf("expected selector_exhausted, got %+v", out)
	}
	if !strings.Contains(out.Error, "step 2") {
		t.Fatalf("error must name the step: %q", out.Error)
	}
	if !strings.Contains(out.Error, "id") || !strings.Contains(out.Error, "text") {
		t.Fatalf("error must list exhausted kinds: %q", out.Error)
	}
	if out.NonFatal {
		t.Fatal("click failure is fatal to run success")
	}
}

func TestExecuteExtractExhaustionIsNonFatal(t *testing.T) {
	e := executorForTest(absentLookup)
	out := e.Execute(context.Background(), &fakeSession{}, recording.RecordedAction{
		Step: 5, Type: recording.ActionExtract,
		SelectorCandidates: []selector.Candidate{{Kind: selector.KindCSS, Value: ".price"}},
	})
	if out.Success || !out.NonFatal {
		t.Fatalf("extract exhaustion should be a non-fatal failure: %+v", out)
	}
}

func TestExecuteFillMissingSecretIsRejected(t *testing.T) {
	found := func(ctx context.Context, q string, x bool, d time.Duration) (bool, bool, error) {
		return true, true, nil
	}
	e := executorForTest(found)

	out := e.Execute(context.Background(), &fakeSession{}, recording.RecordedAction{
		Step: 3, Type: recording.ActionFill,
		SelectorCandidates: []selector.Candidate{{Kind: selector.KindName, Value: "password"}},
		Params: recording.ActionParams{
			Text:      recording.SensitivePlaceholder,
			SecretKey: "password",
		},
	})
	if out.Success || out.Kind != FailureActionRejected {
		t.Fatalf("expected action_rejected for missing secret, got %+v", out)
	}
	if strings.Contains(out.Error, "hunter2") {
		t.Fatal("error must not echo secret material")
	}
}

func TestExecuteUnsupportedTypeIsRejected(t *testing.T) {
	e := executorForTest(absentLookup)
	out := e.Execute(context.Background(), &fakeSession{}, recording.RecordedAction{
		Step: 1, Type: "hover",
	})
	if out.Success || out.Kind != FailureActionRejected {
		t.Fatalf("expected action_rejected, got %+v", out)
	}
}

func TestClassifyMapsTimeouts(t *testing.T) {
	e := executorForTest(absentLookup)
	action := recording.RecordedAction{Step: 7, Type: recording.ActionClick}

	out := e.classify(action, context.DeadlineExceeded)
	if out.Kind != FailureActionTimeout {
		t.Fatalf("deadline should classify as timeout: %+v", out)
	}

	out = e.classify(action, errors.New("node is not clickable"))
	if out.Kind != FailureActionRejected {
		t.Fatalf("driver error should classify as rejected: %+v", out)
	}
	if !strings.Contains(out.Error, "step 7") {
		t.Fatalf("error must name the step: %q", out.Error)
	}
}

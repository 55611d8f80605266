package replay

import (
	"context"
	"fmt"
	"time"

	"webreplay/internal/logging"
	"webreplay/internal/recording"
)

// State names the engine's phases. Exposed for logging and tests; a
// run's externally visible contract is its events and Result.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateRunning    State = "running"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// Result is produced once per replay run and never mutated afterwards.
// Success is true iff no fatal step failure occurred; non-fatal extract
// failures still count in ActionsFailed and FailedSteps.
type Result struct {
	SessionID        string   `json:"session_id"`
	Success          bool     `json:"success"`
	ActionsTotal     int      `json:"actions_total"`
	ActionsSucceeded int      `json:"actions_succeeded"`
	ActionsFailed    int      `json:"actions_failed"`
	FailedSteps      []int    `json:"failed_steps"`
	Errors           []string `json:"errors"`
	DurationSeconds  float64  `json:"duration_seconds"`
	Cancelled        bool     `json:"cancelled,omitempty"`
}

// Request describes one replay run.
type Request struct {
	Recording *recording.SessionRecording

	// StopOnFailure aborts the remaining steps after the first fatal
	// step failure instead of the default continue-on-error.
	StopOnFailure bool

	// Events receives progress notifications, best-effort. May be nil.
	Events chan<- Event
}

// Engine replays one recording per call against a freshly acquired
// browser session. Steps run strictly in sequence; each depends on the
// page state every prior step left behind. An Engine is safe for
// concurrent use, runs share nothing but the acquirer.
type Engine struct {
	acquire  AcquireFunc
	executor StepExecutor
	logger   *logging.Logger
}

// NewEngine wires an engine. Both collaborators are injected; nothing
// here reaches for globals.
func NewEngine(acquire AcquireFunc, executor StepExecutor) *Engine {
	return &Engine{
		acquire:  acquire,
		executor: executor,
		logger:   logging.NewComponentLogger("ReplayEngine"),
	}
}

// Replay runs the state machine: Acquiring, Running over each step,
// Finalizing. The returned Result is always well-formed, even for an
// aborted or cancelled run. The error is non-nil only for run-fatal
// conditions (bad input, acquisition failure).
func (e *Engine) Replay(ctx context.Context, req Request) (*Result, error) {
	events := emitter{ch: req.Events}

	if req.Recording == nil {
		err := fmt.Errorf("no recording supplied")
		events.emit(Event{Type: EventError, Message: err.Error()})
		return &Result{FailedSteps: []int{}, Errors: []string{err.Error()}}, err
	}
	rec := req.Recording

	result := &Result{
		SessionID:   rec.SessionID,
		FailedSteps: []int{},
		Errors:      []string{},
	}
	start := time.Now()

	e.logger.Info("Replay %s: acquiring browser (%d actions)", rec.SessionID, len(rec.Actions))
	sess, err := e.acquire(ctx)
	if err != nil {
		// Fatal: no started event precedes the error event.
		msg := fmt.Sprintf("browser acquisition failed: %v", err)
		e.logger.Error("Replay %s aborted: %s", rec.SessionID, msg)
		events.emit(Event{Type: EventError, Message: msg})
		result.Errors = append(result.Errors, msg)
		result.DurationSeconds = time.Since(start).Seconds()
		return result, err
	}
	defer sess.Release()
	e.logger.Info("Replay %s: browser acquired via %s", rec.SessionID, sess.Strategy())

	result.ActionsTotal = len(rec.Actions)
	events.emit(Event{Type: EventStarted, TotalActions: len(rec.Actions)})

	fatalFailures := 0
	for _, action := range rec.Actions {
		// Cancellation is honored at step boundaries only; an in-flight
		// action always finishes.
		if ctx.Err() != nil {
			e.logger.Warn("Replay %s cancelled before step %d", rec.SessionID, action.Step)
			result.Cancelled = true
			break
		}

		events.emit(Event{Type: EventStepStart, Step: action.Step})
		outcome := e.executor.Execute(ctx, sess, action)

		ev := Event{Type: EventStepComplete, Step: action.Step, Success: boolPtr(outcome.Success)}
		if !outcome.Success {
			ev.Error = outcome.Error
		}
		events.emit(ev)

		if outcome.Success {
			result.ActionsSucceeded++
		} else {
			result.ActionsFailed++
			result.FailedSteps = append(result.FailedSteps, action.Step)
			result.Errors = append(result.Errors, outcome.Error)
			if !outcome.NonFatal {
				fatalFailures++
				if req.StopOnFailure {
					e.logger.Warn("Replay %s: stopping at step %d on first failure", rec.SessionID, action.Step)
					break
				}
			}
		}

		if outcome.Done && action.Step != lastStep(rec) {
			e.logger.Info("Replay %s: done marker at step %d, skipping remaining steps", rec.SessionID, action.Step)
			break
		}
	}

	result.Success = fatalFailures == 0
	result.DurationSeconds = time.Since(start).Seconds()

	completeEv := Event{Type: EventComplete, Success: boolPtr(result.Success), Result: result}
	events.emit(completeEv)
	e.logger.Info("Replay %s finished: success=%v %d/%d succeeded in %.1fs",
		rec.SessionID, result.Success, result.ActionsSucceeded, result.ActionsTotal, result.DurationSeconds)
	return result, nil
}

func lastStep(rec *recording.SessionRecording) int {
	if len(rec.Actions) == 0 {
		return 0
	}
	return rec.Actions[len(rec.Actions)-1].Step
}

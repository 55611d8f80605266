package recording

import (
	"fmt"
	"strings"
	"time"

	"webreplay/internal/selector"
)

// ActionType enumerates the replayable action kinds.
type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionClick    ActionType = "click"
	ActionFill     ActionType = "fill"
	ActionScroll   ActionType = "scroll"
	ActionWait     ActionType = "wait"
	ActionExtract  ActionType = "extract"
	ActionDone     ActionType = "done"
)

var knownActionTypes = map[ActionType]bool{
	ActionNavigate: true,
	ActionClick:    true,
	ActionFill:     true,
	ActionScroll:   true,
	ActionWait:     true,
	ActionExtract:  true,
	ActionDone:     true,
}

// selectorFreeTypes are the action kinds that may legally carry an empty
// candidate list.
var selectorFreeTypes = map[ActionType]bool{
	ActionNavigate: true,
	ActionWait:     true,
	ActionDone:     true,
}

// SensitivePlaceholder is stored in place of any text the capture side
// flagged as secret. The real value is re-supplied at replay time via a
// secrets map keyed by SecretKey.
const SensitivePlaceholder = "[SENSITIVE]"

// ActionParams is the action-specific payload. Only the fields relevant
// to the action type are set.
type ActionParams struct {
	Text            string  `json:"text,omitempty"`
	SecretKey       string  `json:"secret_key,omitempty"`
	URL             string  `json:"url,omitempty"`
	DeltaX          float64 `json:"delta_x,omitempty"`
	DeltaY          float64 `json:"delta_y,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Attribute       string  `json:"attribute,omitempty"`
}

// FillText returns the text to type. When the recorded text was
// redacted, the caller's secrets map supplies the real value.
func (p ActionParams) FillText(secrets map[string]string) (string, error) {
	if p.SecretKey == "" {
		return p.Text, nil
	}
	v, ok := secrets[p.SecretKey]
	if !ok {
		return "", fmt.Errorf("no secret provided for key %q", p.SecretKey)
	}
	return v, nil
}

// RecordedAction is one captured step.
type RecordedAction struct {
	Step               int                  `json:"step"`
	Type               ActionType           `json:"type"`
	SelectorCandidates []selector.Candidate `json:"selector_candidates,omitempty"`
	Params             ActionParams         `json:"params,omitempty"`
	PageURLBefore      string               `json:"page_url_before,omitempty"`
	PageTitleBefore    string               `json:"page_title_before,omitempty"`
}

// SessionRecording is an ordered, immutable capture of one agent
// session. Replay order is recording order.
type SessionRecording struct {
	SessionID     string           `json:"session_id"`
	Task          string           `json:"task,omitempty"`
	InitialURL    string           `json:"initial_url"`
	Actions       []RecordedAction `json:"actions"`
	RecordedAt    time.Time        `json:"recorded_at,omitempty"`
	DriverVersion string           `json:"driver_version,omitempty"`
}

// Summary is the listing view of a recording.
type Summary struct {
	SessionID   string `json:"session_id"`
	Task        string `json:"task,omitempty"`
	ActionCount int    `json:"action_count"`
	InitialURL  string `json:"initial_url"`
}

// Summarize builds the listing view.
func (r *SessionRecording) Summarize() Summary {
	return Summary{
		SessionID:   r.SessionID,
		Task:        r.Task,
		ActionCount: len(r.Actions),
		InitialURL:  r.InitialURL,
	}
}

// Validate checks the structural invariants a recording must satisfy
// before it can be replayed. Steps are 1-based, strictly increasing and
// unique; selector-driven actions must carry at least one candidate.
func (r *SessionRecording) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("recording missing session_id")
	}

	prevStep := 0
	for i, a := range r.Actions {
		if a.Step <= prevStep {
			return fmt.Errorf("action %d: step %d is not strictly increasing (previous %d)", i, a.Step, prevStep)
		}
		prevStep = a.Step

		if !knownActionTypes[a.Type] {
			return fmt.Errorf("step %d: unsupported action type %q", a.Step, a.Type)
		}
		if len(a.SelectorCandidates) == 0 && !selectorFreeTypes[a.Type] {
			return fmt.Errorf("step %d: %s action requires selector candidates", a.Step, a.Type)
		}
		for _, c := range a.SelectorCandidates {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("step %d: %w", a.Step, err)
			}
		}
		if a.Type == ActionNavigate && strings.TrimSpace(a.Params.URL) == "" {
			return fmt.Errorf("step %d: navigate action requires a url", a.Step)
		}
		if a.Type == ActionWait && a.Params.DurationSeconds < 0 {
			return fmt.Errorf("step %d: negative wait duration", a.Step)
		}
	}
	return nil
}

// Normalize re-sorts every action's candidate list into canonical
// priority order. Recordings captured by current tooling are already
// canonical; hand-edited or imported ones may not be.
func (r *SessionRecording) Normalize() {
	for i := range r.Actions {
		if !selector.InCanonicalOrder(r.Actions[i].SelectorCandidates) {
			r.Actions[i].SelectorCandidates = selector.SortCandidates(r.Actions[i].SelectorCandidates)
		}
	}
}

// RedactSensitive replaces the fill text of any step whose params carry
// a secret key, so recordings written to disk never contain the secret.
func (r *SessionRecording) RedactSensitive() {
	for i := range r.Actions {
		if r.Actions[i].Params.SecretKey != "" && r.Actions[i].Params.Text != SensitivePlaceholder {
			r.Actions[i].Params.Text = SensitivePlaceholder
		}
	}
}

package replay

// EventType enumerates the progress events a run emits, in the order a
// consumer will see them.
type EventType string

const (
	EventStarted      EventType = "started"
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Event is one progress notification. Fields are populated per type:
// started carries TotalActions, step events carry Step (and Success /
// Error on completion), complete carries the full Result, error carries
// Message.
type Event struct {
	Type         EventType `json:"type"`
	TotalActions int       `json:"total_actions,omitempty"`
	Step         int       `json:"step,omitempty"`
	Success      *bool     `json:"success,omitempty"`
	Error        string    `json:"error,omitempty"`
	Message      string    `json:"message,omitempty"`

	*Result
}

// emitter delivers events best-effort. A slow or absent consumer never
// stalls the run: if the channel is full the event is dropped.
type emitter struct {
	ch chan<- Event
}

func (m emitter) emit(ev Event) {
	if m.ch == nil {
		return
	}
	select {
	case m.ch <- ev:
	default:
	}
}

func boolPtr(b bool) *bool { return &b }

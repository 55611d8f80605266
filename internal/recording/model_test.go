package recording

import (
	"testing"

	"webreplay/internal/selector"
)

func validRecording() *SessionRecording {
	return &SessionRecording{
		SessionID:  "sess-1",
		Task:       "log in and search",
		InitialURL: "https://example.com",
		Actions: []RecordedAction{
			{Step: 1, Type: ActionNavigate, Params: ActionParams{URL: "https://example.com"}},
			{Step: 2, Type: ActionClick, SelectorCandidates: []selector.Candidate{
				{Kind: selector.KindID, Value: "login"},
			}},
			{Step: 3, Type: ActionFill, SelectorCandidates: []selector.Candidate{
				{Kind: selector.KindName, Value: "q"},
			}, Params: ActionParams{Text: "hello"}},
		},
	}
}

func TestValidateAcceptsWellFormedRecording(t *testing.T) {
	if err := validRecording().Validate(); err != nil {
		t.Fatalf("valid recording rejected: %v", err)
	}
}

func TestValidateRejectsBrokenRecordings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SessionRecording)
	}{
		{"missing session id", func(r *SessionRecording) { r.SessionID = " " }},
		{"duplicate step", func(r *SessionRecording) { r.Actions[1].Step = 1 }},
		{"decreasing step", func(r *SessionRecording) { r.Actions[2].Step = 1 }},
		{"unknown type", func(r *SessionRecording) { r.Actions[1].Type = "hover" }},
		{"click without candidates", func(r *SessionRecording) { r.Actions[1].SelectorCandidates = nil }},
		{"navigate without url", func(r *SessionRecording) { r.Actions[0].Params.URL = "" }},
		{"malformed candidate", func(r *SessionRecording) {
			r.Actions[1].SelectorCandidates = []selector.Candidate{{Kind: "bogus", Value: "x"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRecording()
			tc.mutate(r)
			if err := r.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateAllowsSelectorFreeTypes(t *testing.T) {
	r := &SessionRecording{
		SessionID: "sess-2",
		Actions: []RecordedAction{
			{Step: 1, Type: ActionNavigate, Params: ActionParams{URL: "https://example.com"}},
			{Step: 2, Type: ActionWait, Params: ActionParams{DurationSeconds: 0.5}},
			{Step: 3, Type: ActionDone},
		},
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("selector-free actions rejected: %v", err)
	}
}

func TestNormalizeSortsCandidates(t *testing.T) {
	r := validRecording()
	r.Actions[1].SelectorCandidates = []selector.Candidate{
		{Kind: selector.KindXPath, Value: "//button"},
		{Kind: selector.KindTestID, Value: "login"},
	}
	r.Normalize()
	if got := r.Actions[1].SelectorCandidates[0].Kind; got != selector.KindTestID {
		t.Fatalf("expected testid first after normalize, got %s", got)
	}
}

func TestRedactSensitiveScrubsSecretText(t *testing.T) {
	r := validRecording()
	r.Actions[2].Params.SecretKey = "password"
	r.Actions[2].Params.Text = "hunter2"
	r.RedactSensitive()

	if got := r.Actions[2].Params.Text; got != SensitivePlaceholder {
		t.Fatalf("secret text survived redaction: %q", got)
	}
}

func TestFillTextResolvesSecrets(t *testing.T) {
	p := ActionParams{Text: SensitivePlaceholder, SecretKey: "password"}

	got, err := p.FillText(map[string]string{"password": "hunter2"})
	if err != nil {
		t.Fatalf("FillText: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("expected secret value, got %q", got)
	}

	if _, err := p.FillText(nil); err == nil {
		t.Fatal("missing secret should error")
	}

	plain := ActionParams{Text: "hello"}
	if got, _ := plain.FillText(nil); got != "hello" {
		t.Fatalf("plain text mangled: %q", got)
	}
}

package codegen

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"webreplay/internal/recording"
	"webreplay/internal/selector"
)

func sampleRecording() *recording.SessionRecording {
	return &recording.SessionRecording{
		SessionID:  "sess-9",
		Task:       "search the docs",
		InitialURL: "https://example.com",
		Actions: []recording.RecordedAction{
			{Step: 1, Type: recording.ActionNavigate, Params: recording.ActionParams{URL: "https://example.com"}},
			{Step: 2, Type: recording.ActionClick, SelectorCandidates: []selector.Candidate{
				{Kind: selector.KindXPath, Value: "//button[1]"},
				{Kind: selector.KindTestID, Value: "search-open"},
			}},
			{Step: 3, Type: recording.ActionFill, SelectorCandidates: []selector.Candidate{
				{Kind: selector.KindName, Value: "q"},
			}, Params: recording.ActionParams{Text: "hello"}},
		},
	}
}

func TestGenerateEmitsCandidatesInCanonicalOrder(t *testing.T) {
	src, err := NewGenerator(true).Generate(sampleRecording(), 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// The recording stores xpath before testid; generated source must
	// carry testid first, same order live replay resolves in.
	testidPos := strings.Index(src.Code, `[data-testid=\"search-open\"]`)
	xpathPos := strings.Index(src.Code, `//button[1]`)
	if testidPos == -1 || xpathPos == -1 {
		t.Fatalf("candidate queries missing from source:\n%s", src.Code)
	}
	if testidPos > xpathPos {
		t.Fatal("testid candidate must precede xpath in generated source")
	}

	for _, want := range []string{"package main", "chromedp.Navigate", "chromedp.SendKeys", "replay verified"} {
		if !strings.Contains(src.Code, want) {
			t.Fatalf("generated source missing %q", want)
		}
	}
}

func TestGenerateRefusesSecretRecordings(t *testing.T) {
	rec := sampleRecording()
	rec.Actions[2].Params.SecretKey = "password"

	_, err := NewGenerator(true).Generate(rec, 1)
	if err == nil {
		t.Fatal("recordings with secrets must not be embedded in source")
	}
}

func TestGenerateLaterIterationsGrowTimeouts(t *testing.T) {
	g := NewGenerator(true)
	first, err := g.Generate(sampleRecording(), 1)
	if err != nil {
		t.Fatal(err)
	}
	third, err := g.Generate(sampleRecording(), 3)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(first.Code, "10 * time.Second") {
		t.Fatalf("iteration 1 resolve timeout wrong:\n%s", first.Code)
	}
	if !strings.Contains(third.Code, "30 * time.Second") {
		t.Fatal("iteration 3 should triple the resolve timeout")
	}
	if strings.Contains(first.Code, "Sleep(500") || !strings.Contains(third.Code, "500 * time.Millisecond") {
		t.Fatal("settle delay should appear only on later iterations")
	}
}

func scriptedVerifier(results ...VerifyOutcome) (*Verifier, *int) {
	calls := 0
	v := NewVerifier()
	v.Timeout = time.Second
	v.Run = func(ctx context.Context, dir string) (string, error) {
		out := results[calls]
		calls++
		if out.Err != nil {
			return out.Output, out.Err
		}
		return "replay verified", nil
	}
	return v, &calls
}

func TestGenerateVerifiedSucceedsOnThirdAttempt(t *testing.T) {
	fail := VerifyOutcome{Output: "step 2 failed: no candidate resolved", Err: errors.New("exit status 1")}
	verifier, calls := scriptedVerifier(fail, fail, VerifyOutcome{Passed: true})

	svc := NewService(NewGenerator(true), verifier)
	report, err := svc.GenerateVerified(context.Background(), sampleRecording())
	if err != nil {
		t.Fatalf("GenerateVerified: %v", err)
	}

	if !report.Verified {
		t.Fatal("third attempt passed, report must be verified")
	}
	if report.Source.Iteration != 3 {
		t.Fatalf("returned source must be the third attempt, got iteration %d", report.Source.Iteration)
	}
	if *calls != 3 || len(report.Attempts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d runs / %d recorded", *calls, len(report.Attempts))
	}
	if report.Attempts[0].Passed || !report.Attempts[2].Passed {
		t.Fatalf("attempt bookkeeping wrong: %+v", report.Attempts)
	}
}

func TestGenerateVerifiedStopsAtMaxIterations(t *testing.T) {
	fail := VerifyOutcome{Output: "boom", Err: errors.New("exit status 1")}
	verifier, calls := scriptedVerifier(fail, fail, fail, fail, fail)

	svc := NewService(NewGenerator(true), verifier)
	report, err := svc.GenerateVerified(context.Background(), sampleRecording())
	if err != nil {
		t.Fatalf("unverified outcome is not an error: %v", err)
	}

	if report.Verified {
		t.Fatal("report must be unverified")
	}
	if *calls != MaxIterations {
		t.Fatalf("loop must stop at %d iterations, ran %d", MaxIterations, *calls)
	}
	if report.Source == nil || report.Source.Iteration != MaxIterations {
		t.Fatal("last attempt's source must still be returned")
	}
}

func TestGenerateVerifiedPropagatesGenerationErrors(t *testing.T) {
	rec := sampleRecording()
	rec.Actions[1].SelectorCandidates = nil // click without candidates

	verifier, calls := scriptedVerifier(VerifyOutcome{Passed: true})
	svc := NewService(NewGenerator(true), verifier)

	_, err := svc.GenerateVerified(context.Background(), rec)
	if err == nil {
		t.Fatal("structural generation failure must propagate")
	}
	if *calls != 0 {
		t.Fatal("nothing should be executed for unbuildable source")
	}
}

func TestGenerateVerifiedHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verifier, _ := scriptedVerifier(VerifyOutcome{Passed: true})
	svc := NewService(NewGenerator(true), verifier)

	_, err := svc.GenerateVerified(ctx, sampleRecording())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

package codegen

import (
	"context"
	"fmt"

	"webreplay/internal/logging"
	"webreplay/internal/recording"
)

// MaxIterations bounds the generate/verify loop. After the last failed
// iteration the most recent source is returned marked unverified; the
// loop never spins further.
const MaxIterations = 3

// Attempt records one loop iteration for diagnostics.
type Attempt struct {
	Iteration int
	Passed    bool
	Output    string
	Error     string
}

// Report is the loop's terminal outcome. Source is always the last
// generated program, verified or not.
type Report struct {
	Source   *GeneratedSource
	Verified bool
	Attempts []Attempt
}

// Service runs the bounded generate, execute, inspect, regenerate
// loop.
type Service struct {
	generator *Generator
	verifier  *Verifier
	logger    *logging.Logger
}

func NewService(generator *Generator, verifier *Verifier) *Service {
	return &Service{
		generator: generator,
		verifier:  verifier,
		logger:    logging.NewComponentLogger("CodegenService"),
	}
}

// GenerateVerified produces replay source for the recording, verifying
// each attempt by executing it. Verification failure feeds into the
// next iteration's generation; a run that still fails after
// MaxIterations comes back with Verified=false, not an error.
func (s *Service) GenerateVerified(ctx context.Context, rec *recording.SessionRecording) (*Report, error) {
	report := &Report{}

	for iteration := 1; iteration <= MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("codegen cancelled: %w", err)
		}

		src, err := s.generator.Generate(rec, iteration)
		if err != nil {
			// Generation failures are structural, regenerating the same
			// recording cannot fix them.
			return report, err
		}
		report.Source = src

		outcome := s.verifier.Verify(ctx, src)
		attempt := Attempt{Iteration: iteration, Passed: outcome.Passed, Output: outcome.Output}
		if outcome.Err != nil {
			attempt.Error = outcome.Err.Error()
		}
		report.Attempts = append(report.Attempts, attempt)

		if outcome.Passed {
			report.Verified = true
			s.logger.Info("Codegen for %s verified on iteration %d", rec.SessionID, iteration)
			return report, nil
		}
		s.logger.Warn("Codegen for %s failed verification on iteration %d of %d",
			rec.SessionID, iteration, MaxIterations)
	}

	s.logger.Warn("Codegen for %s unverified after %d iterations", rec.SessionID, MaxIterations)
	return report, nil
}

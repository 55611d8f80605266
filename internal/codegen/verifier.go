package codegen

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"webreplay/internal/logging"
)

// VerifyOutcome is the result of executing one generated source in an
// isolated process.
type VerifyOutcome struct {
	Passed bool
	Output string
	Err    error
}

// RunFunc executes a generated program rooted at dir and returns its
// combined output. Injected so the loop is testable without a
// toolchain or browser.
type RunFunc func(ctx context.Context, dir string) (string, error)

// Verifier runs generated source in a throwaway module directory via
// the Go toolchain, entirely outside this process.
type Verifier struct {
	Run     RunFunc
	Timeout time.Duration

	logger *logging.Logger
}

// DefaultVerifyTimeout bounds one verification run, browser startup
// included.
const DefaultVerifyTimeout = 3 * time.Minute

func NewVerifier() *Verifier {
	return &Verifier{
		Run:     goRun,
		Timeout: DefaultVerifyTimeout,
		logger:  logging.NewComponentLogger("CodegenVerifier"),
	}
}

// Verify materializes the source into a temp directory and executes
// it. The outcome is informational either way; the caller decides
// whether to regenerate.
func (v *Verifier) Verify(ctx context.Context, src *GeneratedSource) VerifyOutcome {
	dir, err := os.MkdirTemp("", "webreplay-codegen-*")
	if err != nil {
		return VerifyOutcome{Err: fmt.Errorf("create workdir: %w", err)}
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte(src.Code), 0644); err != nil {
		return VerifyOutcome{Err: fmt.Errorf("write source: %w", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, v.timeout())
	defer cancel()

	output, err := v.Run(runCtx, dir)
	if err != nil {
		v.logger.Warn("Verification of %s iteration %d failed: %v", src.SessionID, src.Iteration, err)
		return VerifyOutcome{Output: output, Err: err}
	}
	if !strings.Contains(output, "replay verified") {
		return VerifyOutcome{Output: output, Err: fmt.Errorf("program exited without verification marker")}
	}
	v.logger.Info("Verification of %s iteration %d passed", src.SessionID, src.Iteration)
	return VerifyOutcome{Passed: true, Output: output}
}

func (v *Verifier) timeout() time.Duration {
	if v.Timeout > 0 {
		return v.Timeout
	}
	return DefaultVerifyTimeout
}

// goRun compiles and runs the generated program in its own module so
// it cannot see or mutate this process's state.
func goRun(ctx context.Context, dir string) (string, error) {
	mod := exec.CommandContext(ctx, "go", "mod", "init", "webreplay-generated")
	mod.Dir = dir
	if out, err := mod.CombinedOutput(); err != nil {
		return string(out), fmt.Errorf("go mod init: %w", err)
	}
	tidy := exec.CommandContext(ctx, "go", "mod", "tidy")
	tidy.Dir = dir
	if out, err := tidy.CombinedOutput(); err != nil {
		return string(out), fmt.Errorf("go mod tidy: %w", err)
	}

	run := exec.CommandContext(ctx, "go", "run", ".")
	run.Dir = dir
	out, err := run.CombinedOutput()
	return string(out), err
}

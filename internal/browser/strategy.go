package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// Strategy identifies one way of obtaining a controllable browser.
type Strategy string

const (
	// StrategyRemoteCDP attaches to an already-running browser over its
	// DevTools websocket.
	StrategyRemoteCDP Strategy = "remote_cdp"
	// StrategyExecManaged launches a local browser with the full flag
	// set and probes it before handing it out.
	StrategyExecManaged Strategy = "exec_managed"
	// StrategyExecScoped launches with minimal flags and skips the
	// probe; some driver versions reject the managed flag set.
	StrategyExecScoped Strategy = "exec_scoped"
	// StrategyDriverManaged lets the driver pick every default,
	// including browser discovery. Last resort.
	StrategyDriverManaged Strategy = "driver_managed"
)

// AcquireFunc attempts one strategy. It either returns a live handle or
// an error; partially constructed resources must be torn down before
// returning.
type AcquireFunc func(ctx context.Context, opts Options) (*Handle, error)

// NamedStrategy pairs a strategy name with its implementation so the
// ordered list stays explicit and inspectable.
type NamedStrategy struct {
	Name    Strategy
	Acquire AcquireFunc
}

// defaultStrategies returns the fixed fallback order. remote_cdp is
// only present when an endpoint is configured.
func defaultStrategies(opts Options) []NamedStrategy {
	var strategies []NamedStrategy
	if strings.TrimSpace(opts.CDPURL) != "" {
		strategies = append(strategies, NamedStrategy{StrategyRemoteCDP, acquireRemoteCDP})
	}
	strategies = append(strategies,
		NamedStrategy{StrategyExecManaged, acquireExecManaged},
		NamedStrategy{StrategyExecScoped, acquireExecScoped},
		NamedStrategy{StrategyDriverManaged, acquireDriverManaged},
	)
	return strategies
}

func acquireRemoteCDP(ctx context.Context, opts Options) (*Handle, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), opts.CDPURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if err := probe(ctx, tabCtx, opts); err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}
	return newHandle(StrategyRemoteCDP, tabCtx, tabCancel, allocCancel), nil
}

func acquireExecManaged(ctx context.Context, opts Options) (*Handle, error) {
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if path := strings.TrimSpace(opts.ChromePath); path != "" {
		execOpts = append(execOpts, chromedp.ExecPath(path))
	}
	if dir := strings.TrimSpace(opts.UserDataDir); dir != "" {
		profile := filepath.Join(dir, uuid.NewString())
		if err := os.MkdirAll(profile, 0o755); err == nil {
			execOpts = append(execOpts, chromedp.UserDataDir(profile))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if err := probe(ctx, tabCtx, opts); err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}
	return newHandle(StrategyExecManaged, tabCtx, tabCancel, allocCancel), nil
}

func acquireExecScoped(ctx context.Context, opts Options) (*Handle, error) {
	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoFirstRun,
	}
	if path := strings.TrimSpace(opts.ChromePath); path != "" {
		execOpts = append(execOpts, chromedp.ExecPath(path))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	return newHandle(StrategyExecScoped, tabCtx, tabCancel, allocCancel), nil
}

func acquireDriverManaged(ctx context.Context, opts Options) (*Handle, error) {
	tabCtx, tabCancel := chromedp.NewContext(context.Background())
	return newHandle(StrategyDriverManaged, tabCtx, tabCancel), nil
}

// probe forces the browser process to actually start. chromedp defers
// launch until the first Run, so without this a dead binary only
// surfaces deep inside the first replay step.
func probe(ctx context.Context, tabCtx context.Context, opts Options) error {
	probeCtx, cancel := context.WithTimeout(tabCtx, opts.startupTimeout())
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-probeCtx.Done():
		}
	}()
	return chromedp.Run(probeCtx, chromedp.Navigate("about:blank"))
}

// initFailurePatterns are the driver startup failures that justify
// falling through to the next strategy. Anything else propagates
// immediately.
var initFailurePatterns = []string{
	"executable file not found",
	"exec:",
	"fork/exec",
	"chrome failed to start",
	"failed to start",
	"websocket url timeout",
	"could not dial",
	"connection refused",
	"context deadline exceeded",
	"unknown flag",
	"unrecognized option",
	"invalid devtools server",
}

// IsInitFailure reports whether an acquisition error is a recognized
// driver initialization failure.
func IsInitFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range initFailurePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

package browser

import "time"

// Options configures browser acquisition. Zero value means headful
// local Chrome discovered on PATH.
type Options struct {
	Headless bool

	// CDPURL points at an already-running browser's DevTools endpoint.
	// When set, the remote strategy is tried first; when empty it is
	// skipped entirely.
	CDPURL string

	// ChromePath overrides binary discovery for locally launched
	// browsers.
	ChromePath string

	// UserDataDir, when set, gives each launched browser an isolated
	// profile directory beneath it.
	UserDataDir string

	// StartupTimeout bounds a single strategy attempt, probe included.
	StartupTimeout time.Duration
}

// DefaultStartupTimeout bounds one acquisition strategy attempt.
const DefaultStartupTimeout = 30 * time.Second

func (o Options) startupTimeout() time.Duration {
	if o.StartupTimeout > 0 {
		return o.StartupTimeout
	}
	return DefaultStartupTimeout
}

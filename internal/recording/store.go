package recording

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no recording exists for a session id.
var ErrNotFound = errors.New("recording not found")

// Store supplies recordings by session id and accepts newly captured
// ones. Recordings are immutable once stored: Put refuses to overwrite.
type Store interface {
	Get(ctx context.Context, sessionID string) (*SessionRecording, error)
	Put(ctx context.Context, rec *SessionRecording) error
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, sessionID string) error
}

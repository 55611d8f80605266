package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"webreplay/internal/logging"
)

// recordingFileCandidates are the filenames a session directory may use
// for its recording, newest convention first. Older capture tooling
// wrote recording.json or recorded_session.json; those sessions must
// still replay.
var recordingFileCandidates = []string{
	"replay_recording.json",
	"recording.json",
	"recorded_session.json",
}

const canonicalRecordingFile = "replay_recording.json"

// FileStore keeps one directory per session under a base directory:
//
//	<base>/<session_id>/replay_recording.json
//	<base>/<session_id>/raw_history.json      (written by the agent)
//	<base>/<session_id>/screenshots/          (written by the agent)
//
// Only the recording file is owned by this store; the rest is consumed
// read-only for diagnostics.
type FileStore struct {
	baseDir string
	logger  *logging.Logger
}

// NewFileStore expands a leading ~ and ensures the base directory
// exists.
func NewFileStore(baseDir string) *FileStore {
	if strings.HasPrefix(baseDir, "~/") {
		home, _ := os.UserHomeDir()
		baseDir = filepath.Join(home, baseDir[2:])
	}
	_ = os.MkdirAll(baseDir, 0755) // Ignore error - directory may already exist
	return &FileStore{
		baseDir: baseDir,
		logger:  logging.NewComponentLogger("RecordingFileStore"),
	}
}

// BaseDir returns the resolved base directory.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// SessionDir returns the directory holding one session's files.
func (s *FileStore) SessionDir(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID)
}

// Get loads and validates the recording for a session. Candidate lists
// are normalized on load so downstream code can rely on canonical
// order.
func (s *FileStore) Get(ctx context.Context, sessionID string) (*SessionRecording, error) {
	if err := validSessionID(sessionID); err != nil {
		return nil, err
	}

	path, err := s.findRecordingFile(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording %s: %w", sessionID, err)
	}

	var rec SessionRecording
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Error("Failed to decode recording file %s: %v", path, err)
		return nil, fmt.Errorf("decode recording %s: %w", sessionID, err)
	}
	if rec.SessionID == "" {
		rec.SessionID = sessionID
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recording %s: %w", sessionID, err)
	}
	rec.Normalize()
	return &rec, nil
}

// Put persists a new recording. Secrets are redacted before anything
// touches disk, and an existing recording is never overwritten.
func (s *FileStore) Put(ctx context.Context, rec *SessionRecording) error {
	if rec == nil {
		return fmt.Errorf("nil recording")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.RedactSensitive()
	rec.Normalize()

	dir := s.SessionDir(rec.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if existing, _ := s.findRecordingFile(rec.SessionID); existing != "" {
		return fmt.Errorf("recording already exists for session %s", rec.SessionID)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	// Create exclusively so a concurrent Put cannot clobber us either.
	path := filepath.Join(dir, canonicalRecordingFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	return nil
}

// List returns a summary per session that has a readable recording.
// Directories with no recording or an undecodable one are skipped with
// a log line, never an error; one corrupt session must not hide the
// rest.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.Get(ctx, entry.Name())
		if err != nil {
			s.logger.Warn("Skipping session %s during list: %v", entry.Name(), err)
			continue
		}
		summaries = append(summaries, rec.Summarize())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].SessionID < summaries[j].SessionID
	})
	return summaries, nil
}

// Delete removes a session directory and everything in it. Deleting a
// session that does not exist is not an error.
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.SessionDir(sessionID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// findRecordingFile locates the recording inside a session directory,
// trying the known filenames first and a timestamped
// replay_recording_*.json glob last.
func (s *FileStore) findRecordingFile(sessionID string) (string, error) {
	dir := s.SessionDir(sessionID)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	for _, name := range recordingFileCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "replay_recording_*.json"))
	if len(matches) > 0 {
		sort.Strings(matches)
		return matches[len(matches)-1], nil
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, sessionID)
}

// validSessionID rejects ids that could escape the base directory.
func validSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("empty session id")
	}
	if strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	return nil
}

package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// Diagnostic files written next to a recording by the capture agent.
// This package only reads them, it never writes them.
const (
	rawHistoryFile = "raw_history.json"
	screenshotsDir = "screenshots"
)

var screenshotStepPattern = regexp.MustCompile(`^step_(\d+)\.\w+$`)

// RawHistoryPath returns the path of the agent's raw history dump for a
// session, or empty if none was captured.
func (s *FileStore) RawHistoryPath(sessionID string) string {
	path := filepath.Join(s.SessionDir(sessionID), rawHistoryFile)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}

// ScreenshotForStep finds the screenshot captured for a given step.
// Filenames encode the step number as step_<NNN>.<ext>; padding width
// varies across capture versions, so matching is numeric.
func (s *FileStore) ScreenshotForStep(sessionID string, step int) (string, error) {
	dir := filepath.Join(s.SessionDir(sessionID), screenshotsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("no screenshots for session %s", sessionID)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := screenshotStepPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n != step {
			continue
		}
		return filepath.Join(dir, entry.Name()), nil
	}
	return "", fmt.Errorf("no screenshot for session %s step %d", sessionID, step)
}

// Screenshots maps every step that has a screenshot to its path.
func (s *FileStore) Screenshots(sessionID string) map[int]string {
	dir := filepath.Join(s.SessionDir(sessionID), screenshotsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	shots := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := screenshotStepPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			shots[n] = filepath.Join(dir, entry.Name())
		}
	}
	return shots
}

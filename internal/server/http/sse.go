package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"webreplay/internal/replay"
)

const sseHeartbeatInterval = 15 * time.Second

// handleStreamReplay runs a replay and streams its progress events as
// SSE. Event delivery is best-effort by design: the engine emits on a
// buffered channel and keeps executing whether or not this writer
// keeps up.
func (s *Server) handleStreamReplay(c *gin.Context) {
	sessionID := c.Param("session_id")
	rec, ok := s.loadRecording(c, sessionID)
	if !ok {
		return
	}

	var req replayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	s.logger.Info("SSE replay stream opened for session %s", sessionID)

	events := make(chan replay.Event, 256)
	done := make(chan *replay.Result, 1)

	engine := s.engineFactory(s.headless(req), req.Secrets)
	go func() {
		result, _ := engine.Replay(c.Request.Context(), replayRequestFor(rec, req, s.cfg.StopOnFailure, events))
		close(events)
		done <- result
	}()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				result := <-done
				observeReplay(result.Success, result.DurationSeconds, len(result.FailedSteps))
				s.logger.Info("SSE replay stream for %s finished (success=%v)", sessionID, result.Success)
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("Failed to serialize event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				s.logger.Warn("SSE client for %s went away: %v", sessionID, err)
				// Keep draining; the engine must observe its events
				// channel staying serviced and the run must finish.
				continue
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err == nil {
				flusher.Flush()
			}
		}
	}
}

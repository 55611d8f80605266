package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"webreplay/internal/recording"
	"webreplay/internal/replay"
)

// replayRequest is the body of POST /replay/:session_id and its
// streaming variant. All fields are optional.
type replayRequest struct {
	Headless      *bool             `json:"headless,omitempty"`
	StopOnFailure *bool             `json:"stop_on_failure,omitempty"`
	Secrets       map[string]string `json:"secrets,omitempty"`
}

func (s *Server) handleListSessions(c *gin.Context) {
	summaries, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries, "count": len(summaries)})
}

func (s *Server) handleSessionInfo(c *gin.Context) {
	sessionID := c.Param("session_id")
	rec, ok := s.loadRecording(c, sessionID)
	if !ok {
		return
	}

	info := gin.H{
		"session_id":   rec.SessionID,
		"task":         rec.Task,
		"initial_url":  rec.InitialURL,
		"action_count": len(rec.Actions),
		"recorded_at":  rec.RecordedAt,
		"actions":      rec.Actions,
	}
	if fs, ok := s.store.(*recording.FileStore); ok {
		info["screenshots"] = fs.Screenshots(sessionID)
		if p := fs.RawHistoryPath(sessionID); p != "" {
			info["raw_history"] = p
		}
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("session_id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("session_id")})
}

func (s *Server) handleReplay(c *gin.Context) {
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

	engine := s.engineFactory(s.headless(req), req.Secrets)
	result, err := engine.Replay(c.Request.Context(), replayRequestFor(rec, req, s.cfg.StopOnFailure, nil))
	observeReplay(result.Success, result.DurationSeconds, len(result.FailedSteps))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleImport(c *gin.Context) {
	var rec recording.SessionRecording
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recording: " + err.Error()})
		return
	}
	if err := s.store.Put(c.Request.Context(), &rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("Imported recording %s (%d actions)", rec.SessionID, len(rec.Actions))
	c.JSON(http.StatusCreated, rec.Summarize())
}

func (s *Server) handleCodegen(c *gin.Context) {
	sessionID := c.Param("session_id")
	rec, ok := s.loadRecording(c, sessionID)
	if !ok {
		return
	}
	if s.codegen == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "code generation not configured"})
		return
	}

	report, err := s.codegen.GenerateVerified(c.Request.Context(), rec)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	observeCodegen(report.Verified)

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"verified":   report.Verified,
		"iterations": len(report.Attempts),
		"attempts":   report.Attempts,
		"source":     report.Source.Code,
	})
}

// loadRecording fetches and 404s uniformly.
func (s *Server) loadRecording(c *gin.Context, sessionID string) (*recording.SessionRecording, bool) {
	rec, err := s.store.Get(c.Request.Context(), sessionID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, recording.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}
	return rec, true
}

func replayRequestFor(rec *recording.SessionRecording, req replayRequest, defaultStop bool, events chan<- replay.Event) replay.Request {
	stop := defaultStop
	if req.StopOnFailure != nil {
		stop = *req.StopOnFailure
	}
	return replay.Request{Recording: rec, StopOnFailure: stop, Events: events}
}

func (s *Server) headless(req replayRequest) bool {
	if req.Headless != nil {
		return *req.Headless
	}
	return s.cfg.Headless
}

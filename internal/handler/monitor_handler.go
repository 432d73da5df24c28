package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	refreshInterval   = 5 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams the sessions of an exam to its author.
type MonitorHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

func NewMonitorHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

type monitorSnapshot struct {
	Type       string                     `json:"type"`
	Joined     int                        `json:"joined"`
	InProgress int                        `json:"in_progress"`
	Locked     int                        `json:"locked"`
	Sessions   []service.MonitoredSession `json:"sessions"`
}

func summarize(sessions []service.MonitoredSession) monitorSnapshot {
	snap := monitorSnapshot{Type: "snapshot", Joined: len(sessions), Sessions: sessions}
	for _, s := range sessions {
		if s.Status == model.SessionStatusInProgress {
			snap.InProgress++
		} else {
			snap.Locked++
		}
	}
	return snap
}

// MonitorExamSSE godoc
// GET /api/v1/teacher/exams/:id/monitor
// Sends a session snapshot on connect and on every refresh.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	// The first snapshot doubles as the author check.
	sessions, err := h.sessionService.ListSessions(reqCtx, claims.UserID, examID)
	if err != nil {
		fail(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	writeEvent(c, summarize(sessions))

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	log := h.log.With().Str("exam_id", examID.String()).Int("teacher_id", claims.UserID).Logger()
	log.Info().Msg("Teacher attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Teacher disconnected from live monitor SSE")
			return

		case <-refreshTicker.C:
			fetchCtx, cancel := context.WithTimeout(reqCtx, refreshTimeout)
			sessions, err := h.sessionService.ListSessions(fetchCtx, claims.UserID, examID)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Monitor refresh failed")
				continue
			}
			writeEvent(c, summarize(sessions))

		case <-keepAliveTicker.C:
			writeEvent(c, gin.H{"type": "ping"})
		}
	}
}

func writeEvent(c *gin.Context, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

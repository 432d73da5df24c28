package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// submitTimeout bounds a confirmed submit. The request context of a hijacked
// connection is not usable for it.
const submitTimeout = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler attaches an exam view to its live session runtime.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Streams timer ticks, warnings, save status and the lock of the student's session,
// and carries answer changes, browser signals and the submit dialog back.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Resolve the runtime before upgrading so load failures and locked sessions
	// surface as regular HTTP errors.
	r, err := h.sessionService.Runtime(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("exam_id", examID.String()).
		Str("session_id", r.SessionID().String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	state := r.State()
	state.Payload = r.Payload()
	if err := conn.WriteJSON(ws.EventSession, state); err != nil {
		_ = conn.Close(websocket.CloseInternalServerErr, "")
		return
	}

	var closeOnce sync.Once
	closeConn := func(code int, reason string) {
		closeOnce.Do(func() { _ = conn.Close(code, reason) })
	}

	detach := r.Attach(func(ev session.Event) {
		switch ev.Type {
		case session.EventLocked:
			_ = conn.WriteJSON(ws.EventLocked, ev.Data)
			closeConn(websocket.CloseNormalClosure, "session locked")
		case session.EventReplaced:
			_ = conn.WriteJSON(ws.EventReplaced, nil)
			closeConn(websocket.ClosePolicyViolation, "opened elsewhere")
		case session.EventClosed:
			_ = conn.WriteJSON(ws.EventClosed, nil)
			closeConn(websocket.CloseGoingAway, "server shutting down")
		default:
			_ = conn.WriteJSON(wsEvent(ev.Type), ev.Data)
		}
	})
	defer func() {
		detach()
		closeConn(websocket.CloseNormalClosure, "")
		wsLog.Info().Msg("Student disconnected")
	}()

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.dispatch(conn, r, &msg, wsLog)
	}
}

func (h *WSHandler) dispatch(conn *ws.Conn, r *session.Runtime, msg *ws.RequestPayload, log zerolog.Logger) {
	switch msg.Action {
	case ws.ActionAnswer:
		if msg.QuestionID == nil {
			writeCode(conn, response.ErrInvalidPayload)
			return
		}
		a, err := r.OnAnswerChange(*msg.QuestionID, model.AnswerInput{
			AnswerText:       msg.AnswerText,
			SelectedOptionID: msg.SelectedOptionID,
		})
		if err != nil {
			writeErr(conn, err, log)
			return
		}
		_ = conn.WriteJSON(ws.EventAnswer, a)

	case ws.ActionSignal:
		if msg.Signal == "" {
			writeCode(conn, response.ErrInvalidPayload)
			return
		}
		v := r.Report(session.Signal(msg.Signal))
		_ = conn.WriteJSON(ws.EventVerdict, ws.VerdictData{
			Signal:   string(v.Signal),
			Counted:  v.Counted,
			Suppress: v.Suppress,
			Count:    v.State.Count,
			Max:      v.State.Max,
		})

	case ws.ActionSubmitRequest:
		prompt, err := r.RequestSubmit()
		if err != nil {
			writeErr(conn, err, log)
			return
		}
		_ = conn.WriteJSON(ws.EventSubmitPrompt, prompt)

	case ws.ActionSubmitConfirm:
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		// On success the locked event reaches the view through the listener.
		if _, err := r.ConfirmSubmit(ctx); err != nil {
			writeErr(conn, err, log)
		}

	case ws.ActionSubmitCancel:
		r.CancelSubmit()

	case ws.ActionAckWarning:
		_ = conn.WriteJSON(ws.EventWarning, r.AcknowledgeWarning())

	case ws.ActionPing:
		_ = conn.WriteJSON(ws.EventPong, gin.H{"remaining_seconds": int(r.RemainingTime() / time.Second)})

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		writeCode(conn, response.ErrInvalidPayload)
	}
}

// wsEvent maps a runtime event onto its wire name.
func wsEvent(t session.EventType) ws.Event {
	switch t {
	case session.EventTick:
		return ws.EventTick
	case session.EventWarning:
		return ws.EventWarning
	case session.EventSaveStatus:
		return ws.EventSaveStatus
	case session.EventLocked:
		return ws.EventLocked
	case session.EventReplaced:
		return ws.EventReplaced
	case session.EventClosed:
		return ws.EventClosed
	}
	return ws.Event(t)
}

func writeErr(conn *ws.Conn, err error, log zerolog.Logger) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("WebSocket action failed")
	}
	writeCode(conn, code)
}

func writeCode(conn *ws.Conn, code response.ErrCode) {
	_ = conn.WriteError(string(code), response.GetMessage(code))
}

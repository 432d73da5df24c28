package websocket

import "github.com/google/uuid"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer        Action = "answer"
	ActionSignal        Action = "signal"
	ActionSubmitRequest Action = "submit_request"
	ActionSubmitConfirm Action = "submit_confirm"
	ActionSubmitCancel  Action = "submit_cancel"
	ActionAckWarning    Action = "ack_warning"
	ActionPing          Action = "ping"
)

// RequestPayload is every client message. Only the fields of its action are read.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QuestionID       *uuid.UUID `json:"question_id,omitempty"`
	AnswerText       *string    `json:"answer_text,omitempty"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`

	// signal
	Signal string `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSession      Event = "session"
	EventAnswer       Event = "answer"
	EventVerdict      Event = "verdict"
	EventTick         Event = "tick"
	EventWarning      Event = "warning"
	EventSaveStatus   Event = "save_status"
	EventSubmitPrompt Event = "submit_prompt"
	EventLocked       Event = "locked"
	EventReplaced     Event = "replaced"
	EventClosed       Event = "closed"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// ResponsePayload wraps every server message.
type ResponsePayload struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorData carries an API error code so the view can reuse its HTTP error handling.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// VerdictData answers a signal action.
type VerdictData struct {
	Signal   string `json:"signal"`
	Counted  bool   `json:"counted"`
	Suppress bool   `json:"suppress"`
	Count    int    `json:"count"`
	Max      int    `json:"max"`
}

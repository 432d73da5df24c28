package session

import (
	"github.com/stemsi/exstem-proctor/internal/model"
)

// EventType names a message pushed from a runtime to its attached view.
type EventType string

const (
	EventTick       EventType = "tick"
	EventWarning    EventType = "warning"
	EventSaveStatus EventType = "save_status"
	EventLocked     EventType = "locked"
	// EventReplaced is sent to a view that lost its attachment to a newer one.
	EventReplaced EventType = "replaced"
	// EventClosed is the last event of a runtime torn down while still in progress.
	EventClosed EventType = "closed"
)

// Event is one runtime notification.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// Listener receives runtime events. Calls may come from several goroutines.
type Listener func(Event)

type TickData struct {
	RemainingSeconds int        `json:"remaining_seconds"`
	Remaining        string     `json:"remaining"`
	Urgency          Urgency    `json:"urgency"`
	SaveStatus       SaveStatus `json:"save_status"`
}

type LockedData struct {
	Session  *model.ExamSession `json:"session"`
	Redirect string             `json:"redirect"`
}

// SubmitPrompt is the confirmation shown before a manual submit.
type SubmitPrompt struct {
	Answered   int `json:"answered"`
	Total      int `json:"total"`
	Unanswered int `json:"unanswered"`
}

// DashboardPath is where the view goes once its session is locked.
const DashboardPath = "/student/dashboard"

package model

import (
	"time"

	"github.com/google/uuid"
)

// CheatEvent is one raw signal reported by the cheat detector, kept for audit.
type CheatEvent struct {
	ExamID     uuid.UUID `json:"exam_id"`
	StudentID  int       `json:"student_id"`
	SessionID  uuid.UUID `json:"session_id"`
	Signal     string    `json:"signal"`
	Counted    bool      `json:"counted"`
	Warning    int       `json:"warning_count"`
	RecordedAt time.Time `json:"recorded_at"`
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/session"
	"k8s.io/utils/clock"
)

type lobbyExams interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListVisible(ctx context.Context, now, horizon time.Time) ([]model.Exam, error)
}

type lobbySessions interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error)
}

// MonitorCounter aggregates per-session progress for the live monitor.
type MonitorCounter interface {
	AnsweredCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int, error)
	CheatCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int, error)
}

// ExamSessionService is the HTTP and WebSocket facing side of the session engine.
type ExamSessionService struct {
	manager     *session.Manager
	examRepo    lobbyExams
	sessionRepo lobbySessions
	monitor     MonitorCounter
	clock       clock.PassiveClock
	log         zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(manager *session.Manager, examRepo lobbyExams, sessionRepo lobbySessions, monitor MonitorCounter, clk clock.PassiveClock, log zerolog.Logger) *ExamSessionService {
	return &ExamSessionService{
		manager:     manager,
		examRepo:    examRepo,
		sessionRepo: sessionRepo,
		monitor:     monitor,
		clock:       clk,
		log:         log.With().Str("component", "exam_session_service").Logger(),
	}
}

// LobbyStatus represents the concrete state of an exam on the student dashboard.
type LobbyStatus string

const (
	LobbyStatusUpcoming   LobbyStatus = "UPCOMING"
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// lobbyHorizon is how far ahead upcoming exams are listed.
const lobbyHorizon = 24 * time.Hour

// LobbyExam represents an exam as displayed on the student dashboard.
type LobbyExam struct {
	model.Exam
	LobbyStatus   LobbyStatus          `json:"lobby_status"`
	SessionID     *uuid.UUID           `json:"session_id,omitempty"`
	SessionStatus *model.SessionStatus `json:"session_status,omitempty"`
}

// GetLobby lists the exams a student can see with their own session overlaid.
func (s *ExamSessionService) GetLobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	now := s.clock.Now()
	exams, err := s.examRepo.ListVisible(ctx, now, now.Add(lobbyHorizon))
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	sessions, err := s.sessionRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessionMap := make(map[uuid.UUID]*model.ExamSession, len(sessions))
	for i := range sessions {
		sessionMap[sessions[i].ExamID] = &sessions[i]
	}

	lobby := make([]LobbyExam, 0, len(exams))
	for _, exam := range exams {
		entry := LobbyExam{Exam: exam}
		switch sess, ok := sessionMap[exam.ID]; {
		case ok && sess.Status.Terminal():
			entry.LobbyStatus = LobbyStatusCompleted
			entry.SessionID, entry.SessionStatus = &sess.ID, &sess.Status
		case ok:
			entry.LobbyStatus = LobbyStatusInProgress
			entry.SessionID, entry.SessionStatus = &sess.ID, &sess.Status
		case now.Before(exam.OpensAt):
			entry.LobbyStatus = LobbyStatusUpcoming
		default:
			entry.LobbyStatus = LobbyStatusAvailable
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// Start creates or resumes the student's session and returns everything the exam
// view needs, questions included.
func (s *ExamSessionService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSessionState, error) {
	r, err := s.manager.StartOrResume(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	state := r.State()
	state.Payload = r.Payload()
	return state, nil
}

// State returns the live state of the student's session, resuming it when no runtime
// holds it.
func (s *ExamSessionService) State(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSessionState, error) {
	r, err := s.Runtime(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	return r.State(), nil
}

// Runtime returns the live runtime of the student's session.
func (s *ExamSessionService) Runtime(ctx context.Context, examID uuid.UUID, studentID int) (*session.Runtime, error) {
	if r, ok := s.manager.Find(examID, studentID); ok && !r.Locked() {
		return r, nil
	}
	return s.manager.StartOrResume(ctx, examID, studentID)
}

// ChangeAnswer replaces one in-memory answer of the student's session.
func (s *ExamSessionService) ChangeAnswer(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, in model.AnswerInput) (model.Answer, error) {
	r, err := s.Runtime(ctx, examID, studentID)
	if err != nil {
		return model.Answer{}, err
	}
	return r.OnAnswerChange(questionID, in)
}

// Submit locks the student's session manually. Without confirm it only returns the
// confirmation prompt together with ErrConfirmRequired.
func (s *ExamSessionService) Submit(ctx context.Context, examID uuid.UUID, studentID int, confirm bool) (*model.ExamSession, *session.SubmitPrompt, error) {
	r, err := s.Runtime(ctx, examID, studentID)
	if err != nil {
		return nil, nil, err
	}

	if !confirm {
		prompt, err := r.RequestSubmit()
		if err != nil {
			return nil, nil, err
		}
		return nil, &prompt, ErrConfirmRequired
	}

	sess, err := r.Submit(ctx, model.LockReasonManual)
	if err != nil {
		return nil, nil, err
	}
	return sess, nil, nil
}

// Block locks a session administratively. Only the exam author may do so.
func (s *ExamSessionService) Block(ctx context.Context, teacherID int, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	exam, err := s.examRepo.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.TeacherID != teacherID {
		return nil, ErrNotExamAuthor
	}

	locked, err := s.manager.Block(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("teacher_id", teacherID).
		Str("status", string(locked.Status)).
		Msg("Session blocked")
	return locked, nil
}

// MonitoredSession is a session row with progress counters, and live runtime data
// when one is attached.
type MonitoredSession struct {
	model.ExamSession
	Answered         int  `json:"answered"`
	CheatSignals     int  `json:"cheat_signals"`
	Live             bool `json:"live"`
	RemainingSeconds *int `json:"remaining_seconds,omitempty"`
}

// ListSessions returns every session of an exam for its author. The counters are
// best effort: a failed aggregate query leaves them at zero.
func (s *ExamSessionService) ListSessions(ctx context.Context, teacherID int, examID uuid.UUID) ([]MonitoredSession, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, ErrNotExamAuthor
	}

	sessions, err := s.sessionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	answered, err := s.monitor.AnsweredCounts(ctx, examID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to count answers")
	}
	cheats, err := s.monitor.CheatCounts(ctx, examID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to count cheat signals")
	}

	out := make([]MonitoredSession, 0, len(sessions))
	for _, sess := range sessions {
		m := MonitoredSession{
			ExamSession:  sess,
			Answered:     answered[sess.ID],
			CheatSignals: cheats[sess.ID],
		}
		if r, ok := s.manager.Get(sess.ID); ok {
			m.ExamSession = *r.Session()
			m.Live = true
			m.Answered, _ = r.Progress()
			secs := int(r.RemainingTime() / time.Second)
			m.RemainingSeconds = &secs
		}
		out = append(out, m)
	}
	return out, nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/scoring"
	"k8s.io/utils/clock"
)

type gradingExams interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

type gradingQuestions interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

type gradingSessions interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	MarkGraded(ctx context.Context, id uuid.UUID) error
}

type gradingAnswers interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Answer, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error)
	ApplyAutoGrades(ctx context.Context, grades []repository.GradeUpdate) error
	Override(ctx context.Context, id uuid.UUID, points float64, isCorrect *bool) (*model.Answer, error)
}

type gradingResults interface {
	Upsert(ctx context.Context, res *model.Result) error
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.Result, error)
}

type gradingCheats interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error)
}

// GradingService turns locked sessions into results.
type GradingService struct {
	exams     gradingExams
	questions gradingQuestions
	sessions  gradingSessions
	answers   gradingAnswers
	results   gradingResults
	cheats    gradingCheats
	clock     clock.PassiveClock
	log       zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(exams gradingExams, questions gradingQuestions, sessions gradingSessions, answers gradingAnswers, results gradingResults, cheats gradingCheats, clk clock.PassiveClock, log zerolog.Logger) *GradingService {
	return &GradingService{
		exams:     exams,
		questions: questions,
		sessions:  sessions,
		answers:   answers,
		results:   results,
		cheats:    cheats,
		clock:     clk,
		log:       log.With().Str("component", "grading_service").Logger(),
	}
}

// GradingSheet is what a grader sees for one session.
type GradingSheet struct {
	Session   *model.ExamSession `json:"session"`
	ExamTitle string             `json:"exam_title"`
	Scorecard scoring.Scorecard  `json:"scorecard"`
	Result    *model.Result      `json:"result,omitempty"`
	// CheatEvents is the signal audit trail, oldest first.
	CheatEvents []model.CheatEvent `json:"cheat_events"`
}

type gradingInput struct {
	session   *model.ExamSession
	exam      *model.Exam
	questions []model.Question
	answers   []model.Answer
}

func (s *GradingService) load(ctx context.Context, sessionID uuid.UUID) (*gradingInput, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	questions, err := s.questions.ListByExam(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return &gradingInput{session: sess, exam: exam, questions: questions, answers: answers}, nil
}

func (s *GradingService) loadForAuthor(ctx context.Context, teacherID int, sessionID uuid.UUID) (*gradingInput, error) {
	in, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if in.exam.TeacherID != teacherID {
		return nil, ErrNotExamAuthor
	}
	return in, nil
}

// Preview computes the scorecard of a session without writing anything.
func (s *GradingService) Preview(ctx context.Context, teacherID int, sessionID uuid.UUID) (*GradingSheet, error) {
	in, err := s.loadForAuthor(ctx, teacherID, sessionID)
	if err != nil {
		return nil, err
	}

	sheet := &GradingSheet{
		Session:   in.session,
		ExamTitle: in.exam.Title,
		Scorecard: scoring.Score(in.questions, in.answers),
	}
	res, err := s.results.GetBySession(ctx, sessionID)
	switch {
	case err == nil:
		sheet.Result = res
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get result: %w", err)
	}

	events, err := s.cheats.ListBySession(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to load cheat audit trail")
	}
	sheet.CheatEvents = events
	return sheet, nil
}

// AutoGrade stores the computed grade of every auto-gradable question of a locked
// session. Grader overrides are kept. The grades stay advisory until a teacher
// calls Finalize.
func (s *GradingService) AutoGrade(ctx context.Context, sessionID uuid.UUID) (*scoring.Scorecard, error) {
	in, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !in.session.IsLocked {
		return nil, ErrNotLocked
	}
	if in.session.Status == model.SessionStatusGraded {
		sc := scoring.Score(in.questions, in.answers)
		return &sc, nil
	}

	if err := s.applyAutoGrades(ctx, in); err != nil {
		return nil, err
	}

	sc := scoring.Score(in.questions, in.answers)
	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("pending", sc.Pending).
		Float64("percentage", sc.Percentage).
		Msg("Auto-graded, waiting for a grader")
	return &sc, nil
}

func (s *GradingService) applyAutoGrades(ctx context.Context, in *gradingInput) error {
	byQuestion := make(map[uuid.UUID]*model.Answer, len(in.answers))
	for i := range in.answers {
		byQuestion[in.answers[i].QuestionID] = &in.answers[i]
	}

	var updates []repository.GradeUpdate
	for i := range in.questions {
		q := &in.questions[i]
		a := byQuestion[q.ID]
		if a != nil && a.GradeOverridden {
			continue
		}
		g := scoring.GradeAnswer(q, a)
		if !g.Gradable {
			continue
		}
		updates = append(updates, repository.GradeUpdate{
			SessionID:    in.session.ID,
			QuestionID:   q.ID,
			IsCorrect:    *g.IsCorrect,
			PointsEarned: *g.PointsEarned,
		})
	}

	if err := s.answers.ApplyAutoGrades(ctx, updates); err != nil {
		return fmt.Errorf("apply auto grades: %w", err)
	}
	return nil
}

// Override sets a grader's grade on one answer of a locked, ungraded session.
func (s *GradingService) Override(ctx context.Context, teacherID int, answerID uuid.UUID, req *model.OverrideGradeRequest) (*model.Answer, error) {
	answer, err := s.answers.GetByID(ctx, answerID)
	if err != nil {
		return nil, err
	}
	in, err := s.loadForAuthor(ctx, teacherID, answer.SessionID)
	if err != nil {
		return nil, err
	}
	if err := checkGradable(in.session); err != nil {
		return nil, err
	}

	var question *model.Question
	for i := range in.questions {
		if in.questions[i].ID == answer.QuestionID {
			question = &in.questions[i]
			break
		}
	}
	if question == nil {
		return nil, fmt.Errorf("question %s of answer %s: %w", answer.QuestionID, answerID, repository.ErrNotFound)
	}
	if req.PointsEarned < 0 || req.PointsEarned > question.Points {
		return nil, ErrPointsRange
	}

	updated, err := s.answers.Override(ctx, answerID, req.PointsEarned, req.IsCorrect)
	if err != nil {
		return nil, fmt.Errorf("override grade: %w", err)
	}

	s.log.Info().
		Str("answer_id", answerID.String()).
		Int("grader_id", teacherID).
		Float64("points", req.PointsEarned).
		Msg("Grade overridden")
	return updated, nil
}

// Finalize fills any missing auto grades and writes the session's single result.
// It fails while a question still needs a human grade.
func (s *GradingService) Finalize(ctx context.Context, teacherID int, sessionID uuid.UUID, comments string) (*model.Result, error) {
	in, err := s.loadForAuthor(ctx, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkGradable(in.session); err != nil {
		return nil, err
	}
	if err := s.applyAutoGrades(ctx, in); err != nil {
		return nil, err
	}

	sc := scoring.Score(in.questions, in.answers)
	if sc.Pending > 0 {
		return nil, ErrGradesPending
	}
	return s.finalize(ctx, in, sc, &teacherID, comments)
}

func (s *GradingService) finalize(ctx context.Context, in *gradingInput, sc scoring.Scorecard, graderID *int, comments string) (*model.Result, error) {
	res := &model.Result{
		SessionID:   in.session.ID,
		TotalPoints: sc.TotalPoints,
		MaxPoints:   sc.MaxPoints,
		Percentage:  sc.Percentage,
		GradeLetter: sc.GradeLetter,
		GraderID:    graderID,
		Comments:    comments,
		GradedAt:    s.clock.Now(),
	}
	if err := s.results.Upsert(ctx, res); err != nil {
		return nil, fmt.Errorf("upsert result: %w", err)
	}
	if err := s.sessions.MarkGraded(ctx, in.session.ID); err != nil {
		return nil, fmt.Errorf("mark graded: %w", err)
	}
	return res, nil
}

// Report is the student's view of their graded session. Per-question review is only
// included when the exam allows it.
func (s *GradingService) Report(ctx context.Context, studentID int, sessionID uuid.UUID) (*model.ResultReport, error) {
	in, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if in.session.StudentID != studentID {
		return nil, ErrSessionNotFound
	}

	res, err := s.results.GetBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotReady
		}
		return nil, fmt.Errorf("get result: %w", err)
	}

	report := &model.ResultReport{Result: res, Session: in.session, ExamTitle: in.exam.Title}
	if !in.exam.AllowReview {
		return report, nil
	}

	sc := scoring.Score(in.questions, in.answers)
	for _, it := range sc.Items {
		report.Items = append(report.Items, model.ReportQuestion{
			Question:     it.Question.ForStudent(),
			Answer:       it.Answer,
			IsCorrect:    it.Grade.IsCorrect,
			PointsEarned: it.Grade.PointsEarned,
		})
	}
	return report, nil
}

func checkGradable(sess *model.ExamSession) error {
	switch {
	case sess.Status == model.SessionStatusGraded:
		return ErrAlreadyGraded
	case !sess.IsLocked:
		return ErrNotLocked
	}
	return nil
}

package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type examStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListByTeacher(ctx context.Context, teacherID int) ([]model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
}

type questionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	Create(ctx context.Context, q *model.Question) error
}

type sessionCounter interface {
	CountByExam(ctx context.Context, examID uuid.UUID) (int, error)
}

// ExamInvalidator drops cached exam data after authoring changes.
type ExamInvalidator interface {
	InvalidateExam(ctx context.Context, examID uuid.UUID) error
}

// ExamService handles exam authoring.
type ExamService struct {
	examRepo     examStore
	questionRepo questionStore
	sessionRepo  sessionCounter
	cache        ExamInvalidator
	log          zerolog.Logger
}

// NewExamService creates a new ExamService. cache may be nil.
func NewExamService(examRepo examStore, questionRepo questionStore, sessionRepo sessionCounter, cache ExamInvalidator, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		sessionRepo:  sessionRepo,
		cache:        cache,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// ExamDetail is an exam with its questions, for the author.
type ExamDetail struct {
	model.Exam
	Questions []model.Question `json:"questions"`
	Sessions  int              `json:"sessions"`
}

// Create inserts a new exam owned by teacherID.
func (s *ExamService) Create(ctx context.Context, teacherID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		TeacherID:       teacherID,
		Title:           req.Title,
		DurationMinutes: req.DurationMinutes,
		OpensAt:         req.OpensAt,
		ClosesAt:        req.ClosesAt,
		AntiCheat:       req.AntiCheat,
		MaxWarnings:     req.MaxWarnings,
		AllowReview:     req.AllowReview,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Int("teacher_id", teacherID).Msg("Exam created")
	return exam, nil
}

// ListByAuthor retrieves the exams a teacher authored.
func (s *ExamService) ListByAuthor(ctx context.Context, teacherID int) ([]model.Exam, error) {
	exams, err := s.examRepo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Get returns an exam with its questions. Only the author may read the answer key.
func (s *ExamService) Get(ctx context.Context, teacherID int, examID uuid.UUID) (*ExamDetail, error) {
	exam, err := s.authorExam(ctx, teacherID, examID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	count, err := s.sessionRepo.CountByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return &ExamDetail{Exam: *exam, Questions: questions, Sessions: count}, nil
}

// AddQuestion appends a question to an exam nobody has started yet. A duplicate
// order number is a repository.ErrConflict.
func (s *ExamService) AddQuestion(ctx context.Context, teacherID int, examID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	if _, err := s.authorExam(ctx, teacherID, examID); err != nil {
		return nil, err
	}

	count, err := s.sessionRepo.CountByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	if count > 0 {
		return nil, ErrExamInUse
	}

	q := &model.Question{
		ExamID:      examID,
		Type:        model.QuestionType(req.Type),
		Text:        req.Text,
		Points:      req.Points,
		OrderNumber: req.OrderNumber,
	}
	if !q.Type.UsesOptions() {
		q.CorrectAnswer = req.CorrectAnswer
	}
	for _, o := range req.Options {
		q.Options = append(q.Options, model.Option{Text: o.Text, IsCorrect: o.IsCorrect, OrderNumber: o.OrderNumber})
	}

	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateExam(ctx, examID); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to invalidate exam cache")
		}
	}
	return q, nil
}

func (s *ExamService) authorExam(ctx context.Context, teacherID int, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, ErrNotExamAuthor
	}
	return exam, nil
}

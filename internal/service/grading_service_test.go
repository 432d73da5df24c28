package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const (
	authorID  = 7
	studentID = 42
)

var gradedAt = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type gradingFixture struct {
	db      *fakeDB
	svc     *GradingService
	exam    *model.Exam
	session *model.ExamSession
	mcq     model.Question
	essay   model.Question
	right   uuid.UUID
}

// newGradingFixture builds a locked session with one mcq worth 4 points and one
// essay worth 6 points. withEssay=false leaves only the mcq.
func newGradingFixture(t *testing.T, withEssay bool) *gradingFixture {
	t.Helper()
	db := newFakeDB()

	f := &gradingFixture{db: db, right: uuid.New()}
	f.mcq = model.Question{
		ID: uuid.New(), Type: model.QuestionTypeMCQ, Points: 4, OrderNumber: 1,
		Options: []model.Option{{ID: f.right, IsCorrect: true}, {ID: uuid.New()}},
	}
	qs := []model.Question{f.mcq}
	if withEssay {
		f.essay = model.Question{ID: uuid.New(), Type: model.QuestionTypeLongAnswer, Points: 6, OrderNumber: 2}
		qs = append(qs, f.essay)
	}

	f.exam = &model.Exam{TeacherID: authorID, Title: "Mechanics", AllowReview: true}
	db.addExam(f.exam, qs...)

	reason := model.LockReasonManual
	f.session = &model.ExamSession{
		ExamID: f.exam.ID, StudentID: studentID, Status: model.SessionStatusSubmitted,
		LockReason: &reason, IsLocked: true,
	}
	db.addSession(f.session)

	f.svc = NewGradingService(fakeExams{db}, fakeQuestions{db}, fakeSessions{db}, fakeAnswers{db},
		fakeResults{db}, fakeCheats{db}, testingclock.NewFakePassiveClock(gradedAt), zerolog.Nop())
	return f
}

func (f *gradingFixture) answerMCQ(option uuid.UUID) uuid.UUID {
	return f.db.addAnswer(model.Answer{SessionID: f.session.ID, QuestionID: f.mcq.ID, SelectedOptionID: &option})
}

func (f *gradingFixture) answerEssay(text string) uuid.UUID {
	return f.db.addAnswer(model.Answer{SessionID: f.session.ID, QuestionID: f.essay.ID, AnswerText: strPtr(text)})
}

func TestAutoGradeLeavesResultToTeacher(t *testing.T) {
	f := newGradingFixture(t, false)
	f.answerMCQ(f.right)

	sc, err := f.svc.AutoGrade(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sc.Pending)
	assert.Equal(t, 100.0, sc.Percentage)

	assert.Empty(t, f.db.results)
	assert.Empty(t, f.db.graded)
	assert.Equal(t, model.SessionStatusSubmitted, f.db.sessions[f.session.ID].Status)
}

func TestOverrideAfterAutoGradeThenFinalize(t *testing.T) {
	f := newGradingFixture(t, false)
	mcqID := f.answerMCQ(f.mcq.Options[1].ID)
	ctx := context.Background()

	sc, err := f.svc.AutoGrade(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sc.TotalPoints)

	correct := true
	a, err := f.svc.Override(ctx, authorID, mcqID, &model.OverrideGradeRequest{PointsEarned: 3, IsCorrect: &correct})
	require.NoError(t, err)
	assert.True(t, a.GradeOverridden)

	_, err = f.svc.AutoGrade(ctx, f.session.ID)
	require.NoError(t, err)

	res, err := f.svc.Finalize(ctx, authorID, f.session.ID, "Accepted the working")
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.TotalPoints)
	assert.Equal(t, 4.0, res.MaxPoints)
	assert.Equal(t, 75.0, res.Percentage)
	require.NotNil(t, res.GraderID)
	assert.Equal(t, authorID, *res.GraderID)
	assert.Equal(t, gradedAt, res.GradedAt)
	assert.Equal(t, []uuid.UUID{f.session.ID}, f.db.graded)
	assert.Equal(t, model.SessionStatusGraded, f.db.sessions[f.session.ID].Status)
}

func TestAutoGradeUnansweredScoresZero(t *testing.T) {
	f := newGradingFixture(t, false)

	sc, err := f.svc.AutoGrade(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sc.TotalPoints)
	assert.Equal(t, "F", sc.GradeLetter)

	require.Len(t, f.db.autoGrades, 1)
	assert.False(t, f.db.autoGrades[0].IsCorrect)
}

func TestAutoGradeLeavesEssayPending(t *testing.T) {
	f := newGradingFixture(t, true)
	f.answerMCQ(f.right)
	f.answerEssay("Force is mass times acceleration")

	sc, err := f.svc.AutoGrade(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sc.Pending)
	assert.Empty(t, f.db.results)
	assert.Empty(t, f.db.graded)
}

func TestAutoGradeRequiresLockedSession(t *testing.T) {
	f := newGradingFixture(t, false)
	f.session.IsLocked = false
	f.session.Status = model.SessionStatusInProgress

	_, err := f.svc.AutoGrade(context.Background(), f.session.ID)
	assert.ErrorIs(t, err, ErrNotLocked)

	_, err = f.svc.AutoGrade(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestOverrideThenFinalize(t *testing.T) {
	f := newGradingFixture(t, true)
	f.answerMCQ(f.right)
	essayID := f.answerEssay("F = ma")
	ctx := context.Background()

	_, err := f.svc.Finalize(ctx, authorID, f.session.ID, "")
	assert.ErrorIs(t, err, ErrGradesPending)

	correct := true
	_, err = f.svc.Override(ctx, authorID, essayID, &model.OverrideGradeRequest{PointsEarned: 5, IsCorrect: &correct})
	require.NoError(t, err)

	res, err := f.svc.Finalize(ctx, authorID, f.session.ID, "Good derivation")
	require.NoError(t, err)
	assert.Equal(t, 9.0, res.TotalPoints)
	assert.Equal(t, 10.0, res.MaxPoints)
	assert.Equal(t, 90.0, res.Percentage)
	assert.Equal(t, "A", res.GradeLetter)
	require.NotNil(t, res.GraderID)
	assert.Equal(t, authorID, *res.GraderID)
	assert.Equal(t, "Good derivation", res.Comments)

	_, err = f.svc.Finalize(ctx, authorID, f.session.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyGraded)
}

func TestOverrideRejections(t *testing.T) {
	f := newGradingFixture(t, true)
	essayID := f.answerEssay("F = ma")
	ctx := context.Background()

	tests := []struct {
		name    string
		teacher int
		points  float64
		want    error
	}{
		{"above question points", authorID, 6.5, ErrPointsRange},
		{"negative", authorID, -1, ErrPointsRange},
		{"not the author", authorID + 1, 3, ErrNotExamAuthor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Override(ctx, tt.teacher, essayID, &model.OverrideGradeRequest{PointsEarned: tt.points})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("session in progress", func(t *testing.T) {
		f.session.IsLocked = false
		f.session.Status = model.SessionStatusInProgress
		defer func() {
			f.session.IsLocked = true
			f.session.Status = model.SessionStatusSubmitted
		}()
		_, err := f.svc.Override(ctx, authorID, essayID, &model.OverrideGradeRequest{PointsEarned: 1})
		assert.ErrorIs(t, err, ErrNotLocked)
	})
}

func TestReport(t *testing.T) {
	f := newGradingFixture(t, false)
	f.answerMCQ(f.right)
	ctx := context.Background()

	_, err := f.svc.Report(ctx, studentID, f.session.ID)
	assert.ErrorIs(t, err, ErrResultNotReady)

	_, err = f.svc.AutoGrade(ctx, f.session.ID)
	require.NoError(t, err)
	_, err = f.svc.Report(ctx, studentID, f.session.ID)
	assert.ErrorIs(t, err, ErrResultNotReady)

	_, err = f.svc.Finalize(ctx, authorID, f.session.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Report(ctx, studentID+1, f.session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	report, err := f.svc.Report(ctx, studentID, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mechanics", report.ExamTitle)
	require.Len(t, report.Items, 1)
	require.NotNil(t, report.Items[0].IsCorrect)
	assert.True(t, *report.Items[0].IsCorrect)

	f.exam.AllowReview = false
	report, err = f.svc.Report(ctx, studentID, f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
	assert.NotNil(t, report.Result)
}

func TestPreviewIncludesCheatTrail(t *testing.T) {
	f := newGradingFixture(t, true)
	f.answerMCQ(f.right)
	f.db.cheats[f.session.ID] = []model.CheatEvent{{SessionID: f.session.ID, Signal: "window_blur", Counted: true, Warning: 1}}

	sheet, err := f.svc.Preview(context.Background(), authorID, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sheet.Scorecard.Pending)
	assert.Nil(t, sheet.Result)
	require.Len(t, sheet.CheatEvents, 1)
	assert.Equal(t, "window_blur", sheet.CheatEvents[0].Signal)

	_, err = f.svc.Preview(context.Background(), authorID+1, f.session.ID)
	assert.ErrorIs(t, err, ErrNotExamAuthor)
}

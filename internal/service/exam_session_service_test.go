package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func newSessionService(db *fakeDB, monitor MonitorCounter, now time.Time) *ExamSessionService {
	// The lobby and monitor never reach the store through the manager.
	manager := session.NewManager(nil, nil, nil, session.Options{}, zerolog.Nop())
	return NewExamSessionService(manager, fakeExams{db}, fakeSessions{db}, monitor, testingclock.NewFakePassiveClock(now), zerolog.Nop())
}

func TestGetLobby(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	db := newFakeDB()

	window := func(title string, opensIn time.Duration) *model.Exam {
		e := &model.Exam{Title: title, OpensAt: now.Add(opensIn), ClosesAt: now.Add(opensIn + 2*time.Hour)}
		db.addExam(e)
		return e
	}
	open := window("open", -time.Hour)
	upcoming := window("upcoming", 3*time.Hour)
	started := window("started", -30*time.Minute)
	done := window("done", -90*time.Minute)
	window("next week", 7*24*time.Hour)
	window("closed", -5*time.Hour)

	db.addSession(&model.ExamSession{ExamID: started.ID, StudentID: studentID, Status: model.SessionStatusInProgress})
	db.addSession(&model.ExamSession{ExamID: done.ID, StudentID: studentID, Status: model.SessionStatusAutoSubmitted, IsLocked: true})
	// Another student's session does not leak into this lobby.
	db.addSession(&model.ExamSession{ExamID: open.ID, StudentID: studentID + 1, Status: model.SessionStatusSubmitted})

	lobby, err := newSessionService(db, fakeMonitor{}, now).GetLobby(context.Background(), studentID)
	require.NoError(t, err)

	got := make(map[uuid.UUID]LobbyStatus)
	for _, e := range lobby {
		got[e.ID] = e.LobbyStatus
	}
	assert.Equal(t, map[uuid.UUID]LobbyStatus{
		open.ID:     LobbyStatusAvailable,
		upcoming.ID: LobbyStatusUpcoming,
		started.ID:  LobbyStatusInProgress,
		done.ID:     LobbyStatusCompleted,
	}, got)
}

func TestListSessions(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	db := newFakeDB()
	exam := &model.Exam{TeacherID: authorID}
	db.addExam(exam)
	sess := &model.ExamSession{ExamID: exam.ID, StudentID: studentID, Status: model.SessionStatusInProgress}
	db.addSession(sess)

	monitor := fakeMonitor{
		answered: map[uuid.UUID]int{sess.ID: 3},
		cheats:   map[uuid.UUID]int{sess.ID: 2},
	}
	svc := newSessionService(db, monitor, now)

	list, err := svc.ListSessions(context.Background(), authorID, exam.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Answered)
	assert.Equal(t, 2, list[0].CheatSignals)
	assert.False(t, list[0].Live)
	assert.Nil(t, list[0].RemainingSeconds)

	_, err = svc.ListSessions(context.Background(), authorID+1, exam.ID)
	assert.ErrorIs(t, err, ErrNotExamAuthor)
}

func TestBlockRequiresAuthor(t *testing.T) {
	db := newFakeDB()
	exam := &model.Exam{TeacherID: authorID}
	db.addExam(exam)
	sess := &model.ExamSession{ExamID: exam.ID, StudentID: studentID, Status: model.SessionStatusInProgress}
	db.addSession(sess)
	svc := newSessionService(db, fakeMonitor{}, time.Now())

	_, err := svc.Block(context.Background(), authorID+1, sess.ID)
	assert.ErrorIs(t, err, ErrNotExamAuthor)

	_, err = svc.Block(context.Background(), authorID, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

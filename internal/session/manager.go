package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

// Options tunes the runtimes a Manager creates. Zero values take the defaults.
type Options struct {
	Clock            clock.WithTicker
	TimerTick        time.Duration
	AutosaveInterval time.Duration
	SavedDisplay     time.Duration
	FocusDebounce    time.Duration
	CountMode        CountMode
	SubmitRetry      wait.Backoff
	// WriteTimeout bounds background writes that outlive a request, such as the final flush.
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.TimerTick <= 0 {
		o.TimerTick = time.Second
	}
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = 10 * time.Second
	}
	if o.SavedDisplay <= 0 {
		o.SavedDisplay = 2 * time.Second
	}
	if o.FocusDebounce <= 0 {
		o.FocusDebounce = time.Second
	}
	if o.CountMode == "" {
		o.CountMode = CountEpisodes
	}
	if o.SubmitRetry.Duration <= 0 {
		o.SubmitRetry = wait.Backoff{
			Duration: 500 * time.Millisecond,
			Factor:   2,
			Jitter:   0.1,
			Steps:    6,
			Cap:      30 * time.Second,
		}
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

type studentKey struct {
	examID    uuid.UUID
	studentID int
}

// Manager owns the live runtimes, one per in-progress session.
type Manager struct {
	store  Store
	cheats CheatRecorder
	grades GradeQueue
	opts   Options
	log    zerolog.Logger

	mu        sync.Mutex
	runtimes  map[uuid.UUID]*Runtime
	byStudent map[studentKey]uuid.UUID
}

// NewManager creates a Manager. cheats and grades may be nil.
func NewManager(store Store, cheats CheatRecorder, grades GradeQueue, opts Options, log zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		cheats:    cheats,
		grades:    grades,
		opts:      opts.withDefaults(),
		log:       log.With().Str("component", "session_manager").Logger(),
		runtimes:  make(map[uuid.UUID]*Runtime),
		byStudent: make(map[studentKey]uuid.UUID),
	}
}

// StartOrResume returns the runtime of the student's session for an exam, creating the
// session on first entry. A locked session yields ErrSessionLocked. A resumed session
// keeps its original start time. Store failures are LoadFailures.
func (m *Manager) StartOrResume(ctx context.Context, examID uuid.UUID, studentID int) (*Runtime, error) {
	key := studentKey{examID: examID, studentID: studentID}
	if r := m.lookup(key); r != nil {
		if r.Locked() {
			return nil, ErrSessionLocked
		}
		metrics.SessionsStarted.WithLabelValues("resumed").Inc()
		return r, nil
	}

	exam, err := m.store.GetExam(ctx, examID)
	if err != nil {
		return nil, newError(LoadFailure, "load exam", err)
	}

	outcome := "resumed"
	sess, err := m.store.FindSession(ctx, examID, studentID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		now := m.opts.Clock.Now()
		if now.Before(exam.OpensAt) {
			return nil, ErrExamNotOpen
		}
		if !exam.IsOpenAt(now) {
			return nil, ErrExamClosed
		}
		sess, err = m.store.CreateSession(ctx, examID, studentID, now)
		if err != nil {
			return nil, newError(LoadFailure, "create session", err)
		}
		outcome = "created"
	case err != nil:
		return nil, newError(LoadFailure, "load session", err)
	}

	if sess.Status.Terminal() {
		return nil, ErrSessionLocked
	}

	questions, err := m.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, newError(LoadFailure, "load questions", err)
	}
	saved, err := m.store.ListAnswers(ctx, sess.ID)
	if err != nil {
		return nil, newError(LoadFailure, "load answers", err)
	}

	r := newRuntime(exam, sess, questions, saved, m.store, m.cheats, m.opts.Clock, m.log, runtimeConfig{
		tick:         m.opts.TimerTick,
		autosave:     m.opts.AutosaveInterval,
		savedDisplay: m.opts.SavedDisplay,
		debounce:     m.opts.FocusDebounce,
		mode:         m.opts.CountMode,
		retry:        m.opts.SubmitRetry,
		flushTimeout: m.opts.WriteTimeout,
	}, runtimeHooks{
		onLocked: m.onLocked,
		onClosed: m.remove,
	})

	m.mu.Lock()
	if existing, ok := m.runtimes[sess.ID]; ok {
		m.mu.Unlock()
		metrics.SessionsStarted.WithLabelValues("resumed").Inc()
		return existing, nil
	}
	m.runtimes[sess.ID] = r
	m.byStudent[key] = sess.ID
	m.mu.Unlock()

	metrics.ActiveRuntimes.Inc()
	metrics.SessionsStarted.WithLabelValues(outcome).Inc()
	m.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Str("session_id", sess.ID.String()).
		Str("outcome", outcome).
		Msg("Exam session runtime started")

	r.start()
	return r, nil
}

// Get returns the live runtime of a session, if any.
func (m *Manager) Get(sessionID uuid.UUID) (*Runtime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runtimes[sessionID]
	return r, ok
}

// Find returns the live runtime of a student's session for an exam, if any.
func (m *Manager) Find(examID uuid.UUID, studentID int) (*Runtime, bool) {
	r := m.lookup(studentKey{examID: examID, studentID: studentID})
	return r, r != nil
}

func (m *Manager) lookup(key studentKey) *Runtime {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byStudent[key]
	if !ok {
		return nil
	}
	return m.runtimes[id]
}

// Block locks a session administratively. A live runtime flushes first and its view is
// sent to the dashboard.
func (m *Manager) Block(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	if r, ok := m.Get(sessionID); ok {
		sess, err := r.Submit(ctx, model.LockReasonAdministrative)
		if err == nil || !errors.Is(err, ErrRuntimeClosed) {
			return sess, err
		}
	}

	sess, changed, err := m.store.LockSession(ctx, sessionID, model.SessionStatusBlocked, model.LockReasonAdministrative, m.opts.Clock.Now())
	if err != nil {
		return nil, newError(SubmitFailure, "block session", err)
	}
	if changed {
		metrics.SessionsLocked.WithLabelValues(string(model.LockReasonAdministrative)).Inc()
		m.enqueueGrade(sessionID)
	}
	return sess, nil
}

// SweepExpired locks in-progress sessions whose deadline passed while no runtime held
// them. Sessions with a live runtime are left to their own timer. It returns the number
// of sessions locked.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	expired, err := m.store.ListExpiredSessions(ctx, m.opts.Clock.Now())
	if err != nil {
		return 0, err
	}

	locked := 0
	for _, s := range expired {
		if r, ok := m.Get(s.ID); ok {
			r.timer.Check()
			continue
		}
		_, changed, err := m.store.LockSession(ctx, s.ID, model.SessionStatusAutoSubmitted, model.LockReasonTimeExpired, m.opts.Clock.Now())
		if err != nil {
			m.log.Error().Err(err).Str("session_id", s.ID.String()).Msg("Failed to lock expired session")
			continue
		}
		if changed {
			locked++
			metrics.SessionsLocked.WithLabelValues(string(model.LockReasonTimeExpired)).Inc()
			m.enqueueGrade(s.ID)
		}
	}
	return locked, nil
}

// Active returns the number of live runtimes.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runtimes)
}

// Shutdown closes every runtime, flushing unsaved answers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Runtime, 0, len(m.runtimes))
	for _, r := range m.runtimes {
		all = append(all, r)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range all {
		wg.Add(1)
		go func(r *Runtime) {
			defer wg.Done()
			r.Close()
		}(r)
	}
	wg.Wait()
	m.log.Info().Int("runtimes", len(all)).Msg("Session runtimes closed")
}

func (m *Manager) onLocked(r *Runtime, sess *model.ExamSession, changed bool) {
	m.remove(r)
	if changed {
		m.enqueueGrade(sess.ID)
	}
}

func (m *Manager) remove(r *Runtime) {
	sess := r.Session()
	key := studentKey{examID: sess.ExamID, studentID: sess.StudentID}

	m.mu.Lock()
	current, ok := m.runtimes[sess.ID]
	if !ok || current != r {
		m.mu.Unlock()
		return
	}
	delete(m.runtimes, sess.ID)
	if m.byStudent[key] == sess.ID {
		delete(m.byStudent, key)
	}
	m.mu.Unlock()

	metrics.ActiveRuntimes.Dec()
}

func (m *Manager) enqueueGrade(sessionID uuid.UUID) {
	if m.grades == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.WriteTimeout)
	defer cancel()
	if err := m.grades.EnqueueGrade(ctx, sessionID); err != nil {
		m.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to enqueue auto-grade")
	}
}

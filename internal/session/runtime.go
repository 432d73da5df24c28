package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

type runtimeConfig struct {
	tick         time.Duration
	autosave     time.Duration
	savedDisplay time.Duration
	debounce     time.Duration
	mode         CountMode
	retry        wait.Backoff
	flushTimeout time.Duration
}

type runtimeHooks struct {
	onLocked func(r *Runtime, sess *model.ExamSession, changed bool)
	onClosed func(r *Runtime)
}

// Runtime is the live engine of one in-progress session: the timer, the cheat detector,
// the autosave loop and the submit state machine. Views attach and detach; the runtime
// lives until the session locks or the runtime is closed.
type Runtime struct {
	exam      *model.Exam
	questions []model.Question
	store     Store
	cheats    CheatRecorder
	clock     clock.WithTicker
	log       zerolog.Logger
	cfg       runtimeConfig
	hooks     runtimeHooks

	book     *AnswerBook
	timer    *Timer
	detector *Detector
	saver    *Autosaver

	cancel  context.CancelFunc
	group   *errgroup.Group
	forceCh chan model.LockReason

	// submitMu serializes lock transitions and answer writes against them.
	submitMu       sync.Mutex
	manualInFlight atomic.Bool
	promptPending  atomic.Bool

	mu          sync.Mutex
	session     *model.ExamSession
	listener    Listener
	attachID    uint64
	unsubscribe func()
	closed      bool

	closeOnce sync.Once
}

func newRuntime(exam *model.Exam, sess *model.ExamSession, questions []model.Question, saved []model.Answer,
	store Store, cheats CheatRecorder, clk clock.WithTicker, log zerolog.Logger, cfg runtimeConfig, hooks runtimeHooks) *Runtime {
	r := &Runtime{
		exam:      exam,
		questions: questions,
		store:     store,
		cheats:    cheats,
		clock:     clk,
		log:       logger.WithSession(log, sess.ID.String(), sess.ExamID.String(), sess.StudentID),
		cfg:       cfg,
		hooks:     hooks,
		forceCh:   make(chan model.LockReason, 1),
		session:   sess,
	}

	r.book = NewAnswerBook(sess.ID, questions, saved)
	r.timer = NewTimer(clk, sess.StartedAt, exam.Duration(), cfg.tick, func() {
		r.force(model.LockReasonTimeExpired)
	})
	r.timer.OnTick(r.emitTick)
	r.detector = NewDetector(clk, DetectorConfig{
		Enabled:     exam.AntiCheat,
		MaxWarnings: exam.MaxWarnings,
		Mode:        cfg.mode,
		Debounce:    cfg.debounce,
	}, sess.WarningCount, DetectorHooks{
		OnWarning: r.onWarning,
		OnMaxWarnings: func(WarningState) {
			r.force(model.LockReasonMaxWarnings)
		},
	})
	r.saver = NewAutosaver(clk, store, r.book, cfg.autosave, cfg.savedDisplay, r.log, func(s SaveStatus) {
		r.emit(Event{Type: EventSaveStatus, Data: s})
	})
	return r
}

// start launches the timer, autosave and forced-submit loops. A resumed session that is
// already past its deadline or at its warning limit is force-submitted right away.
func (r *Runtime) start() {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	r.cancel = cancel
	r.group = group

	if r.detector.LimitReached() {
		r.force(model.LockReasonMaxWarnings)
	}

	group.Go(func() error { return r.forceLoop(gctx) })
	group.Go(func() error { return r.saver.Run(gctx) })
	group.Go(func() error { return r.timer.Run(gctx) })
}

// SessionID returns the id of the session this runtime drives.
func (r *Runtime) SessionID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.ID
}

// Session returns a copy of the current session row.
func (r *Runtime) Session() *model.ExamSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *r.session
	return &s
}

func (r *Runtime) Exam() *model.Exam { return r.exam }

// Locked reports whether the session has reached a terminal status.
func (r *Runtime) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Status.Terminal()
}

// RemainingTime is the time left before the forced submit.
func (r *Runtime) RemainingTime() time.Duration {
	return r.timer.Remaining()
}

// WarningState returns the cheat detector counter.
func (r *Runtime) WarningState() WarningState {
	return r.detector.State()
}

// Progress returns how many questions hold a non-empty answer, out of all of them.
func (r *Runtime) Progress() (answered, total int) {
	return r.book.Answered(), r.book.Total()
}

// SaveStatus returns the autosave display status.
func (r *Runtime) SaveStatus() SaveStatus {
	return r.saver.Status()
}

// Payload returns the exam as shown to the student, without answer keys.
func (r *Runtime) Payload() *model.ExamPayload {
	qs := make([]model.QuestionForStudent, 0, len(r.questions))
	for i := range r.questions {
		qs = append(qs, r.questions[i].ForStudent())
	}
	return &model.ExamPayload{
		ExamID:      r.exam.ID,
		Title:       r.exam.Title,
		Duration:    r.exam.DurationMinutes,
		AntiCheat:   r.exam.AntiCheat,
		MaxWarnings: r.exam.MaxWarnings,
		Questions:   qs,
	}
}

// State returns the snapshot a view restores itself from.
func (r *Runtime) State() *model.ExamSessionState {
	secs := r.timer.RemainingSeconds()
	ws := r.detector.State()

	var suppress []string
	for _, s := range r.detector.Suppressed() {
		suppress = append(suppress, string(s))
	}

	return &model.ExamSessionState{
		Session:          r.Session(),
		Answers:          r.book.Map(),
		RemainingSeconds: secs,
		Remaining:        FormatRemaining(secs),
		Warnings: model.WarningSnapshot{
			Count:        ws.Count,
			Max:          ws.Max,
			ShowModalNow: ws.ShowModalNow,
		},
		SaveStatus: string(r.saver.Status()),
		Suppress:   suppress,
	}
}

// Attach connects a view. Any previously attached view is told it was replaced.
// The detector listens only while a view is attached. The returned func detaches
// this view and is safe to call more than once.
func (r *Runtime) Attach(l Listener) (detach func()) {
	r.mu.Lock()
	if r.session.Status.Terminal() || r.closed {
		sess := *r.session
		r.mu.Unlock()
		l(Event{Type: EventLocked, Data: LockedData{Session: &sess, Redirect: DashboardPath}})
		return func() {}
	}

	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	prev := r.listener
	r.attachID++
	id := r.attachID
	r.listener = l
	r.unsubscribe = r.detector.Subscribe()
	r.mu.Unlock()

	if prev != nil {
		prev(Event{Type: EventReplaced})
	}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.attachID != id {
			return
		}
		r.listener = nil
		if r.unsubscribe != nil {
			r.unsubscribe()
			r.unsubscribe = nil
		}
	}
}

// OnAnswerChange replaces the in-memory answer for a question. Nothing is written
// until the next autosave tick or submit.
func (r *Runtime) OnAnswerChange(questionID uuid.UUID, in model.AnswerInput) (model.Answer, error) {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	if r.Locked() || r.timer.Expired() {
		return model.Answer{}, ErrSessionLocked
	}
	if r.isClosed() {
		return model.Answer{}, ErrRuntimeClosed
	}

	a, err := r.book.Set(questionID, in)
	if err != nil {
		return model.Answer{}, newError(ValidationFailure, "answer change", err)
	}
	return a, nil
}

// Report feeds one browser signal to the cheat detector.
func (r *Runtime) Report(sig Signal) Verdict {
	if r.Locked() {
		return Verdict{Signal: sig, Ignored: true, State: r.detector.State()}
	}

	v := r.detector.Report(sig)
	if r.detector.Enabled() && sig.Known() {
		metrics.CheatSignals.WithLabelValues(string(sig), strconv.FormatBool(v.Counted)).Inc()
		r.recordCheat(sig, v)
	}
	return v
}

// AcknowledgeWarning hides the warning modal.
func (r *Runtime) AcknowledgeWarning() WarningState {
	return r.detector.Acknowledge()
}

// RequestSubmit starts a manual submit and returns the confirmation prompt.
func (r *Runtime) RequestSubmit() (SubmitPrompt, error) {
	if r.Locked() {
		return SubmitPrompt{}, ErrSessionLocked
	}
	if r.manualInFlight.Load() {
		return SubmitPrompt{}, ErrSubmitInFlight
	}
	r.promptPending.Store(true)

	answered, total := r.book.Answered(), r.book.Total()
	return SubmitPrompt{Answered: answered, Total: total, Unanswered: total - answered}, nil
}

// ConfirmSubmit commits a requested manual submit. On a SubmitFailure the prompt stays
// pending so the student can confirm again.
func (r *Runtime) ConfirmSubmit(ctx context.Context) (*model.ExamSession, error) {
	if r.manualInFlight.Load() {
		return nil, ErrSubmitInFlight
	}
	if !r.promptPending.CompareAndSwap(true, false) {
		return nil, ErrNoPendingSubmit
	}

	sess, err := r.Submit(ctx, model.LockReasonManual)
	if err != nil && KindOf(err) == SubmitFailure {
		r.promptPending.Store(true)
	}
	return sess, err
}

// CancelSubmit discards a pending confirmation prompt.
func (r *Runtime) CancelSubmit() {
	r.promptPending.Store(false)
}

// Submit flushes answers and locks the session. Manual submits use LockReasonManual;
// any other reason is a forced submit. Submitting a locked session returns the locked
// row without writing again.
func (r *Runtime) Submit(ctx context.Context, reason model.LockReason) (*model.ExamSession, error) {
	if reason == model.LockReasonManual {
		if !r.manualInFlight.CompareAndSwap(false, true) {
			return nil, ErrSubmitInFlight
		}
		defer r.manualInFlight.Store(false)
	}

	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	if r.Locked() {
		return r.Session(), nil
	}
	if r.isClosed() {
		return nil, ErrRuntimeClosed
	}

	// A store that refuses the flush already holds a lock; adopt it below.
	if err := r.saver.Flush(ctx); err != nil && !errors.Is(err, repository.ErrLocked) {
		return nil, newError(SubmitFailure, "flush answers", err)
	}

	sess, changed, err := r.store.LockSession(ctx, r.SessionID(), statusFor(reason), reason, r.clock.Now())
	if err != nil {
		return nil, newError(SubmitFailure, "lock session", err)
	}
	if !sess.Status.Terminal() {
		return nil, newError(SubmitFailure, "lock session", errors.New("session still in progress after lock"))
	}

	r.finish(sess, changed)
	return sess, nil
}

func statusFor(reason model.LockReason) model.SessionStatus {
	switch reason {
	case model.LockReasonManual:
		return model.SessionStatusSubmitted
	case model.LockReasonAdministrative:
		return model.SessionStatusBlocked
	default:
		return model.SessionStatusAutoSubmitted
	}
}

// finish applies a completed lock. Caller holds submitMu.
func (r *Runtime) finish(sess *model.ExamSession, changed bool) {
	r.mu.Lock()
	r.session = sess
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.cancel()

	reason := ""
	if sess.LockReason != nil {
		reason = string(*sess.LockReason)
	}
	if changed {
		metrics.SessionsLocked.WithLabelValues(reason).Inc()
	}
	r.log.Info().
		Str("status", string(sess.Status)).
		Str("lock_reason", reason).
		Bool("changed", changed).
		Msg("Exam session locked")

	r.emit(Event{Type: EventLocked, Data: LockedData{Session: sess, Redirect: DashboardPath}})

	if r.hooks.onLocked != nil {
		r.hooks.onLocked(r, sess, changed)
	}
}

// force queues a forced submit. Only the first reason is kept.
func (r *Runtime) force(reason model.LockReason) {
	select {
	case r.forceCh <- reason:
	default:
	}
}

// forceLoop performs the forced submit, retrying with backoff until the session is
// locked or the runtime is torn down.
func (r *Runtime) forceLoop(ctx context.Context) error {
	var reason model.LockReason
	select {
	case <-ctx.Done():
		return nil
	case reason = <-r.forceCh:
	}

	backoff := r.cfg.retry
	for {
		_, err := r.Submit(ctx, reason)
		if err == nil || errors.Is(err, ErrRuntimeClosed) || ctx.Err() != nil {
			return nil
		}

		metrics.SubmitRetries.Inc()
		delay := backoff.Step()
		r.log.Warn().Err(err).
			Str("lock_reason", string(reason)).
			Dur("retry_in", delay).
			Msg("Forced submit failed, retrying")

		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(delay):
		}
	}
}

func (r *Runtime) onWarning(ws WarningState) {
	r.mu.Lock()
	id := r.session.ID
	r.session.WarningCount = ws.Count
	at := ws.LastAt
	r.session.LastWarningAt = &at
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.flushTimeout)
	defer cancel()
	if err := r.store.RecordWarning(ctx, id, ws.Count, ws.LastAt); err != nil {
		r.log.Error().Err(newError(PersistFailure, "record warning", err)).
			Int("warning_count", ws.Count).
			Msg("Failed to persist warning count")
	}

	r.emit(Event{Type: EventWarning, Data: ws})
}

func (r *Runtime) recordCheat(sig Signal, v Verdict) {
	if r.cheats == nil {
		return
	}
	r.mu.Lock()
	ev := model.CheatEvent{
		ExamID:     r.session.ExamID,
		StudentID:  r.session.StudentID,
		SessionID:  r.session.ID,
		Signal:     string(sig),
		Counted:    v.Counted,
		Warning:    v.State.Count,
		RecordedAt: r.clock.Now(),
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.flushTimeout)
	defer cancel()
	if err := r.cheats.RecordCheat(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("signal", string(sig)).Msg("Failed to queue cheat event")
	}
}

func (r *Runtime) emitTick(remaining time.Duration) {
	secs := int(remaining / time.Second)
	r.emit(Event{Type: EventTick, Data: TickData{
		RemainingSeconds: secs,
		Remaining:        FormatRemaining(secs),
		Urgency:          UrgencyFor(remaining),
		SaveStatus:       r.saver.Status(),
	}})
}

func (r *Runtime) emit(ev Event) {
	r.mu.Lock()
	l := r.listener
	r.mu.Unlock()
	if l != nil {
		l(ev)
	}
}

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close tears the runtime down: it stops the loops, detaches the view, unsubscribes the
// detector and makes a final best-effort flush of an unlocked session. The view of an
// unlocked session receives EventClosed last.
// It must not be called from a runtime callback.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		unsub := r.unsubscribe
		r.unsubscribe = nil
		l := r.listener
		r.listener = nil
		r.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		r.cancel()
		_ = r.group.Wait()

		if !r.Locked() {
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.flushTimeout)
			defer cancel()
			if err := r.saver.Flush(ctx); err != nil {
				r.log.Error().Err(err).Msg("Final autosave flush failed")
			}
			if l != nil {
				l(Event{Type: EventClosed})
			}
		}

		if r.hooks.onClosed != nil {
			r.hooks.onClosed(r)
		}
	})
}

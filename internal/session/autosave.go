package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"k8s.io/utils/clock"
)

// SaveStatus is the observable autosave state. It never drives control flow.
type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveError  SaveStatus = "error"
)

// AnswerWriter persists answers keyed by (session, question).
type AnswerWriter interface {
	UpsertAnswers(ctx context.Context, sessionID uuid.UUID, answers []model.Answer) error
}

// Autosaver periodically writes the answer book to the store.
type Autosaver struct {
	clock     clock.WithTicker
	store     AnswerWriter
	book      *AnswerBook
	sessionID uuid.UUID
	interval  time.Duration
	display   time.Duration
	log       zerolog.Logger
	onStatus  func(SaveStatus)

	flushMu sync.Mutex // serializes writes

	mu           sync.Mutex
	status       SaveStatus
	savedAt      time.Time
	savedVersion uint64
	hasSaved     bool
	lastErr      error
}

// NewAutosaver creates an Autosaver. The book's initial content counts as already saved.
func NewAutosaver(clk clock.WithTicker, store AnswerWriter, book *AnswerBook, interval, display time.Duration, log zerolog.Logger, onStatus func(SaveStatus)) *Autosaver {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	_, version := book.Snapshot()
	return &Autosaver{
		clock:        clk,
		store:        store,
		book:         book,
		sessionID:    book.sessionID,
		interval:     interval,
		display:      display,
		log:          log,
		onStatus:     onStatus,
		status:       SaveIdle,
		savedVersion: version,
		hasSaved:     true,
	}
}

// Flush writes the current answers now. Clean books are not rewritten.
// A failure is returned as a PersistFailure and leaves the book dirty for the next attempt.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	answers, version := a.book.Snapshot()

	a.mu.Lock()
	clean := a.hasSaved && version == a.savedVersion
	a.mu.Unlock()
	if clean {
		return nil
	}

	a.setStatus(SaveSaving, nil)
	if err := a.store.UpsertAnswers(ctx, a.sessionID, answers); err != nil {
		metrics.AutosaveFailures.Inc()
		a.setStatus(SaveError, err)
		return newError(PersistFailure, "autosave", err)
	}

	a.mu.Lock()
	a.savedVersion = version
	a.hasSaved = true
	a.savedAt = a.clock.Now()
	a.mu.Unlock()
	a.setStatus(SaveSaved, nil)
	return nil
}

// Run flushes on every interval until ctx is done. Tick failures are logged and retried
// on the next tick; they never stop the loop.
func (a *Autosaver) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := a.Flush(ctx); err != nil && ctx.Err() == nil {
				a.log.Warn().Err(err).Msg("Autosave tick failed, retrying next tick")
			}
		}
	}
}

// Status returns the display status. Saved decays to idle after the display window.
func (a *Autosaver) Status() SaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == SaveSaved && a.clock.Now().Sub(a.savedAt) >= a.display {
		return SaveIdle
	}
	return a.status
}

// LastError returns the error of the latest failed write, nil after a success.
func (a *Autosaver) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Dirty reports whether the book has changes not yet written.
func (a *Autosaver) Dirty() bool {
	_, version := a.book.Snapshot()
	a.mu.Lock()
	defer a.mu.Unlock()
	return version != a.savedVersion
}

func (a *Autosaver) setStatus(s SaveStatus, err error) {
	a.mu.Lock()
	a.status = s
	a.lastErr = err
	a.mu.Unlock()
	if a.onStatus != nil {
		a.onStatus(s)
	}
}

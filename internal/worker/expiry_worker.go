package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// Sweeper locks sessions whose time ran out while no runtime held them.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ExpiryWorker runs the sweep on a fixed interval.
type ExpiryWorker struct {
	sweeper  Sweeper
	clock    clock.WithTicker
	interval time.Duration
	log      zerolog.Logger
}

func NewExpiryWorker(sweeper Sweeper, clk clock.WithTicker, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		sweeper:  sweeper,
		clock:    clk,
		interval: interval,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start sweeps once immediately, then every interval until ctx is done.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	t := w.clock.NewTicker(w.interval)
	defer t.Stop()

	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	n, err := w.sweeper.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Expiry sweep failed")
		}
		return
	}
	if n > 0 {
		w.log.Info().Int("locked", n).Msg("Locked expired sessions")
	}
}

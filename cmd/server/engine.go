package main

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/session"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

// engineOptions maps the environment configuration onto the session engine.
func engineOptions(cfg config.EngineConfig, clk clock.WithTicker) session.Options {
	mode := session.CountEpisodes
	if cfg.WarningCountMode == string(session.CountRaw) {
		mode = session.CountRaw
	}

	steps := cfg.SubmitRetrySteps
	if steps <= 0 {
		steps = 6
	}

	return session.Options{
		Clock:            clk,
		TimerTick:        cfg.TimerTick,
		AutosaveInterval: cfg.AutosaveInterval,
		SavedDisplay:     cfg.SavedDisplay,
		FocusDebounce:    cfg.FocusDebounce,
		CountMode:        mode,
		SubmitRetry: wait.Backoff{
			Duration: 500 * time.Millisecond,
			Factor:   2,
			Jitter:   0.1,
			Steps:    steps,
			Cap:      30 * time.Second,
		},
	}
}

package main

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stretchr/testify/assert"
	testingclock "k8s.io/utils/clock/testing"
)

func TestEngineOptions(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	cfg := config.EngineConfig{
		TimerTick:        time.Second,
		AutosaveInterval: 10 * time.Second,
		SavedDisplay:     2 * time.Second,
		FocusDebounce:    time.Second,
		WarningCountMode: "raw",
		SubmitRetrySteps: 3,
	}

	opts := engineOptions(cfg, clk)

	assert.Equal(t, session.CountRaw, opts.CountMode)
	assert.Equal(t, 10*time.Second, opts.AutosaveInterval)
	assert.Equal(t, 3, opts.SubmitRetry.Steps)
	assert.Equal(t, 30*time.Second, opts.SubmitRetry.Cap)
	assert.Same(t, clk, opts.Clock)
}

func TestEngineOptionsDefaults(t *testing.T) {
	opts := engineOptions(config.EngineConfig{WarningCountMode: "episodes"}, nil)

	assert.Equal(t, session.CountEpisodes, opts.CountMode)
	assert.Equal(t, 6, opts.SubmitRetry.Steps)
	assert.Equal(t, 500*time.Millisecond, opts.SubmitRetry.Duration)
}

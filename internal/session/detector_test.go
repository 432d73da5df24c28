package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type hookLog struct {
	warnings []WarningState
	maxFired int
}

func (h *hookLog) hooks() DetectorHooks {
	return DetectorHooks{
		OnWarning:     func(ws WarningState) { h.warnings = append(h.warnings, ws) },
		OnMaxWarnings: func(WarningState) { h.maxFired++ },
	}
}

func newTestDetector(clk *testingclock.FakeClock, max int, mode CountMode, h *hookLog) *Detector {
	return NewDetector(clk, DetectorConfig{Enabled: true, MaxWarnings: max, Mode: mode, Debounce: time.Second}, 0, h.hooks())
}

func TestDetectorIgnoresSignalsWithoutSubscription(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}
	d := newTestDetector(clk, 3, CountEpisodes, h)

	v := d.Report(SignalWindowBlur)
	assert.True(t, v.Ignored)
	assert.Equal(t, 0, d.State().Count)

	unsubscribe := d.Subscribe()
	assert.True(t, d.Report(SignalWindowBlur).Counted)
	unsubscribe()
	unsubscribe()

	clk.Step(5 * time.Second)
	assert.True(t, d.Report(SignalWindowBlur).Ignored)
	assert.Equal(t, 1, d.State().Count)
}

func TestDetectorDisabled(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}
	d := NewDetector(clk, DetectorConfig{Enabled: false, MaxWarnings: 1}, 0, h.hooks())
	d.Subscribe()

	assert.True(t, d.Report(SignalVisibilityHidden).Ignored)
	assert.False(t, d.Report(SignalCopy).Suppress)
	assert.Empty(t, d.Suppressed())
	assert.Empty(t, h.warnings)
}

func TestDetectorMergesOneTabSwitch(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}
	d := newTestDetector(clk, 5, CountEpisodes, h)
	d.Subscribe()

	assert.True(t, d.Report(SignalWindowBlur).Counted)
	clk.Step(20 * time.Millisecond)
	v := d.Report(SignalVisibilityHidden)
	assert.False(t, v.Counted)
	assert.False(t, v.Ignored)
	assert.Equal(t, 1, d.State().Count)

	d.Report(SignalFocusRestored)
	clk.Step(100 * time.Millisecond)
	assert.True(t, d.Report(SignalWindowBlur).Counted)
	assert.Equal(t, 2, d.State().Count)
	assert.Len(t, h.warnings, 2)
}

func TestDetectorRawModeCountsEverySignal(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}
	d := newTestDetector(clk, 5, CountRaw, h)
	d.Subscribe()

	d.Report(SignalWindowBlur)
	d.Report(SignalVisibilityHidden)
	assert.Equal(t, 2, d.State().Count)
}

func TestDetectorMaxWarningsFiresOnce(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}
	d := newTestDetector(clk, 2, CountEpisodes, h)
	d.Subscribe()

	prev := 0
	for i := 0; i < 3; i++ {
		v := d.Report(SignalVisibilityHidden)
		d.Report(SignalFocusRestored)
		clk.Step(2 * time.Second)

		assert.GreaterOrEqual(t, v.State.Count, prev)
		prev = v.State.Count
		if i == 0 {
			assert.Equal(t, 0, h.maxFired, "must not fire before the limit")
		}
		if i == 1 {
			assert.Equal(t, 1, h.maxFired, "must fire when the limit is first reached")
		}
		if i == 2 {
			assert.True(t, v.Ignored)
		}
	}

	assert.Equal(t, 2, d.State().Count)
	assert.Equal(t, 1, h.maxFired)
	assert.True(t, d.LimitReached())
}

func TestDetectorZeroMaxNeverLocks(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}
	d := newTestDetector(clk, 0, CountEpisodes, h)
	d.Subscribe()

	for i := 0; i < 10; i++ {
		d.Report(SignalWindowBlur)
		d.Report(SignalFocusRestored)
		clk.Step(2 * time.Second)
	}
	assert.Equal(t, 10, d.State().Count)
	assert.Equal(t, 0, h.maxFired)
	assert.False(t, d.LimitReached())
}

func TestDetectorRestoresCount(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}

	d := NewDetector(clk, DetectorConfig{Enabled: true, MaxWarnings: 3, Debounce: time.Second}, 2, h.hooks())
	d.Subscribe()
	assert.Equal(t, 2, d.State().Count)
	d.Report(SignalWindowBlur)
	assert.Equal(t, 1, h.maxFired)

	atLimit := NewDetector(clk, DetectorConfig{Enabled: true, MaxWarnings: 3, Debounce: time.Second}, 3, h.hooks())
	assert.True(t, atLimit.LimitReached())
}

func TestDetectorSideChannelSuppressed(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}
	d := newTestDetector(clk, 3, CountEpisodes, h)
	d.Subscribe()

	for _, sig := range SuppressedSignals {
		v := d.Report(sig)
		assert.True(t, v.Suppress, string(sig))
		assert.False(t, v.Counted)
	}
	assert.Equal(t, 0, d.State().Count)
	assert.True(t, d.Report(Signal("devtools")).Ignored)
}

func TestDetectorAcknowledge(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	h := &hookLog{}
	d := newTestDetector(clk, 3, CountEpisodes, h)
	d.Subscribe()

	v := d.Report(SignalWindowBlur)
	require.True(t, v.State.ShowModalNow)
	assert.Equal(t, epoch, v.State.LastAt)

	ws := d.Acknowledge()
	assert.False(t, ws.ShowModalNow)
	assert.Equal(t, 1, ws.Count)
}

package session

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Signal is a browser event forwarded by the exam view.
type Signal string

const (
	SignalVisibilityHidden Signal = "visibility_hidden"
	SignalWindowBlur       Signal = "window_blur"
	SignalFocusRestored    Signal = "focus_restored"

	SignalContextMenu Signal = "context_menu"
	SignalSelectStart Signal = "select_start"
	SignalCopy        Signal = "copy"
	SignalCut         Signal = "cut"
	SignalPaste       Signal = "paste"
)

// SuppressedSignals are the side-channel actions whose default the view must cancel
// while the detector is enabled. Client-side suppression is a deterrent only:
// anyone controlling the browser can bypass it, so nothing here is authoritative.
var SuppressedSignals = []Signal{SignalContextMenu, SignalSelectStart, SignalCopy, SignalCut, SignalPaste}

func (s Signal) focusLoss() bool {
	return s == SignalVisibilityHidden || s == SignalWindowBlur
}

func (s Signal) sideChannel() bool {
	for _, sc := range SuppressedSignals {
		if s == sc {
			return true
		}
	}
	return false
}

// Known reports whether s is a signal the detector understands.
func (s Signal) Known() bool {
	return s.focusLoss() || s == SignalFocusRestored || s.sideChannel()
}

// CountMode selects how focus-loss signals become warnings.
type CountMode string

const (
	// CountEpisodes merges the blur and visibility signals of one tab switch into one warning.
	CountEpisodes CountMode = "episodes"
	// CountRaw counts every focus-loss signal.
	CountRaw CountMode = "raw"
)

// DetectorConfig configures a Detector.
type DetectorConfig struct {
	Enabled bool
	// MaxWarnings is the lockout threshold. Zero disables the lockout.
	MaxWarnings int
	Mode        CountMode
	Debounce    time.Duration
}

// WarningState is the view-facing warning counter.
type WarningState struct {
	Count        int       `json:"count"`
	Max          int       `json:"max"`
	ShowModalNow bool      `json:"show_modal_now"`
	LastAt       time.Time `json:"last_at"`
}

// Verdict is the detector's answer to one reported signal.
type Verdict struct {
	Signal Signal
	// Counted is true when the signal raised the warning counter.
	Counted bool
	// Suppress tells the view to cancel the default browser action.
	Suppress bool
	// Ignored is true when the detector is disabled, unsubscribed, or already at the limit.
	Ignored bool
	State   WarningState
}

// DetectorHooks are invoked outside the detector lock.
type DetectorHooks struct {
	OnWarning     func(WarningState)
	OnMaxWarnings func(WarningState)
}

// Detector turns focus-loss signals into warnings and fires a one-time lockout signal.
type Detector struct {
	mu    sync.Mutex
	clock clock.PassiveClock
	cfg   DetectorConfig
	hooks DetectorHooks

	count        int
	lastAt       time.Time
	showModal    bool
	inEpisode    bool
	episodeStart time.Time
	maxFired     bool
	subscribed   bool
}

// NewDetector creates a Detector starting from an already persisted warning count.
func NewDetector(clk clock.PassiveClock, cfg DetectorConfig, initialCount int, hooks DetectorHooks) *Detector {
	if cfg.Mode == "" {
		cfg.Mode = CountEpisodes
	}
	if initialCount < 0 {
		initialCount = 0
	}
	d := &Detector{
		clock: clk,
		cfg:   cfg,
		hooks: hooks,
		count: initialCount,
	}
	if d.limitReached() {
		d.maxFired = true
	}
	return d
}

// Enabled reports whether the exam uses anti-cheat monitoring.
func (d *Detector) Enabled() bool {
	return d.cfg.Enabled
}

// Subscribe starts accepting signals. The returned func stops it and may be called repeatedly.
// A disabled detector never subscribes.
func (d *Detector) Subscribe() (unsubscribe func()) {
	if !d.cfg.Enabled {
		return func() {}
	}
	d.mu.Lock()
	d.subscribed = true
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.subscribed = false
			d.inEpisode = false
			d.mu.Unlock()
		})
	}
}

// Suppressed lists the actions the view should block, empty when disabled.
func (d *Detector) Suppressed() []Signal {
	if !d.cfg.Enabled {
		return nil
	}
	return SuppressedSignals
}

// Report processes one signal from the view.
func (d *Detector) Report(sig Signal) Verdict {
	d.mu.Lock()

	v := Verdict{Signal: sig}
	if !d.cfg.Enabled || !d.subscribed {
		v.Ignored = true
		v.State = d.stateLocked()
		d.mu.Unlock()
		return v
	}

	switch {
	case sig.sideChannel():
		v.Suppress = true
	case sig == SignalFocusRestored:
		d.inEpisode = false
	case sig.focusLoss():
		v.Counted, v.Ignored = d.countLocked()
	default:
		v.Ignored = true
	}

	v.State = d.stateLocked()
	fireMax := v.Counted && d.limitReached() && !d.maxFired
	if fireMax {
		d.maxFired = true
	}
	d.mu.Unlock()

	if v.Counted && d.hooks.OnWarning != nil {
		d.hooks.OnWarning(v.State)
	}
	if fireMax && d.hooks.OnMaxWarnings != nil {
		d.hooks.OnMaxWarnings(v.State)
	}
	return v
}

// countLocked applies one focus-loss signal. Caller holds d.mu.
func (d *Detector) countLocked() (counted, ignored bool) {
	if d.maxFired {
		return false, true
	}

	now := d.clock.Now()
	if d.cfg.Mode == CountEpisodes && d.inEpisode && now.Sub(d.episodeStart) < d.cfg.Debounce {
		return false, false
	}

	d.inEpisode = true
	d.episodeStart = now
	d.count++
	d.lastAt = now
	d.showModal = true
	return true, false
}

// Acknowledge clears the pending warning modal.
func (d *Detector) Acknowledge() WarningState {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.showModal = false
	return d.stateLocked()
}

// State returns the current warning counter.
func (d *Detector) State() WarningState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// LimitReached reports whether the lockout signal has fired or was already due on resume.
func (d *Detector) LimitReached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxFired
}

func (d *Detector) limitReached() bool {
	return d.cfg.Enabled && d.cfg.MaxWarnings > 0 && d.count >= d.cfg.MaxWarnings
}

func (d *Detector) stateLocked() WarningState {
	return WarningState{
		Count:        d.count,
		Max:          d.cfg.MaxWarnings,
		ShowModalNow: d.showModal,
		LastAt:       d.lastAt,
	}
}

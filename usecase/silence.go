package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SilenceDetector decides when the user has finished speaking. It is a
// cascading timer pair: a short debounce restarted on every hypothesis
// update, then a user-visible countdown that only reaches expiry if no
// meaningful continuation arrives. At most one debounce/countdown pair is
// active; starting a new one always cancels the previous.
//
// Stale timers are the classic source of duplicate-send bugs here, so every
// timer callback carries a generation number and is ignored if the detector
// moved on before it fired.
type SilenceDetector struct {
	cfg    Config
	logger *zap.Logger

	// onElapsed receives the armed transcript when the countdown expires
	onElapsed func(text string)

	// countdown visibility hooks for the UI layer
	onCountdownStarted func(d time.Duration)
	onCountdownStopped func()

	mu        sync.Mutex
	debounce  *time.Timer
	countdown *time.Timer
	deadline  time.Time
	armedText string
	gen       uint64
}

func NewSilenceDetector(cfg Config, logger *zap.Logger, onElapsed func(text string)) *SilenceDetector {
	return &SilenceDetector{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		onElapsed: onElapsed,
	}
}

// SetCountdownHooks registers the countdown display callbacks
func (d *SilenceDetector) SetCountdownHooks(started func(time.Duration), stopped func()) {
	d.onCountdownStarted = started
	d.onCountdownStopped = stopped
}

// Observe feeds a transcript update into the timer chain. Updates below the
// minimum word gate are ignored entirely. A mid-countdown update only cancels
// the countdown when it is a meaningfully longer continuation of the armed
// text; shorter or equal-length revisions are treated as recognizer noise.
func (d *SilenceDetector) Observe(text string, words int, isFinal bool) {
	if words < d.cfg.MinDispatchWords {
		return
	}

	d.mu.Lock()
	cancelled := false
	if d.countdown != nil {
		if len(text) <= len(d.armedText)+d.cfg.ContinuationSlackChars {
			d.mu.Unlock()
			return
		}
		d.stopCountdownLocked()
		cancelled = true
		d.logger.Debug("countdown cancelled, user still talking",
			zap.Int("chars", len(text)))
	}
	d.startDebounceLocked(text, isFinal)
	notify := d.onCountdownStopped
	d.mu.Unlock()

	// a cancelled countdown must disappear from the UI
	if cancelled && notify != nil {
		notify()
	}
}

// Cancel stops both timers. Safe to call at any time, including when nothing
// is running.
func (d *SilenceDetector) Cancel() {
	d.mu.Lock()
	d.gen++
	hadCountdown := d.countdown != nil
	if d.debounce != nil {
		d.debounce.Stop()
		d.debounce = nil
	}
	d.stopCountdownLocked()
	notify := d.onCountdownStopped
	d.mu.Unlock()

	if hadCountdown && notify != nil {
		notify()
	}
}

// Remaining reports the time left on an active countdown, or zero
func (d *SilenceDetector) Remaining() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.countdown == nil {
		return 0
	}
	if rem := time.Until(d.deadline); rem > 0 {
		return rem
	}
	return 0
}

// CountdownActive reports whether the user-visible countdown is running
func (d *SilenceDetector) CountdownActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.countdown != nil
}

func (d *SilenceDetector) startDebounceLocked(text string, isFinal bool) {
	if d.debounce != nil {
		d.debounce.Stop()
	}
	d.armedText = text
	d.gen++
	gen := d.gen
	wait := d.cfg.DebounceInterim
	if isFinal {
		wait = d.cfg.DebounceFinal
	}
	d.debounce = time.AfterFunc(wait, func() { d.debounceElapsed(gen) })
}

func (d *SilenceDetector) debounceElapsed(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.debounce = nil
	d.deadline = time.Now().Add(d.cfg.Countdown)
	d.countdown = time.AfterFunc(d.cfg.Countdown, func() { d.countdownElapsed(gen) })
	notify := d.onCountdownStarted
	d.mu.Unlock()

	if notify != nil {
		notify(d.cfg.Countdown)
	}
}

func (d *SilenceDetector) countdownElapsed(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.countdown == nil {
		d.mu.Unlock()
		return
	}
	d.countdown = nil
	text := d.armedText
	notify := d.onCountdownStopped
	d.mu.Unlock()

	if notify != nil {
		notify()
	}
	if d.onElapsed != nil {
		d.onElapsed(text)
	}
}

func (d *SilenceDetector) stopCountdownLocked() {
	if d.countdown != nil {
		d.countdown.Stop()
		d.countdown = nil
	}
}

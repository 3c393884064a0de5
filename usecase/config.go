package usecase

import (
	"os"
	"strconv"
	"time"
)

// Config holds the tuning constants of the hands-free loop. The durations
// here are deliberately configuration, not contract: the silence thresholds
// and prefetch limit drifted across revisions of the original behavior and
// deployments are expected to tune them.
type Config struct {
	// MinDispatchWords is the minimum transcript word count before any
	// auto-send logic engages.
	MinDispatchWords int

	// DebounceInterim is the quiet period required after an interim
	// hypothesis update before the countdown starts.
	DebounceInterim time.Duration

	// DebounceFinal is the (shorter) quiet period after a hypothesis the
	// provider marked final.
	DebounceFinal time.Duration

	// Countdown is the user-visible auto-send countdown duration.
	Countdown time.Duration

	// ContinuationSlackChars is how many characters longer a mid-countdown
	// update must be before it counts as the user still talking and cancels
	// the countdown.
	ContinuationSlackChars int

	// DispatchSafetyReset bounds how long the send-in-flight flag can stay
	// set if the downstream pipeline never reports completion.
	DispatchSafetyReset time.Duration

	// CaptureBusyRetryDelay is the fixed delay before the single retry of a
	// capture start that failed with a provider busy error.
	CaptureBusyRetryDelay time.Duration

	// SettleDelay is the pause before starting capture, letting any
	// just-finished playback fully release the audio device.
	SettleDelay time.Duration

	// InactivityTimeout force-exits hands-free mode after this long without
	// capture or speaking activity.
	InactivityTimeout time.Duration

	// FirstChunkTimeout abandons the streaming path if no chunk arrives
	// within this window.
	FirstChunkTimeout time.Duration

	// TurnTimeout abandons the streaming path if the whole turn exceeds it.
	TurnTimeout time.Duration

	// ChunkMaxChars bounds how much unspoken streaming text may accumulate
	// before the chunker cuts at a word boundary instead of waiting for
	// sentence-terminal punctuation.
	ChunkMaxChars int

	// PrefetchConcurrency caps simultaneous synthesis requests.
	PrefetchConcurrency int

	// SynthRetryBase is the first backoff delay after a rate-limited
	// synthesis request; subsequent delays double.
	SynthRetryBase time.Duration

	// SynthMaxAttempts caps synthesis attempts per chunk, the initial
	// request included.
	SynthMaxAttempts int
}

// DefaultConfig returns the tuned defaults
func DefaultConfig() Config {
	return Config{
		MinDispatchWords:       2,
		DebounceInterim:        250 * time.Millisecond,
		DebounceFinal:          120 * time.Millisecond,
		Countdown:              1500 * time.Millisecond,
		ContinuationSlackChars: 3,
		DispatchSafetyReset:    5 * time.Second,
		CaptureBusyRetryDelay:  300 * time.Millisecond,
		SettleDelay:            350 * time.Millisecond,
		InactivityTimeout:      10 * time.Minute,
		FirstChunkTimeout:      10 * time.Second,
		TurnTimeout:            30 * time.Second,
		ChunkMaxChars:          100,
		PrefetchConcurrency:    2,
		SynthRetryBase:         time.Second,
		SynthMaxAttempts:       3,
	}
}

// NewConfigFromEnv returns the defaults with any HANDSFREE_* environment
// overrides applied. Unset or malformed values keep the default.
func NewConfigFromEnv() Config {
	c := DefaultConfig()
	envInt("HANDSFREE_MIN_DISPATCH_WORDS", &c.MinDispatchWords)
	envDuration("HANDSFREE_DEBOUNCE_INTERIM", &c.DebounceInterim)
	envDuration("HANDSFREE_DEBOUNCE_FINAL", &c.DebounceFinal)
	envDuration("HANDSFREE_COUNTDOWN", &c.Countdown)
	envDuration("HANDSFREE_SETTLE_DELAY", &c.SettleDelay)
	envDuration("HANDSFREE_INACTIVITY_TIMEOUT", &c.InactivityTimeout)
	envDuration("HANDSFREE_FIRST_CHUNK_TIMEOUT", &c.FirstChunkTimeout)
	envDuration("HANDSFREE_TURN_TIMEOUT", &c.TurnTimeout)
	envInt("HANDSFREE_CHUNK_MAX_CHARS", &c.ChunkMaxChars)
	envInt("HANDSFREE_PREFETCH_CONCURRENCY", &c.PrefetchConcurrency)
	return c
}

func envInt(key string, dst *int) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			*dst = v
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			*dst = v
		}
	}
}

// withDefaults fills zero-valued fields so partially populated configs
// (common in tests) behave sensibly.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinDispatchWords == 0 {
		c.MinDispatchWords = d.MinDispatchWords
	}
	if c.DebounceInterim == 0 {
		c.DebounceInterim = d.DebounceInterim
	}
	if c.DebounceFinal == 0 {
		c.DebounceFinal = d.DebounceFinal
	}
	if c.Countdown == 0 {
		c.Countdown = d.Countdown
	}
	if c.ContinuationSlackChars == 0 {
		c.ContinuationSlackChars = d.ContinuationSlackChars
	}
	if c.DispatchSafetyReset == 0 {
		c.DispatchSafetyReset = d.DispatchSafetyReset
	}
	if c.CaptureBusyRetryDelay == 0 {
		c.CaptureBusyRetryDelay = d.CaptureBusyRetryDelay
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.InactivityTimeout == 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.FirstChunkTimeout == 0 {
		c.FirstChunkTimeout = d.FirstChunkTimeout
	}
	if c.TurnTimeout == 0 {
		c.TurnTimeout = d.TurnTimeout
	}
	if c.ChunkMaxChars == 0 {
		c.ChunkMaxChars = d.ChunkMaxChars
	}
	if c.PrefetchConcurrency == 0 {
		c.PrefetchConcurrency = d.PrefetchConcurrency
	}
	if c.SynthRetryBase == 0 {
		c.SynthRetryBase = d.SynthRetryBase
	}
	if c.SynthMaxAttempts == 0 {
		c.SynthMaxAttempts = d.SynthMaxAttempts
	}
	return c
}

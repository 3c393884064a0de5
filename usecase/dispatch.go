package usecase

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSendInFlight is returned when a dispatch is attempted while an
// earlier turn is still being processed.
var ErrSendInFlight = errors.New("a turn is already in flight")

// DispatchGuard enforces at-most-once dispatch of a captured utterance.
// Multiple code paths can race to send the same transcript (countdown
// elapse, capture session end, manual send) and only one may win.
type DispatchGuard struct {
	mu       sync.Mutex
	inFlight bool
	lastSent string
	reset    *time.Timer
	gen      uint64

	cfg    Config
	logger *zap.Logger
}

func NewDispatchGuard(cfg Config, logger *zap.Logger) *DispatchGuard {
	return &DispatchGuard{
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// TryDispatch reports whether the caller won the right to send text.
// It rejects duplicates of the most recent dispatch and rejects any
// dispatch while one is in flight. On success a safety timer is armed
// so a dispatch whose completion signal is lost cannot wedge the guard
// forever.
func (g *DispatchGuard) TryDispatch(text string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		g.logger.Debug("dispatch rejected, in flight")
		return false
	}
	if text != "" && text == g.lastSent {
		g.logger.Debug("dispatch rejected, duplicate transcript")
		return false
	}

	g.inFlight = true
	g.lastSent = text
	g.gen++
	gen := g.gen

	if g.reset != nil {
		g.reset.Stop()
	}
	g.reset = time.AfterFunc(g.cfg.DispatchSafetyReset, func() {
		g.safetyReset(gen)
	})
	return true
}

// safetyReset clears only the in-flight flag. lastSent survives so a
// stuck turn cannot be re-sent as a duplicate by a late timer.
func (g *DispatchGuard) safetyReset(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen || !g.inFlight {
		return
	}
	g.inFlight = false
	g.logger.Warn("dispatch guard force-cleared after safety timeout")
}

// Clear releases the guard after a turn finishes or the session ends.
// Clearing lastSent as well lets the user legitimately repeat the same
// phrase on the next turn.
func (g *DispatchGuard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
	g.lastSent = ""
	g.gen++
	if g.reset != nil {
		g.reset.Stop()
		g.reset = nil
	}
}

func (g *DispatchGuard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

package usecase

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDispatchGuardExactlyOnce(t *testing.T) {
	g := NewDispatchGuard(DefaultConfig(), zap.NewNop())

	if !g.TryDispatch("clean the flat top") {
		t.Fatal("first dispatch must win")
	}
	if g.TryDispatch("clean the flat top") {
		t.Error("second dispatch of the same text must lose")
	}
	if g.TryDispatch("a different question") {
		t.Error("any dispatch while in flight must lose")
	}
	if !g.InFlight() {
		t.Error("guard should report in flight")
	}
}

func TestDispatchGuardClearAllowsRepeat(t *testing.T) {
	g := NewDispatchGuard(DefaultConfig(), zap.NewNop())

	if !g.TryDispatch("what temperature for fries") {
		t.Fatal("first dispatch must win")
	}
	g.Clear()
	if g.InFlight() {
		t.Error("guard should be idle after clear")
	}
	// the user may legitimately ask the same thing again next turn
	if !g.TryDispatch("what temperature for fries") {
		t.Error("repeat after clear must be allowed")
	}
}

func TestDispatchGuardSafetyReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DispatchSafetyReset = 30 * time.Millisecond
	g := NewDispatchGuard(cfg, zap.NewNop())

	if !g.TryDispatch("is the freezer door sealed") {
		t.Fatal("first dispatch must win")
	}
	time.Sleep(80 * time.Millisecond)

	if g.InFlight() {
		t.Error("safety timer should have cleared the in-flight flag")
	}
	// lastSent survives the safety reset so the wedged turn is not resent
	if g.TryDispatch("is the freezer door sealed") {
		t.Error("safety reset must not allow a duplicate of the stuck text")
	}
	if !g.TryDispatch("something new entirely") {
		t.Error("new text must dispatch after safety reset")
	}
}

func TestDispatchGuardStaleSafetyTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DispatchSafetyReset = 30 * time.Millisecond
	g := NewDispatchGuard(cfg, zap.NewNop())

	g.TryDispatch("first turn")
	g.Clear()
	if !g.TryDispatch("second turn") {
		t.Fatal("dispatch after clear must win")
	}

	// let the first turn's safety window pass; only the second turn's
	// own timer may clear it
	time.Sleep(15 * time.Millisecond)
	if !g.InFlight() {
		t.Error("stale safety timer must not clear a newer dispatch")
	}
}

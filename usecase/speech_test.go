package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// fakeSynth synthesizes text into its own bytes, with optional per-text
// delays and scripted errors.
type fakeSynth struct {
	mu     sync.Mutex
	delays map[string]time.Duration
	errs   map[string][]error
	calls  []string
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{
		delays: map[string]time.Duration{},
		errs:   map[string][]error{},
	}
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	delay := f.delays[text]
	var err error
	if q := f.errs[text]; len(q) > 0 {
		err = q[0]
		f.errs[text] = q[1:]
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func (f *fakeSynth) callCount(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == text {
			n++
		}
	}
	return n
}

// fakePlayer records played audio in arrival order
type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (f *fakePlayer) Play(ctx context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, string(audio))
	return nil
}

func (f *fakePlayer) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.played))
	copy(out, f.played)
	return out
}

func fastSpeechConfig() Config {
	cfg := DefaultConfig()
	cfg.PrefetchConcurrency = 2
	cfg.SynthRetryBase = 10 * time.Millisecond
	cfg.SynthMaxAttempts = 3
	cfg.ChunkMaxChars = 100
	return cfg
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSpeechPipelinePlaysInOrder(t *testing.T) {
	synth := newFakeSynth()
	// the first chunk synthesizes slowest; order must still hold
	synth.delays["First sentence."] = 60 * time.Millisecond
	synth.delays["Second one."] = 5 * time.Millisecond
	player := &fakePlayer{}
	p := NewSpeechPipeline(synth, nil, player, fastSpeechConfig(), zap.NewNop())

	drained := make(chan struct{}, 1)
	p.SetDrainedHook(func() {
		select {
		case drained <- struct{}{}:
		default:
		}
	})
	p.Start(context.Background())

	p.PushStreamText("First sentence. Second one. Third here. ")
	p.SpeakRemainder()

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never drained")
	}

	got := player.snapshot()
	want := []string{"First sentence.", "Second one.", "Third here."}
	if len(got) != len(want) {
		t.Fatalf("played %d items, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: played %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSpeechPipelineSentenceCutting(t *testing.T) {
	synth := newFakeSynth()
	player := &fakePlayer{}
	p := NewSpeechPipeline(synth, nil, player, fastSpeechConfig(), zap.NewNop())
	p.Start(context.Background())

	// partial sentence stays buffered until the remainder flush
	p.PushStreamText("Check the pilot light! Then open the gas")
	p.PushStreamText(" valve slowly.")
	p.SpeakRemainder()

	waitFor(t, func() bool { return !p.Speaking() }, "pipeline drain")

	got := player.snapshot()
	want := []string{"Check the pilot light!", "Then open the gas valve slowly."}
	if len(got) != len(want) || got[0] != want[0] || got[len(got)-1] != want[len(want)-1] {
		t.Errorf("played %v, want %v", got, want)
	}
}

func TestSpeechPipelineRateLimitBackoff(t *testing.T) {
	synth := newFakeSynth()
	synth.errs["Hold the door open."] = []error{
		repositories.ErrRateLimited,
		repositories.ErrRateLimited,
	}
	player := &fakePlayer{}
	p := NewSpeechPipeline(synth, nil, player, fastSpeechConfig(), zap.NewNop())
	p.Start(context.Background())

	p.PushFullMessage("Hold the door open.")

	waitFor(t, func() bool { return len(player.snapshot()) == 1 }, "playback after retries")

	if n := synth.callCount("Hold the door open."); n != 3 {
		t.Errorf("expected 3 synthesis attempts, got %d", n)
	}
	if got := player.snapshot(); got[0] != "Hold the door open." {
		t.Errorf("played wrong audio: %q", got[0])
	}
}

func TestSpeechPipelineFallbackProvider(t *testing.T) {
	cfg := fastSpeechConfig()
	cfg.SynthMaxAttempts = 2
	primary := newFakeSynth()
	primary.errs["Unplug it first."] = []error{
		repositories.ErrRateLimited,
		repositories.ErrRateLimited,
	}
	fallback := newFakeSynth()
	player := &fakePlayer{}
	p := NewSpeechPipeline(primary, fallback, player, cfg, zap.NewNop())
	p.Start(context.Background())

	p.PushFullMessage("Unplug it first.")

	waitFor(t, func() bool { return len(player.snapshot()) == 1 }, "fallback playback")

	if n := fallback.callCount("Unplug it first."); n != 1 {
		t.Errorf("fallback provider should be used once, got %d", n)
	}
}

func TestSpeechPipelineSkipsUnplayableItem(t *testing.T) {
	synth := newFakeSynth()
	// fails on prefetch and on the play-time retry, never rate limited
	synth.errs["Bad chunk here."] = []error{
		errors.New("boom"),
		errors.New("boom"),
	}
	player := &fakePlayer{}
	p := NewSpeechPipeline(synth, nil, player, fastSpeechConfig(), zap.NewNop())
	p.Start(context.Background())

	p.PushStreamText("Bad chunk here. Good chunk follows. ")
	p.SpeakRemainder()

	waitFor(t, func() bool { return !p.Speaking() }, "pipeline drain")

	got := player.snapshot()
	if len(got) != 1 || got[0] != "Good chunk follows." {
		t.Errorf("bad chunk should be skipped, played %v", got)
	}
}

func TestSpeechPipelineFailedHeadRetriesWithFallback(t *testing.T) {
	cfg := fastSpeechConfig()
	primary := newFakeSynth()
	// prefetch fails outright, then the play-time pass is rate limited
	// through every attempt
	primary.errs["Wipe the gasket dry."] = []error{
		errors.New("boom"),
		repositories.ErrRateLimited,
		repositories.ErrRateLimited,
		repositories.ErrRateLimited,
	}
	fallback := newFakeSynth()
	fallback.errs["Wipe the gasket dry."] = []error{errors.New("boom")}
	player := &fakePlayer{}
	p := NewSpeechPipeline(primary, fallback, player, cfg, zap.NewNop())
	p.Start(context.Background())

	p.PushFullMessage("Wipe the gasket dry.")

	waitFor(t, func() bool { return len(player.snapshot()) == 1 }, "fallback playback")

	// the play-time pass must back off on rate limits and reach the
	// fallback provider, not give up on the first error
	if n := primary.callCount("Wipe the gasket dry."); n != 4 {
		t.Errorf("expected 4 primary attempts across both passes, got %d", n)
	}
	if n := fallback.callCount("Wipe the gasket dry."); n != 2 {
		t.Errorf("expected 2 fallback attempts, got %d", n)
	}
	if got := player.snapshot(); got[0] != "Wipe the gasket dry." {
		t.Errorf("played wrong audio: %q", got[0])
	}
}

func TestSpeechPipelineStopDiscardsQueue(t *testing.T) {
	synth := newFakeSynth()
	synth.delays["Slow sentence one."] = 100 * time.Millisecond
	player := &fakePlayer{}
	p := NewSpeechPipeline(synth, nil, player, fastSpeechConfig(), zap.NewNop())
	p.Start(context.Background())

	p.PushStreamText("Slow sentence one. Never spoken two. ")
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	time.Sleep(200 * time.Millisecond)
	if got := player.snapshot(); len(got) != 0 {
		t.Errorf("nothing should play after stop, played %v", got)
	}
	if p.Speaking() {
		t.Error("pipeline should be idle after stop")
	}
}

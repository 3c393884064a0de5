package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// scriptedSource replies to known inputs with a fixed chunk sequence
type scriptedSource struct {
	mu        sync.Mutex
	replies   map[string][]string
	openErr   error
	streamErr error
	errAfter  int
	opens     int
	gens      int
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{replies: map[string][]string{}}
}

func (s *scriptedSource) setOpenErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// setStreamErr makes streams break with err after emitting the first
// after chunks of the scripted reply
func (s *scriptedSource) setStreamErr(err error, after int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamErr = err
	s.errAfter = after
}

func (s *scriptedSource) generateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens
}

func (s *scriptedSource) OpenStream(ctx context.Context, inputText string) (<-chan string, <-chan error, error) {
	s.mu.Lock()
	s.opens++
	chunks := s.replies[inputText]
	openErr := s.openErr
	streamErr := s.streamErr
	errAfter := s.errAfter
	s.mu.Unlock()
	if openErr != nil {
		return nil, nil, openErr
	}

	out := make(chan string, len(chunks))
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		for i, c := range chunks {
			if streamErr != nil && i == errAfter {
				errs <- streamErr
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- c:
			}
		}
	}()
	return out, errs, nil
}

func (s *scriptedSource) Generate(ctx context.Context, inputText string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens++
	return strings.Join(s.replies[inputText], ""), nil
}

// recordingSink captures everything the service reports to the UI
type recordingSink struct {
	mu        sync.Mutex
	states    []entities.HandsFreeState
	started   []entities.ConversationTurn
	chunks    []string
	completed []entities.ConversationTurn
	errored   []entities.ConversationTurn
	errCodes  []repositories.CaptureErrorCode
}

func (r *recordingSink) StateChanged(s entities.HandsFreeState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}
func (r *recordingSink) TranscriptUpdated(string, bool) {}
func (r *recordingSink) CountdownStarted(time.Duration) {}
func (r *recordingSink) CountdownStopped()              {}
func (r *recordingSink) TurnStarted(t entities.ConversationTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, t)
}
func (r *recordingSink) TurnChunk(_ string, chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}
func (r *recordingSink) TurnCompleted(t entities.ConversationTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, t)
}
func (r *recordingSink) TurnErrored(t entities.ConversationTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errored = append(r.errored, t)
}
func (r *recordingSink) CaptureError(code repositories.CaptureErrorCode, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errCodes = append(r.errCodes, code)
}

func (r *recordingSink) startedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

func (r *recordingSink) completedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}

func (r *recordingSink) sawState(want entities.HandsFreeState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == want {
			return true
		}
	}
	return false
}

func fastLoopConfig() Config {
	cfg := DefaultConfig()
	cfg.MinDispatchWords = 2
	cfg.DebounceInterim = 10 * time.Millisecond
	cfg.DebounceFinal = 5 * time.Millisecond
	cfg.Countdown = 20 * time.Millisecond
	cfg.ContinuationSlackChars = 3
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.CaptureBusyRetryDelay = 10 * time.Millisecond
	cfg.SynthRetryBase = 5 * time.Millisecond
	return cfg
}

type loopHarness struct {
	service  *HandsFreeService
	provider *fakeCaptureProvider
	source   *scriptedSource
	synth    *fakeSynth
	player   *fakePlayer
	sink     *recordingSink
}

func newLoopHarness(t *testing.T, cfg Config) *loopHarness {
	t.Helper()
	h := &loopHarness{
		provider: newFakeCaptureProvider(),
		source:   newScriptedSource(),
		synth:    newFakeSynth(),
		player:   &fakePlayer{},
		sink:     &recordingSink{},
	}
	h.service = NewHandsFreeService(HandsFreeDeps{
		Capture: h.provider,
		Source:  h.source,
		Synth:   h.synth,
		Player:  h.player,
		Sink:    h.sink,
	}, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go h.service.Run(ctx)
	t.Cleanup(cancel)
	t.Cleanup(h.service.Disable)
	return h
}

func (h *loopHarness) waitState(t *testing.T, want entities.HandsFreeState) {
	t.Helper()
	waitFor(t, func() bool { return h.service.State() == want }, "state "+string(want))
}

func TestHandsFreeFullLoop(t *testing.T) {
	h := newLoopHarness(t, fastLoopConfig())
	h.source.replies["how do I descale the coffee machine"] = []string{
		"Run the descale cycle. ", "Use the tablets from the kit.",
	}

	if err := h.service.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}
	h.waitState(t, entities.HandsFreeListening)

	h.provider.emitResult("how do I descale", false)
	h.provider.emitResult("how do I descale the coffee machine", false)

	// silence elapses, the turn dispatches and the reply streams
	waitFor(t, func() bool { return h.sink.completedCount() == 1 }, "turn completion")

	if !h.sink.sawState(entities.HandsFreeProcessing) {
		t.Error("loop never entered processing")
	}
	if !h.sink.sawState(entities.HandsFreeSpeaking) {
		t.Error("loop never entered speaking")
	}

	if n := h.sink.startedCount(); n != 1 {
		t.Fatalf("expected exactly one turn despite racing dispatch paths, got %d", n)
	}

	turns := h.service.Turns()
	if len(turns) != 1 {
		t.Fatalf("expected 1 recorded turn, got %d", len(turns))
	}
	want := "Run the descale cycle. Use the tablets from the kit."
	if turns[0].ResponseText != want {
		t.Errorf("reply text %q, want %q", turns[0].ResponseText, want)
	}
	if turns[0].Status != entities.TurnStatusComplete {
		t.Errorf("turn status %v, want complete", turns[0].Status)
	}

	// the reply is spoken and the loop cycles back to listening
	waitFor(t, func() bool { return len(h.player.snapshot()) >= 2 }, "spoken reply")
	h.waitState(t, entities.HandsFreeListening)
}

func TestHandsFreeExitCommand(t *testing.T) {
	h := newLoopHarness(t, fastLoopConfig())

	h.service.Enable(context.Background())
	h.waitState(t, entities.HandsFreeListening)

	h.provider.emitResult("end hands free", true)
	h.waitState(t, entities.HandsFreeIdle)

	if n := h.sink.startedCount(); n != 0 {
		t.Errorf("exit command must not dispatch a turn, got %d", n)
	}
}

func TestHandsFreeEnableIdempotent(t *testing.T) {
	h := newLoopHarness(t, fastLoopConfig())

	h.service.Enable(context.Background())
	h.waitState(t, entities.HandsFreeListening)
	if err := h.service.Enable(context.Background()); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	if h.service.State() != entities.HandsFreeListening {
		t.Error("re-enable must not disturb an active loop")
	}

	h.service.Disable()
	h.service.Disable()
	if h.service.State() != entities.HandsFreeIdle {
		t.Error("double disable must settle on idle")
	}
}

func TestHandsFreeInactivityTimeout(t *testing.T) {
	cfg := fastLoopConfig()
	cfg.InactivityTimeout = 80 * time.Millisecond
	h := newLoopHarness(t, cfg)

	h.service.Enable(context.Background())
	h.waitState(t, entities.HandsFreeListening)

	// nobody speaks; the loop shuts itself off
	h.waitState(t, entities.HandsFreeIdle)
}

func TestHandsFreeRetryErroredTurn(t *testing.T) {
	h := newLoopHarness(t, fastLoopConfig())
	h.source.replies["why is the hood fan rattling"] = []string{
		"Check the fan belt tension.",
	}
	h.source.setOpenErr(repositories.ErrInvalidRequest)

	h.service.Enable(context.Background())
	h.waitState(t, entities.HandsFreeListening)

	h.provider.emitResult("why is the hood fan rattling", false)
	waitFor(t, func() bool {
		h.sink.mu.Lock()
		defer h.sink.mu.Unlock()
		return len(h.sink.errored) == 1
	}, "errored turn")

	// backend recovers; replaying the failed input succeeds
	h.source.setOpenErr(nil)
	h.service.RetryTurn()
	waitFor(t, func() bool { return h.sink.completedCount() == 1 }, "retried turn completion")

	turns := h.service.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns after retry, got %d", len(turns))
	}
	if turns[1].ResponseText != "Check the fan belt tension." {
		t.Errorf("retry reply %q", turns[1].ResponseText)
	}
}

func TestHandsFreeStopSpeaking(t *testing.T) {
	h := newLoopHarness(t, fastLoopConfig())
	h.source.replies["reset the pos terminal"] = []string{
		"Hold the power button for ten seconds. ",
		"Wait for the screen to go dark. ",
		"Then power it back on.",
	}
	h.synth.delays["Hold the power button for ten seconds."] = 50 * time.Millisecond

	h.service.Enable(context.Background())
	h.waitState(t, entities.HandsFreeListening)

	h.provider.emitResult("reset the pos terminal", false)
	waitFor(t, func() bool { return h.service.State() == entities.HandsFreeSpeaking }, "speaking state")

	h.service.StopSpeaking()
	h.waitState(t, entities.HandsFreeListening)
}

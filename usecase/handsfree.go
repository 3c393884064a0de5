package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// HandsFreeDeps are the external providers the hands-free service is
// built over.
type HandsFreeDeps struct {
	Capture       repositories.CaptureProvider
	Source        repositories.ResponseSource
	Synth         repositories.SynthesisProvider
	SynthFallback repositories.SynthesisProvider
	Player        repositories.AudioPlayer
	Sink          repositories.EventSink
}

// HandsFreeService runs the hands-free conversation loop: listen for
// speech, detect when the user finished, send the transcript, stream
// and speak the reply, then listen again. It owns the authoritative
// state value and every timer in the loop.
type HandsFreeService struct {
	cfg    Config
	logger *zap.Logger
	sink   repositories.EventSink

	guard    *DispatchGuard
	acc      *TranscriptAccumulator
	detector *SilenceDetector
	capture  *CaptureController
	consumer *ResponseConsumer
	speech   *SpeechPipeline

	mu          sync.Mutex
	state       entities.HandsFreeState
	gen         uint64
	runCtx      context.Context
	runCancel   context.CancelFunc
	settle      *time.Timer
	inactivity  *time.Timer
	turns       []*entities.ConversationTurn
	currentTurn *entities.ConversationTurn
}

// NewHandsFreeService wires the full voice loop from its providers.
// The sink may be nil, in which case events are discarded.
func NewHandsFreeService(deps HandsFreeDeps, cfg Config, logger *zap.Logger) *HandsFreeService {
	cfg = cfg.withDefaults()
	sink := deps.Sink
	if sink == nil {
		sink = repositories.NopSink{}
	}

	s := &HandsFreeService{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		state:  entities.HandsFreeIdle,
	}

	s.guard = NewDispatchGuard(cfg, logger)
	s.acc = NewTranscriptAccumulator()
	s.detector = NewSilenceDetector(cfg, logger, s.dispatch)
	s.detector.SetCountdownHooks(sink.CountdownStarted, sink.CountdownStopped)

	s.speech = NewSpeechPipeline(deps.Synth, deps.SynthFallback, deps.Player, cfg, logger)
	s.speech.SetDrainedHook(s.onSpeechDrained)

	s.capture = NewCaptureController(
		deps.Capture, s.acc, s.detector, s.guard,
		s.Active,
		CaptureHooks{
			OnTranscript:       s.onTranscript,
			OnExitCommand:      s.onExitCommand,
			OnFallbackDispatch: s.dispatch,
			OnSessionEnd:       s.onCaptureSessionEnd,
			OnError:            s.onCaptureError,
		},
		cfg, logger,
	)

	s.consumer = NewResponseConsumer(
		deps.Source, s.speech, s.guard,
		s.Active,
		StreamHooks{
			OnFirstChunk: s.onFirstChunk,
			OnChunk:      s.onChunk,
			OnComplete:   s.onTurnComplete,
			OnError:      s.onTurnError,
		},
		cfg, logger,
	)

	return s
}

// Run consumes capture events for the lifetime of the service. It
// blocks until ctx ends and is meant to run on its own goroutine.
func (s *HandsFreeService) Run(ctx context.Context) {
	s.capture.Run(ctx)
}

// State returns the current hands-free state
func (s *HandsFreeService) State() entities.HandsFreeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether hands-free mode is on
func (s *HandsFreeService) Active() bool {
	return s.State().Active()
}

// Turns returns value copies of the turns exchanged since Enable,
// oldest first.
func (s *HandsFreeService) Turns() []entities.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.ConversationTurn, 0, len(s.turns))
	for _, t := range s.turns {
		out = append(out, *t)
	}
	return out
}

// Enable turns hands-free mode on. A short settle delay runs before
// the first capture starts so the user's tap and any UI sound do not
// bleed into the transcript. Enabling while already active is a no-op.
func (s *HandsFreeService) Enable(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Active() {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	s.turns = nil
	s.currentTurn = nil
	s.setStateLocked(entities.HandsFreeReady)
	s.armInactivityLocked(gen)
	s.settle = time.AfterFunc(s.cfg.SettleDelay, func() { s.startListening(gen) })
	s.mu.Unlock()

	s.speech.Start(runCtx)
	s.logger.Info("hands-free enabled")
	return nil
}

// Disable turns hands-free mode off, cancelling every timer, the
// capture session and any queued speech. Idempotent.
func (s *HandsFreeService) Disable() {
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return
	}
	s.gen++
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	if s.inactivity != nil {
		s.inactivity.Stop()
		s.inactivity = nil
	}
	if s.runCancel != nil {
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
	}
	s.currentTurn = nil
	s.setStateLocked(entities.HandsFreeIdle)
	s.mu.Unlock()

	s.detector.Cancel()
	s.speech.Stop()
	if err := s.capture.Stop(); err != nil {
		s.logger.Warn("capture stop on disable", zap.Error(err))
	}
	s.guard.Clear()
	s.logger.Info("hands-free disabled")
}

// FeedAudio forwards a microphone chunk to the active capture session
func (s *HandsFreeService) FeedAudio(chunk []byte) error {
	return s.capture.SendAudio(chunk)
}

// StopSpeaking discards queued speech and returns to listening. It has
// no effect outside the speaking state.
func (s *HandsFreeService) StopSpeaking() {
	s.mu.Lock()
	if s.state != entities.HandsFreeSpeaking {
		s.mu.Unlock()
		return
	}
	gen := s.gen
	runCtx := s.runCtx
	s.mu.Unlock()

	s.speech.Stop()
	if runCtx != nil {
		s.speech.Start(runCtx)
	}
	s.logger.Info("speech interrupted by user")
	s.scheduleListen(gen)
}

// RetryTurn replays the most recent errored turn as a new turn
func (s *HandsFreeService) RetryTurn() {
	s.mu.Lock()
	var input string
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Status == entities.TurnStatusErrored {
			input = s.turns[i].InputText
			break
		}
	}
	s.mu.Unlock()
	if input == "" {
		return
	}
	s.guard.Clear()
	s.dispatch(input)
}

// dispatch sends a transcript as a new turn. The dispatch guard makes
// this safe to call from every racing path: the silence countdown, a
// capture session ending with leftover text, and a manual retry.
func (s *HandsFreeService) dispatch(text string) {
	if !s.guard.TryDispatch(text) {
		return
	}

	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		s.guard.Clear()
		return
	}
	gen := s.gen
	runCtx := s.runCtx
	turn := entities.NewConversationTurn(text)
	s.turns = append(s.turns, turn)
	s.currentTurn = turn
	s.setStateLocked(entities.HandsFreeProcessing)
	s.touchInactivityLocked(gen)
	s.mu.Unlock()

	s.detector.Cancel()
	if err := s.capture.Stop(); err != nil {
		s.logger.Warn("capture stop before dispatch", zap.Error(err))
	}

	s.logger.Info("dispatching turn",
		zap.String("turn_id", turn.ID),
		zap.Int("input_chars", len(text)))
	s.sink.TurnStarted(*turn)

	go s.consumer.Run(runCtx, turn)
}

// startListening opens a capture session and moves to listening.
func (s *HandsFreeService) startListening(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.state.Active() {
		s.mu.Unlock()
		return
	}
	runCtx := s.runCtx
	s.mu.Unlock()

	err := s.capture.Start(runCtx)
	switch {
	case err == nil, err == ErrCaptureAlreadyRunning:
	case err == ErrSendInFlight:
		// a turn raced in between scheduling and starting; the turn's
		// completion will reschedule listening
		return
	default:
		s.logger.Error("could not start capture", zap.Error(err))
		s.sink.CaptureError(repositories.CaptureErrNetwork, err.Error())
		return
	}

	s.mu.Lock()
	if gen == s.gen && s.state.Active() {
		s.setStateLocked(entities.HandsFreeListening)
	}
	s.mu.Unlock()
}

// scheduleListen arms the settle delay before the next capture session
func (s *HandsFreeService) scheduleListen(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || !s.state.Active() {
		return
	}
	if s.settle != nil {
		s.settle.Stop()
	}
	s.settle = time.AfterFunc(s.cfg.SettleDelay, func() { s.startListening(gen) })
}

// maybeResumeListening cycles back to listening once the current turn
// is finalized and nothing is left to speak.
func (s *HandsFreeService) maybeResumeListening() {
	s.mu.Lock()
	gen := s.gen
	active := s.state.Active()
	turn := s.currentTurn
	s.mu.Unlock()

	if !active {
		return
	}
	if turn != nil && !turn.Finalized() {
		return
	}
	if s.speech.Speaking() {
		return
	}
	s.scheduleListen(gen)
}

func (s *HandsFreeService) setStateLocked(state entities.HandsFreeState) {
	if s.state == state {
		return
	}
	s.logger.Debug("state change",
		zap.String("from", string(s.state)),
		zap.String("to", string(state)))
	s.state = state
	s.sink.StateChanged(state)
}

// armInactivityLocked starts the inactivity timer; touch restarts it.
// When it fires the loop shuts itself off rather than listening to an
// empty room forever.
func (s *HandsFreeService) armInactivityLocked(gen uint64) {
	if s.inactivity != nil {
		s.inactivity.Stop()
	}
	s.inactivity = time.AfterFunc(s.cfg.InactivityTimeout, func() {
		s.mu.Lock()
		stale := gen != s.gen
		s.mu.Unlock()
		if stale {
			return
		}
		s.logger.Info("hands-free inactivity timeout")
		s.Disable()
	})
}

func (s *HandsFreeService) touchInactivityLocked(gen uint64) {
	if gen != s.gen || !s.state.Active() {
		return
	}
	s.armInactivityLocked(gen)
}

func (s *HandsFreeService) onTranscript(text string, isFinal bool) {
	s.mu.Lock()
	s.touchInactivityLocked(s.gen)
	s.mu.Unlock()
	s.sink.TranscriptUpdated(text, isFinal)
}

func (s *HandsFreeService) onExitCommand(text string) {
	s.logger.Info("leaving hands-free on voice command", zap.String("text", text))
	s.Disable()
}

func (s *HandsFreeService) onCaptureSessionEnd() {
	s.mu.Lock()
	gen := s.gen
	listening := s.state == entities.HandsFreeListening
	s.mu.Unlock()

	// the provider ended the session on its own with nothing worth
	// dispatching; reopen so the loop keeps listening
	if listening && !s.guard.InFlight() {
		s.scheduleListen(gen)
	}
}

func (s *HandsFreeService) onCaptureError(code repositories.CaptureErrorCode, detail string) {
	s.sink.CaptureError(code, detail)
	if code == repositories.CaptureErrPermissionDenied {
		s.logger.Warn("microphone permission denied, leaving hands-free")
		s.Disable()
	}
}

func (s *HandsFreeService) onFirstChunk(turn *entities.ConversationTurn) {
	s.mu.Lock()
	if s.state == entities.HandsFreeProcessing {
		s.setStateLocked(entities.HandsFreeSpeaking)
	}
	s.touchInactivityLocked(s.gen)
	s.mu.Unlock()
}

func (s *HandsFreeService) onChunk(turn *entities.ConversationTurn, chunk string) {
	s.sink.TurnChunk(turn.ID, chunk)
}

func (s *HandsFreeService) onTurnComplete(turn *entities.ConversationTurn) {
	s.sink.TurnCompleted(*turn)
	s.maybeResumeListening()
}

func (s *HandsFreeService) onTurnError(turn *entities.ConversationTurn, err error) {
	s.sink.TurnErrored(*turn)
	s.maybeResumeListening()
}

func (s *HandsFreeService) onSpeechDrained() {
	s.maybeResumeListening()
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// ErrCaptureAlreadyRunning is returned when Start is called while a
// capture session is active.
var ErrCaptureAlreadyRunning = errors.New("capture session already running")

// CaptureHooks are callbacks fired from the capture event loop. All of
// them are invoked without the controller lock held.
type CaptureHooks struct {
	// OnTranscript fires on every recognition result with the full
	// replacement hypothesis.
	OnTranscript func(text string, isFinal bool)
	// OnExitCommand fires when the transcript is a spoken exit command
	// while hands-free is active.
	OnExitCommand func(text string)
	// OnFallbackDispatch fires when the provider ends the session with
	// undispatched speech on the accumulator.
	OnFallbackDispatch func(text string)
	// OnSessionEnd fires after the provider reports session end and the
	// controller has settled back to not running.
	OnSessionEnd func()
	// OnError fires on a provider error event.
	OnError func(code repositories.CaptureErrorCode, detail string)
}

// CaptureController owns the single speech capture session and feeds
// recognition results into the transcript accumulator and silence
// detector. At most one session runs at a time.
type CaptureController struct {
	provider repositories.CaptureProvider
	acc      *TranscriptAccumulator
	detector *SilenceDetector
	guard    *DispatchGuard
	hooks    CaptureHooks

	// handsFreeActive gates silence detection and exit command
	// recognition. It reads the owning service's state.
	handsFreeActive func() bool

	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewCaptureController(
	provider repositories.CaptureProvider,
	acc *TranscriptAccumulator,
	detector *SilenceDetector,
	guard *DispatchGuard,
	handsFreeActive func() bool,
	hooks CaptureHooks,
	cfg Config,
	logger *zap.Logger,
) *CaptureController {
	return &CaptureController{
		provider:        provider,
		acc:             acc,
		detector:        detector,
		guard:           guard,
		handsFreeActive: handsFreeActive,
		hooks:           hooks,
		cfg:             cfg.withDefaults(),
		logger:          logger,
	}
}

// Start begins a new capture session. It refuses to start while a
// session is running or while a dispatched turn is still in flight,
// which prevents the assistant from hearing itself mid-response. A
// busy provider gets one delayed retry; any other error surfaces
// immediately.
func (c *CaptureController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrCaptureAlreadyRunning
	}
	if c.guard.InFlight() {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	c.mu.Unlock()

	// a fresh session starts with a clean slate: the user may repeat
	// the exact phrase they sent last turn
	c.guard.Clear()
	c.acc.Reset()
	c.detector.Cancel()

	err := c.provider.Start(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrCaptureBusy) {
		return err
	}
	c.logger.Warn("capture provider busy, retrying once",
		zap.Error(err),
		zap.Duration("delay", c.cfg.CaptureBusyRetryDelay))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.CaptureBusyRetryDelay):
	}
	return c.provider.Start(ctx)
}

// Stop asks the provider to end the session. It is safe to call when
// no session is running. The running flag flips only when the provider
// emits its session end event, so late results from a stopping session
// are still consumed.
func (c *CaptureController) Stop() error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return nil
	}
	return c.provider.Stop()
}

func (c *CaptureController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SendAudio forwards a microphone chunk to the provider while a
// session is running. Chunks arriving outside a session are dropped.
func (c *CaptureController) SendAudio(chunk []byte) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return nil
	}
	return c.provider.SendAudio(chunk)
}

// Run consumes the provider's event stream until the channel closes or
// ctx is cancelled. It is meant to run on its own goroutine for the
// lifetime of the service.
func (c *CaptureController) Run(ctx context.Context) {
	events := c.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handle(ev)
		}
	}
}

func (c *CaptureController) handle(ev repositories.CaptureEvent) {
	switch ev.Kind {
	case repositories.CaptureEventSessionStart:
		c.mu.Lock()
		c.running = true
		c.mu.Unlock()
		c.logger.Debug("capture session started")

	case repositories.CaptureEventResult:
		c.handleResult(ev)

	case repositories.CaptureEventSessionEnd:
		c.handleSessionEnd()

	case repositories.CaptureEventError:
		c.logger.Warn("capture error",
			zap.String("code", string(ev.Code)),
			zap.String("detail", ev.Detail))
		if c.hooks.OnError != nil {
			c.hooks.OnError(ev.Code, ev.Detail)
		}
	}
}

func (c *CaptureController) handleResult(ev repositories.CaptureEvent) {
	text := ev.Transcript
	words := c.acc.Update(text)

	if c.handsFreeActive() && entities.IsExitCommand(text) {
		c.logger.Info("exit command recognized", zap.String("text", text))
		c.detector.Cancel()
		if c.hooks.OnExitCommand != nil {
			c.hooks.OnExitCommand(text)
		}
		return
	}

	if c.hooks.OnTranscript != nil {
		c.hooks.OnTranscript(text, ev.IsFinal)
	}
	if c.handsFreeActive() {
		c.detector.Observe(text, words, ev.IsFinal)
	}
}

// handleSessionEnd dispatches leftover speech that the silence
// detector never got to fire on, typically when the provider cuts the
// session itself. The dispatch guard deduplicates against a countdown
// that already sent the same text.
func (c *CaptureController) handleSessionEnd() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.detector.Cancel()
	c.logger.Debug("capture session ended")

	text, words := c.acc.Snapshot()
	if c.handsFreeActive() && words >= c.cfg.MinDispatchWords && c.hooks.OnFallbackDispatch != nil {
		c.hooks.OnFallbackDispatch(text)
	}
	if c.hooks.OnSessionEnd != nil {
		c.hooks.OnSessionEnd()
	}
}

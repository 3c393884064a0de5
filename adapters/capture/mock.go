package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// MockCapture is a scripted recognizer for development without cloud
// credentials. Each session replays the configured hypothesis script
// with a delay between updates, then finalizes.
type MockCapture struct {
	logger *zap.Logger
	script []string
	delay  time.Duration
	events chan repositories.CaptureEvent

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

var _ repositories.CaptureProvider = (*MockCapture)(nil)

func NewMockCapture(script []string, delay time.Duration, logger *zap.Logger) *MockCapture {
	if delay == 0 {
		delay = 400 * time.Millisecond
	}
	return &MockCapture{
		logger: logger,
		script: script,
		delay:  delay,
		events: make(chan repositories.CaptureEvent, eventBuffer),
	}
}

func (m *MockCapture) Events() <-chan repositories.CaptureEvent {
	return m.events
}

func (m *MockCapture) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("capture session already open")
	}
	m.running = true
	m.stop = make(chan struct{})
	m.events <- repositories.CaptureEvent{Kind: repositories.CaptureEventSessionStart}
	go m.replay(ctx, m.stop)
	return nil
}

func (m *MockCapture) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stop)
	return nil
}

func (m *MockCapture) SendAudio(chunk []byte) error {
	return nil
}

func (m *MockCapture) replay(ctx context.Context, stop chan struct{}) {
	defer m.end(stop)
	for i, text := range m.script {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-time.After(m.delay):
		}
		m.events <- repositories.CaptureEvent{
			Kind:       repositories.CaptureEventResult,
			Transcript: text,
			IsFinal:    i == len(m.script)-1,
		}
	}
	// keep the session open after the script so the silence detector
	// decides when the utterance is done
	select {
	case <-ctx.Done():
	case <-stop:
	}
}

func (m *MockCapture) end(stop chan struct{}) {
	m.mu.Lock()
	// a context cancellation ends the session without Stop being
	// called; only the session that owns this stop channel may flip
	// the flag, a later session may already be running
	if m.stop == stop {
		m.running = false
	}
	m.mu.Unlock()
	m.events <- repositories.CaptureEvent{Kind: repositories.CaptureEventSessionEnd}
	m.logger.Debug("Mock capture session ended")
}

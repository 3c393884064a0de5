package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

const (
	defaultRealtimeURL   = "wss://api.assemblyai.com/v2/realtime/ws"
	defaultAAISampleRate = 16000
	wsWriteTimeout       = 5 * time.Second
)

// AssemblyAIConfig holds configuration for the AssemblyAI realtime
// recognizer. APIKey is required.
type AssemblyAIConfig struct {
	APIKey      string
	RealtimeURL string
	SampleRate  int
}

// ValidateAssemblyAIConfig validates an AssemblyAIConfig
func ValidateAssemblyAIConfig(config AssemblyAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("assemblyai API key is required")
	}
	if config.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	return nil
}

// NewAssemblyAIConfigFromEnv builds an AssemblyAIConfig from
// environment variables
func NewAssemblyAIConfigFromEnv() AssemblyAIConfig {
	return AssemblyAIConfig{
		APIKey:      os.Getenv("ASSEMBLYAI_API_KEY"),
		RealtimeURL: os.Getenv("ASSEMBLYAI_REALTIME_URL"),
	}
}

// AssemblyAICapture is a CaptureProvider over the AssemblyAI realtime
// websocket API. Partial transcripts map to interim results; the
// service keeps revising them until it emits a FinalTranscript.
type AssemblyAICapture struct {
	cfg    AssemblyAIConfig
	logger *zap.Logger
	events chan repositories.CaptureEvent

	mu      sync.Mutex
	session *assemblyAISession
}

type assemblyAISession struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	mu        sync.Mutex
	committed []string
	writeMu   sync.Mutex
}

var _ repositories.CaptureProvider = (*AssemblyAICapture)(nil)

// NewAssemblyAICapture creates an AssemblyAI capture provider
func NewAssemblyAICapture(config AssemblyAIConfig, logger *zap.Logger) (*AssemblyAICapture, error) {
	if err := ValidateAssemblyAIConfig(config); err != nil {
		return nil, err
	}
	if config.RealtimeURL == "" {
		config.RealtimeURL = defaultRealtimeURL
	}
	if config.SampleRate == 0 {
		config.SampleRate = defaultAAISampleRate
		logger.Info("Using default sample rate", zap.Int("sampleRate", config.SampleRate))
	}
	return &AssemblyAICapture{
		cfg:    config,
		logger: logger,
		events: make(chan repositories.CaptureEvent, eventBuffer),
	}, nil
}

func (a *AssemblyAICapture) Events() <-chan repositories.CaptureEvent {
	return a.events
}

type assemblyAIMessage struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Error       string `json:"error"`
}

// Start dials the realtime endpoint and begins one listening session
func (a *AssemblyAICapture) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return fmt.Errorf("capture session already open")
	}

	url := fmt.Sprintf("%s?sample_rate=%d", a.cfg.RealtimeURL, a.cfg.SampleRate)
	header := http.Header{"Authorization": []string{a.cfg.APIKey}}

	sessCtx, cancel := context.WithCancel(ctx)
	conn, resp, err := websocket.DefaultDialer.DialContext(sessCtx, url, header)
	if err != nil {
		cancel()
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("assemblyai rejected credentials: %w", err)
		}
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("assemblyai throttled dial: %v: %w", err, repositories.ErrCaptureBusy)
		}
		return fmt.Errorf("failed to dial assemblyai: %w", err)
	}

	sess := &assemblyAISession{conn: conn, cancel: cancel}
	a.session = sess
	a.events <- repositories.CaptureEvent{Kind: repositories.CaptureEventSessionStart}
	go a.receive(sess)

	a.logger.Debug("AssemblyAI capture session opened",
		zap.Int("sampleRate", a.cfg.SampleRate))
	return nil
}

// Stop sends the terminate message; the server flushes final results
// and closes, which ends the receive loop.
func (a *AssemblyAICapture) Stop() error {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.writeJSON(map[string]bool{"terminate_session": true})
}

// SendAudio forwards one microphone chunk as a base64 audio frame
func (a *AssemblyAICapture) SendAudio(chunk []byte) error {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no capture session open")
	}
	if len(chunk) == 0 {
		return nil
	}
	return sess.writeJSON(map[string]string{
		"audio_data": base64.StdEncoding.EncodeToString(chunk),
	})
}

func (s *assemblyAISession) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(v)
}

func (a *AssemblyAICapture) receive(sess *assemblyAISession) {
	defer a.closeSession(sess)

	for {
		var msg assemblyAIMessage
		if err := sess.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			a.logger.Warn("AssemblyAI receive failed", zap.Error(err))
			a.events <- repositories.CaptureEvent{
				Kind:   repositories.CaptureEventError,
				Code:   repositories.CaptureErrNetwork,
				Detail: err.Error(),
			}
			return
		}

		switch msg.MessageType {
		case "PartialTranscript", "FinalTranscript":
			isFinal := msg.MessageType == "FinalTranscript"
			transcript := sess.merge(msg.Text, isFinal)
			if strings.TrimSpace(transcript) == "" {
				continue
			}
			a.events <- repositories.CaptureEvent{
				Kind:       repositories.CaptureEventResult,
				Transcript: transcript,
				IsFinal:    isFinal,
			}
		case "SessionTerminated":
			return
		default:
			if msg.Error != "" {
				a.events <- repositories.CaptureEvent{
					Kind:   repositories.CaptureEventError,
					Code:   repositories.CaptureErrNetwork,
					Detail: msg.Error,
				}
			}
		}
	}
}

// merge mirrors the Google provider: finalized utterances accumulate,
// and every event carries the full replacement transcript.
func (s *assemblyAISession) merge(text string, isFinal bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isFinal {
		if strings.TrimSpace(text) != "" {
			s.committed = append(s.committed, strings.TrimSpace(text))
		}
		return strings.Join(s.committed, " ")
	}
	parts := append(append([]string{}, s.committed...), strings.TrimSpace(text))
	return strings.Join(parts, " ")
}

func (a *AssemblyAICapture) closeSession(sess *assemblyAISession) {
	a.mu.Lock()
	if a.session == sess {
		a.session = nil
	}
	a.mu.Unlock()

	sess.conn.Close()
	sess.cancel()
	a.events <- repositories.CaptureEvent{Kind: repositories.CaptureEventSessionEnd}
	a.logger.Debug("AssemblyAI capture session closed")
}

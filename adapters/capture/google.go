package capture

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

const (
	defaultSampleRate = 16000
	defaultEncoding   = "LINEAR16"
	defaultLanguage   = "en-US"
	eventBuffer       = 64
)

// GoogleCaptureConfig holds audio settings for the Google Cloud
// recognizer. Credentials come from the ambient Google Cloud
// environment (GOOGLE_APPLICATION_CREDENTIALS).
type GoogleCaptureConfig struct {
	SampleRate int
	Encoding   string
	Language   string
}

// ValidateGoogleCaptureConfig validates a GoogleCaptureConfig
func ValidateGoogleCaptureConfig(config GoogleCaptureConfig) error {
	if config.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Encoding != "" {
		if _, err := audioEncoding(config.Encoding); err != nil {
			return err
		}
	}
	return nil
}

// GoogleCapture is a CaptureProvider over Google Cloud Speech streaming
// recognition. Interim results stay on: the silence detector needs
// hypothesis updates while the user is still talking.
//
// Google finalizes one utterance at a time, so the provider keeps the
// text of already-final utterances and prepends it to the live interim
// hypothesis. Every emitted result is the full replacement transcript.
type GoogleCapture struct {
	cfg    GoogleCaptureConfig
	logger *zap.Logger
	events chan repositories.CaptureEvent

	mu      sync.Mutex
	session *googleSession
}

type googleSession struct {
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc

	mu        sync.Mutex
	committed []string
}

var _ repositories.CaptureProvider = (*GoogleCapture)(nil)

// NewGoogleCapture creates a Google Cloud capture provider
func NewGoogleCapture(config GoogleCaptureConfig, logger *zap.Logger) (*GoogleCapture, error) {
	if err := ValidateGoogleCaptureConfig(config); err != nil {
		return nil, err
	}
	if config.SampleRate == 0 {
		config.SampleRate = defaultSampleRate
		logger.Info("Using default sample rate", zap.Int("sampleRate", config.SampleRate))
	}
	if config.Encoding == "" {
		config.Encoding = defaultEncoding
	}
	if config.Language == "" {
		config.Language = defaultLanguage
	}
	return &GoogleCapture{
		cfg:    config,
		logger: logger,
		events: make(chan repositories.CaptureEvent, eventBuffer),
	}, nil
}

func (g *GoogleCapture) Events() <-chan repositories.CaptureEvent {
	return g.events
}

// Start opens one streaming recognition session. It fails if a session
// is already open.
func (g *GoogleCapture) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		return fmt.Errorf("capture session already open")
	}

	sessCtx, cancel := context.WithCancel(ctx)
	client, err := speech.NewClient(sessCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(sessCtx)
	if err != nil {
		client.Close()
		cancel()
		if classifyError(err) == repositories.CaptureErrBusy {
			return fmt.Errorf("streaming recognize: %v: %w", err, repositories.ErrCaptureBusy)
		}
		return fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := audioEncoding(g.cfg.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		cancel()
		return err
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(g.cfg.SampleRate),
					LanguageCode:    g.cfg.Language,
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		cancel()
		return fmt.Errorf("failed to send streaming config: %w", err)
	}

	sess := &googleSession{client: client, stream: stream, cancel: cancel}
	g.session = sess
	g.events <- repositories.CaptureEvent{Kind: repositories.CaptureEventSessionStart}
	go g.receive(sess)

	g.logger.Debug("Google capture session opened",
		zap.Int("sampleRate", g.cfg.SampleRate),
		zap.String("language", g.cfg.Language))
	return nil
}

// Stop half-closes the audio stream. The recognizer flushes its final
// results and the receive loop emits session_end when the stream drains.
func (g *GoogleCapture) Stop() error {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := sess.stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

// SendAudio forwards one microphone chunk into the open session
func (g *GoogleCapture) SendAudio(chunk []byte) error {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no capture session open")
	}
	if len(chunk) == 0 {
		return nil
	}
	if err := sess.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (g *GoogleCapture) receive(sess *googleSession) {
	defer g.closeSession(sess)

	for {
		resp, err := sess.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			g.logger.Warn("Google capture receive failed", zap.Error(err))
			g.events <- repositories.CaptureEvent{
				Kind:   repositories.CaptureEventError,
				Code:   classifyError(err),
				Detail: err.Error(),
			}
			return
		}
		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			best := result.Alternatives[0].Transcript
			transcript, isFinal := sess.merge(best, result.IsFinal)
			if strings.TrimSpace(transcript) == "" {
				continue
			}
			g.events <- repositories.CaptureEvent{
				Kind:       repositories.CaptureEventResult,
				Transcript: transcript,
				IsFinal:    isFinal,
			}
		}
	}
}

// merge combines finalized utterances with the live interim hypothesis
// into one full replacement transcript.
func (s *googleSession) merge(text string, isFinal bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isFinal {
		if strings.TrimSpace(text) != "" {
			s.committed = append(s.committed, strings.TrimSpace(text))
		}
		return strings.Join(s.committed, " "), true
	}
	parts := append(append([]string{}, s.committed...), strings.TrimSpace(text))
	return strings.Join(parts, " "), false
}

func (g *GoogleCapture) closeSession(sess *googleSession) {
	g.mu.Lock()
	if g.session == sess {
		g.session = nil
	}
	g.mu.Unlock()

	sess.client.Close()
	sess.cancel()
	g.events <- repositories.CaptureEvent{Kind: repositories.CaptureEventSessionEnd}
	g.logger.Debug("Google capture session closed")
}

func classifyError(err error) repositories.CaptureErrorCode {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permissiondenied"), strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "unauthenticated"):
		return repositories.CaptureErrPermissionDenied
	case strings.Contains(msg, "resourceexhausted"), strings.Contains(msg, "resource exhausted"):
		return repositories.CaptureErrBusy
	default:
		return repositories.CaptureErrNetwork
	}
}

// audioEncoding converts a config string to the Speech API enum
func audioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

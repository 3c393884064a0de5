package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// MockSynthesizer is a placeholder synthesizer for development without
// an ElevenLabs API key. It produces a deterministic payload derived
// from the input text.
type MockSynthesizer struct {
	logger *zap.Logger
}

func NewMockSynthesizer(logger *zap.Logger) repositories.SynthesisProvider {
	return &MockSynthesizer{logger: logger}
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	m.logger.Debug("Mock synthesis", zap.Int("textChars", len(text)))
	return []byte("mock-audio:" + text), nil
}

package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

func TestNewElevenLabsSynthesizer(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// Test without API key
	os.Unsetenv("ELEVEN_LABS_API_KEY")
	config := NewElevenLabsConfigFromEnv()
	_, err := NewElevenLabsSynthesizer(config, logger)
	if err == nil {
		t.Error("Expected error when API key is not set")
	}

	// Test with API key
	os.Setenv("ELEVEN_LABS_API_KEY", "test-api-key")
	defer os.Unsetenv("ELEVEN_LABS_API_KEY")

	config = NewElevenLabsConfigFromEnv()
	synth, err := NewElevenLabsSynthesizer(config, logger)
	if err != nil {
		t.Fatalf("Failed to create synthesizer: %v", err)
	}

	if synth.cfg.APIKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", synth.cfg.APIKey)
	}
	if synth.cfg.VoiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, synth.cfg.VoiceID)
	}
	if synth.cfg.ModelID != defaultModelID {
		t.Errorf("Expected default model ID '%s', got '%s'", defaultModelID, synth.cfg.ModelID)
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	if err := ValidateElevenLabsConfig(ElevenLabsConfig{APIKey: "k", Stability: 1.5}); err == nil {
		t.Error("Expected error for out-of-range stability")
	}
	if err := ValidateElevenLabsConfig(ElevenLabsConfig{APIKey: "k", Clarity: -0.1}); err == nil {
		t.Error("Expected error for out-of-range clarity")
	}
	if err := ValidateElevenLabsConfig(ElevenLabsConfig{APIKey: "k", Stability: 0.4, Clarity: 0.6}); err != nil {
		t.Errorf("Valid config rejected: %v", err)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	logger := zaptest.NewLogger(t)
	synth, err := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create synthesizer: %v", err)
	}

	ctx := context.Background()
	if _, err := synth.Synthesize(ctx, ""); err == nil {
		t.Error("Expected error for empty text")
	}
	if _, err := synth.Synthesize(ctx, "   "); err == nil {
		t.Error("Expected error for whitespace-only text")
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	logger := zaptest.NewLogger(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-api-key" {
			t.Error("API key header missing")
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer server.Close()

	synth, err := NewElevenLabsSynthesizer(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create synthesizer: %v", err)
	}

	audio, err := synth.Synthesize(context.Background(), "The fryer needs cleaning.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "fake-mp3-bytes" {
		t.Errorf("Unexpected audio payload: %q", audio)
	}
}

func TestSynthesizeRateLimited(t *testing.T) {
	logger := zaptest.NewLogger(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	synth, err := NewElevenLabsSynthesizer(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create synthesizer: %v", err)
	}

	_, err = synth.Synthesize(context.Background(), "Hello there.")
	if !errors.Is(err, repositories.ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
}

func TestSynthesizeServerError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer server.Close()

	synth, err := NewElevenLabsSynthesizer(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create synthesizer: %v", err)
	}

	_, err = synth.Synthesize(context.Background(), "Hello there.")
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}
	if errors.Is(err, repositories.ErrRateLimited) {
		t.Error("400 must not map to ErrRateLimited")
	}
}

func TestNewFallbackConfig(t *testing.T) {
	primary := ElevenLabsConfig{APIKey: "k", VoiceID: "v", ModelID: defaultModelID}
	fallback := NewFallbackConfig(primary)
	if fallback.ModelID == primary.ModelID {
		t.Error("Fallback should use a different model")
	}
	if fallback.VoiceID != primary.VoiceID {
		t.Error("Fallback should keep the same voice")
	}
}

package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.6
	defaultTopP           = 0.95
	defaultTopK           = 40
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 30
)

// GeminiConfig holds configuration for the Gemini response source.
// APIKey is required; everything else defaults sensibly.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// ValidateGeminiConfig validates a GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// NewGeminiConfigFromEnv builds a GeminiConfig from environment
// variables. Only GEMINI_API_KEY is required.
func NewGeminiConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_MODEL"),
	}
}

// GeminiSource answers equipment questions through the Gemini API. It
// implements both the streaming path used for live replies and the
// non-streaming fallback the consumer switches to when a stream breaks.
type GeminiSource struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *zap.Logger
}

var _ repositories.ResponseSource = (*GeminiSource)(nil)

// NewGeminiSource creates a Gemini-backed response source
func NewGeminiSource(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiSource, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	if config.Model == "" {
		config.Model = defaultModel
		logger.Info("Using default model", zap.String("model", config.Model))
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
		logger.Info("Using default temperature", zap.Float32("temperature", config.Temperature))
	}
	if config.TopP == 0 {
		config.TopP = defaultTopP
	}
	if config.TopK == 0 {
		config.TopK = defaultTopK
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaultMaxTokens
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiSource{
		client: client,
		cfg:    config,
		logger: logger,
	}, nil
}

func (g *GeminiSource) contents(inputText string) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromText(assistantSystemPrompt, genai.RoleUser),
		genai.NewContentFromText(inputText, genai.RoleUser),
	}
}

func (g *GeminiSource) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SafetySettings:  geminiSafetySettings,
		Temperature:     genai.Ptr(g.cfg.Temperature),
		TopP:            genai.Ptr(g.cfg.TopP),
		TopK:            genai.Ptr(g.cfg.TopK),
		MaxOutputTokens: int32(g.cfg.MaxOutputTokens),
	}
}

// OpenStream starts a streaming reply for the given input. Chunks are
// delivered in order on the first channel, which is closed when the
// reply is complete; a mid-stream failure arrives on the error channel.
func (g *GeminiSource) OpenStream(ctx context.Context, inputText string) (<-chan string, <-chan error, error) {
	if strings.TrimSpace(inputText) == "" {
		return nil, nil, fmt.Errorf("empty input: %w", repositories.ErrInvalidRequest)
	}

	chunks := make(chan string, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)

		ctx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.TimeoutSeconds)*time.Second)
		defer cancel()

		started := time.Now()
		count := 0
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.cfg.Model, g.contents(inputText), g.generateConfig()) {
			if err != nil {
				g.logger.Warn("Gemini stream broke",
					zap.Int("chunksDelivered", count), zap.Error(err))
				errs <- err
				return
			}
			text := extractText(resp)
			if text == "" {
				continue
			}
			count++
			select {
			case chunks <- text:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		g.logger.Debug("Gemini stream complete",
			zap.Int("chunks", count),
			zap.Duration("elapsed", time.Since(started)))
	}()

	return chunks, errs, nil
}

// Generate produces a complete reply in one request, retrying transient
// failures up to three times.
func (g *GeminiSource) Generate(ctx context.Context, inputText string) (string, error) {
	if strings.TrimSpace(inputText) == "" {
		return "", fmt.Errorf("empty input: %w", repositories.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.cfg.Model, g.contents(inputText), g.generateConfig())
		if err == nil {
			break
		}
		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt < 2 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := extractText(response)
	if text == "" {
		return "", fmt.Errorf("gemini returned no content")
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.WriteString(part.Text)
		}
	}
	return out.String()
}

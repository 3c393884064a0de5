package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// MockSource is a canned response source for development without a
// Gemini API key. It streams a fixed reply word by word so the silence,
// chunking and speech paths all get exercised.
type MockSource struct{}

func NewMockSource() repositories.ResponseSource {
	return &MockSource{}
}

func (m *MockSource) reply(inputText string) string {
	switch {
	case strings.Contains(strings.ToLower(inputText), "fryer"):
		return "First make sure the fryer is cool. Drain the oil into the disposal caddy. " +
			"Then scrub the vat with the manufacturer's cleaner and rinse twice before refilling."
	case strings.Contains(strings.ToLower(inputText), "ice"):
		return "Check that the water supply valve is fully open. " +
			"If the machine still will not harvest, clean the condenser coil and restart it."
	default:
		return fmt.Sprintf("Here is what I found about %s. "+
			"Check the unit's manual for the exact model steps.", strings.TrimSpace(inputText))
	}
}

func (m *MockSource) OpenStream(ctx context.Context, inputText string) (<-chan string, <-chan error, error) {
	if strings.TrimSpace(inputText) == "" {
		return nil, nil, fmt.Errorf("empty input: %w", repositories.ErrInvalidRequest)
	}

	words := strings.SplitAfter(m.reply(inputText), " ")
	chunks := make(chan string, len(words))
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		for _, w := range words {
			select {
			case <-ctx.Done():
				return
			case chunks <- w:
			}
		}
	}()
	return chunks, errs, nil
}

func (m *MockSource) Generate(ctx context.Context, inputText string) (string, error) {
	if strings.TrimSpace(inputText) == "" {
		return "", fmt.Errorf("empty input: %w", repositories.ErrInvalidRequest)
	}
	return m.reply(inputText), nil
}

package usecase

import (
	"strings"
	"sync"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
)

// TranscriptAccumulator holds the evolving recognized text for the current
// listening session. Recognizers resend the full hypothesis on every update,
// so Update replaces the transcript rather than appending to it.
type TranscriptAccumulator struct {
	mu        sync.Mutex
	text      string
	words     int
	hasSpeech bool
}

func NewTranscriptAccumulator() *TranscriptAccumulator {
	return &TranscriptAccumulator{}
}

// Update replaces the working transcript with the latest full hypothesis and
// returns the recomputed word count. Once any meaningful fragment has been
// seen, the speech-detected flag stays set until Reset.
func (a *TranscriptAccumulator) Update(hypothesis string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text = hypothesis
	a.words = entities.WordCount(hypothesis)
	if strings.TrimSpace(hypothesis) != "" {
		a.hasSpeech = true
	}
	return a.words
}

// Reset clears the transcript for a fresh capture session
func (a *TranscriptAccumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text = ""
	a.words = 0
	a.hasSpeech = false
}

// Snapshot returns the current transcript and its word count
func (a *TranscriptAccumulator) Snapshot() (string, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text, a.words
}

// Text returns the current transcript
func (a *TranscriptAccumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}

// Words returns the current word count
func (a *TranscriptAccumulator) Words() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.words
}

// HasDetectedSpeech reports whether any meaningful fragment appeared this session
func (a *TranscriptAccumulator) HasDetectedSpeech() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasSpeech
}

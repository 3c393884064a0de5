package entities

import (
	"strings"
	"unicode"
)

// HandsFreeState models the hands-free conversation loop lifecycle.
// Exactly one value is authoritative at any time; only the state machine
// writes it, every other component reads it.
type HandsFreeState string

const (
	HandsFreeIdle       HandsFreeState = "idle"
	HandsFreeReady      HandsFreeState = "ready"
	HandsFreeListening  HandsFreeState = "listening"
	HandsFreeProcessing HandsFreeState = "processing"
	HandsFreeSpeaking   HandsFreeState = "speaking"
)

// Active reports whether the state is anything other than idle
func (s HandsFreeState) Active() bool {
	return s != HandsFreeIdle && s != ""
}

// exitCommands are the spoken phrases that immediately leave hands-free mode,
// discarding the current transcript.
var exitCommands = map[string]struct{}{
	"stop":           {},
	"exit":           {},
	"end hands free": {},
}

// IsExitCommand reports whether a transcript is one of the recognized exit
// phrases. Matching is case-insensitive and ignores punctuation, so a
// recognizer hypothesis like "Stop." still counts.
func IsExitCommand(transcript string) bool {
	_, ok := exitCommands[normalizeCommand(transcript)]
	return ok
}

func normalizeCommand(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(fields, " ")
}

// WordCount returns the number of whitespace-separated words in a transcript
func WordCount(transcript string) int {
	return len(strings.Fields(transcript))
}

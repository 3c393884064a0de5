package repositories

import (
	"context"
	"errors"
)

// ErrRateLimited is returned by a SynthesisProvider when the upstream service
// throttled the request (HTTP 429 or equivalent). The speech pipeline retries
// these with exponential backoff; any other error fails the attempt outright.
var ErrRateLimited = errors.New("synthesis rate limited")

// SynthesisProvider converts a text chunk into playable audio
type SynthesisProvider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioPlayer delivers synthesized audio to the output device. Play blocks
// until the audio has been fully delivered or the context is cancelled. The
// output device is an exclusive single-owner resource; the speech pipeline's
// playback loop is its only caller.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
}

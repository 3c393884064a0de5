package repositories

import (
	"context"
	"errors"
)

// ErrInvalidRequest marks validation-class backend rejections. These are
// never retried; the turn fails immediately.
var ErrInvalidRequest = errors.New("backend rejected request")

// ResponseSource abstracts the assistant backend.
//
// OpenStream returns a channel of ordered text chunks and a channel carrying
// at most one terminal error. The chunk channel is closed on successful
// completion. Generate is the non-streaming fallback with the same semantic
// payload, used when the streaming path fails or times out.
type ResponseSource interface {
	OpenStream(ctx context.Context, inputText string) (<-chan string, <-chan error, error)
	Generate(ctx context.Context, inputText string) (string, error)
}

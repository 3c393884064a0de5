package repositories

import (
	"context"
	"errors"
)

// ErrCaptureBusy marks a Start failure caused by the recognizer being
// temporarily occupied. Callers may retry after a short delay; any
// other Start error is not worth retrying.
var ErrCaptureBusy = errors.New("capture provider busy")

// CaptureEventKind identifies a capture provider lifecycle event
type CaptureEventKind string

const (
	CaptureEventSessionStart CaptureEventKind = "session_start"
	CaptureEventResult       CaptureEventKind = "result"
	CaptureEventSessionEnd   CaptureEventKind = "session_end"
	CaptureEventError        CaptureEventKind = "error"
)

// CaptureErrorCode classifies capture provider failures. Permission denial is
// the only fatal one; busy and no-speech abort the current attempt and leave
// voice capture available for the next.
type CaptureErrorCode string

const (
	CaptureErrPermissionDenied CaptureErrorCode = "permission_denied"
	CaptureErrNoSpeech         CaptureErrorCode = "no_speech"
	CaptureErrBusy             CaptureErrorCode = "busy"
	CaptureErrNetwork          CaptureErrorCode = "network"
)

// CaptureEvent is one message from the capture provider. Transcript events
// carry the provider's full current hypothesis, not a delta; IsFinal marks
// hypotheses the provider will no longer revise.
type CaptureEvent struct {
	Kind       CaptureEventKind
	Transcript string
	IsFinal    bool
	Code       CaptureErrorCode
	Detail     string
}

// CaptureProvider abstracts a streaming speech recognizer. Continuous mode
// with interim results is required: the silence detector depends on receiving
// hypothesis updates while the user is still talking.
//
// Start begins one listening session; the provider confirms asynchronously
// with a session_start event and eventually emits session_end, possibly long
// after Stop was requested. Events delivers all sessions' events over the
// provider's lifetime; it is closed only when the provider shuts down.
type CaptureProvider interface {
	Start(ctx context.Context) error
	Stop() error
	SendAudio(chunk []byte) error
	Events() <-chan CaptureEvent
}

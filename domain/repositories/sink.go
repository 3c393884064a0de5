package repositories

import (
	"time"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
)

// EventSink receives everything the voice core exposes to the UI layer:
// hands-free state changes, live transcripts, the auto-send countdown, and
// per-turn streaming updates. Implementations must not block; the core calls
// these from its event-handling paths.
type EventSink interface {
	StateChanged(state entities.HandsFreeState)
	TranscriptUpdated(text string, isFinal bool)
	CountdownStarted(remaining time.Duration)
	CountdownStopped()
	TurnStarted(turn entities.ConversationTurn)
	TurnChunk(turnID string, chunk string)
	TurnCompleted(turn entities.ConversationTurn)
	TurnErrored(turn entities.ConversationTurn)
	CaptureError(code CaptureErrorCode, detail string)
}

// NopSink discards all events; useful for tests and headless operation
type NopSink struct{}

func (NopSink) StateChanged(entities.HandsFreeState)    {}
func (NopSink) TranscriptUpdated(string, bool)          {}
func (NopSink) CountdownStarted(time.Duration)          {}
func (NopSink) CountdownStopped()                       {}
func (NopSink) TurnStarted(entities.ConversationTurn)   {}
func (NopSink) TurnChunk(string, string)                {}
func (NopSink) TurnCompleted(entities.ConversationTurn) {}
func (NopSink) TurnErrored(entities.ConversationTurn)   {}
func (NopSink) CaptureError(CaptureErrorCode, string)   {}

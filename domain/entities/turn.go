package entities

import (
	"time"

	"github.com/google/uuid"
)

// TurnStatus represents the lifecycle state of a conversation turn
type TurnStatus string

const (
	TurnStatusPending   TurnStatus = "pending"
	TurnStatusStreaming TurnStatus = "streaming"
	TurnStatusComplete  TurnStatus = "complete"
	TurnStatusErrored   TurnStatus = "errored"
)

// ConversationTurn represents one user utterance and its assistant reply.
// The response text grows monotonically while the reply streams in; the turn
// is finalized to complete or errored exactly once. The component driving the
// turn (the response consumer) is the single writer; everyone else receives
// value copies through the event sink.
type ConversationTurn struct {
	ID           string     `json:"id"`
	InputText    string     `json:"input_text"`
	ResponseText string     `json:"response_text"`
	Status       TurnStatus `json:"status"`
	ErrorDetail  string     `json:"error_detail,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// NewConversationTurn creates a pending turn for the given input text
func NewConversationTurn(inputText string) *ConversationTurn {
	return &ConversationTurn{
		ID:        uuid.New().String(),
		InputText: inputText,
		Status:    TurnStatusPending,
		CreatedAt: time.Now(),
	}
}

// AppendResponse appends a streamed chunk to the response text. The first
// chunk moves the turn from pending to streaming. Chunks arriving after the
// turn is finalized are dropped.
func (t *ConversationTurn) AppendResponse(chunk string) bool {
	if t.Finalized() {
		return false
	}
	if t.Status == TurnStatusPending {
		t.Status = TurnStatusStreaming
	}
	t.ResponseText += chunk
	return true
}

// Complete finalizes the turn as complete. Returns false if the turn was
// already finalized.
func (t *ConversationTurn) Complete() bool {
	if t.Finalized() {
		return false
	}
	t.Status = TurnStatusComplete
	now := time.Now()
	t.FinishedAt = &now
	return true
}

// Fail finalizes the turn as errored with a reason. Returns false if the
// turn was already finalized.
func (t *ConversationTurn) Fail(detail string) bool {
	if t.Finalized() {
		return false
	}
	t.Status = TurnStatusErrored
	t.ErrorDetail = detail
	now := time.Now()
	t.FinishedAt = &now
	return true
}

// Finalized reports whether the turn has reached a terminal status
func (t *ConversationTurn) Finalized() bool {
	return t.Status == TurnStatusComplete || t.Status == TurnStatusErrored
}

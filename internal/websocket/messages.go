package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines the type of a WebSocket text message
type MessageType string

// Outbound message types (server to client)
const (
	MessageTypeState            MessageType = "state"
	MessageTypeTranscript       MessageType = "transcript"
	MessageTypeCountdownStarted MessageType = "countdown_started"
	MessageTypeCountdownStopped MessageType = "countdown_stopped"
	MessageTypeTurnStarted      MessageType = "turn_started"
	MessageTypeTurnChunk        MessageType = "turn_chunk"
	MessageTypeTurnCompleted    MessageType = "turn_completed"
	MessageTypeTurnErrored      MessageType = "turn_errored"
	MessageTypeCaptureError     MessageType = "capture_error"
	MessageTypeAudioEnd         MessageType = "audio_end"
	MessageTypeError            MessageType = "error"
)

// Inbound message types (client to server). Binary frames carry raw
// microphone audio and have no JSON envelope.
const (
	MessageTypeHandsFreeOn  MessageType = "handsfree_on"
	MessageTypeHandsFreeOff MessageType = "handsfree_off"
	MessageTypeStopSpeaking MessageType = "stop_speaking"
	MessageTypeRetryTurn    MessageType = "retry_turn"
)

// BaseMessage is the common envelope for all text messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// StateMessage announces a hands-free state transition
type StateMessage struct {
	BaseMessage
	State string `json:"state"`
}

// TranscriptMessage carries the live recognition hypothesis
type TranscriptMessage struct {
	BaseMessage
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// CountdownMessage announces the auto-send countdown
type CountdownMessage struct {
	BaseMessage
	RemainingMs int64 `json:"remaining_ms,omitempty"`
}

// TurnMessage carries turn lifecycle updates
type TurnMessage struct {
	BaseMessage
	TurnID       string `json:"turn_id"`
	InputText    string `json:"input_text,omitempty"`
	ResponseText string `json:"response_text,omitempty"`
	ErrorDetail  string `json:"error_detail,omitempty"`
}

// TurnChunkMessage carries one streamed reply chunk
type TurnChunkMessage struct {
	BaseMessage
	TurnID string `json:"turn_id"`
	Chunk  string `json:"chunk"`
}

// CaptureErrorMessage surfaces a recognizer failure to the client
type CaptureErrorMessage struct {
	BaseMessage
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// ErrorMessage is a generic protocol-level error
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ControlMessage is the inbound envelope; clients only send control
// commands as text, so one struct covers them all.
type ControlMessage struct {
	Type MessageType `json:"type"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// ParseControlMessage decodes and validates an inbound text frame
func ParseControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed control message: %w", err)
	}
	switch msg.Type {
	case MessageTypeHandsFreeOn, MessageTypeHandsFreeOff,
		MessageTypeStopSpeaking, MessageTypeRetryTurn:
		return &msg, nil
	case "":
		return nil, fmt.Errorf("control message missing type field")
	default:
		return nil, fmt.Errorf("unknown control message type: %s", msg.Type)
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
)

// newTestClient registers a connectionless client directly on the hub.
// Outbound frames land on the send channel where the test reads them.
func newTestClient(t *testing.T, h *Hub, deviceID string) *Client {
	t.Helper()
	client := &Client{
		hub:      h,
		send:     make(chan WriteData, 256),
		deviceID: deviceID,
		logger:   zaptest.NewLogger(t),
	}
	h.mu.Lock()
	h.clients[deviceID] = client
	h.mu.Unlock()
	return client
}

func readText(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case frame := <-c.send:
		if frame.Type != gorilla.TextMessage {
			t.Fatalf("expected text frame, got type %d", frame.Type)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(frame.Payload, &decoded); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return decoded
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestHubBroadcastsStateChanges(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	a := newTestClient(t, h, "device-a")
	b := newTestClient(t, h, "device-b")

	h.StateChanged(entities.HandsFreeListening)

	for _, c := range []*Client{a, b} {
		msg := readText(t, c)
		if msg["type"] != "state" || msg["state"] != "listening" {
			t.Errorf("client %s got %v", c.deviceID, msg)
		}
	}
}

func TestHubBroadcastsTurnLifecycle(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	c := newTestClient(t, h, "device-a")

	turn := entities.NewConversationTurn("is the oven holding temp")
	h.TurnStarted(*turn)
	msg := readText(t, c)
	if msg["type"] != "turn_started" || msg["input_text"] != "is the oven holding temp" {
		t.Errorf("turn_started frame wrong: %v", msg)
	}

	h.TurnChunk(turn.ID, "Yes, ")
	msg = readText(t, c)
	if msg["type"] != "turn_chunk" || msg["chunk"] != "Yes, " {
		t.Errorf("turn_chunk frame wrong: %v", msg)
	}

	turn.AppendResponse("Yes, it is.")
	turn.Complete()
	h.TurnCompleted(*turn)
	msg = readText(t, c)
	if msg["type"] != "turn_completed" || msg["response_text"] != "Yes, it is." {
		t.Errorf("turn_completed frame wrong: %v", msg)
	}
}

func TestHubPlayFramesAudio(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	c := newTestClient(t, h, "device-a")

	// two full frames plus a partial tail
	audio := make([]byte, audioFrameSize*2+100)
	if err := h.Play(context.Background(), audio); err != nil {
		t.Fatalf("play: %v", err)
	}

	var total int
	frames := 0
	for {
		select {
		case frame := <-c.send:
			if frame.Type == gorilla.BinaryMessage {
				frames++
				total += len(frame.Payload)
				continue
			}
			// audio_end marker terminates the delivery
			var decoded map[string]interface{}
			if err := json.Unmarshal(frame.Payload, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if decoded["type"] != "audio_end" {
				t.Fatalf("expected audio_end, got %v", decoded["type"])
			}
			if frames != 3 {
				t.Errorf("expected 3 binary frames, got %d", frames)
			}
			if total != len(audio) {
				t.Errorf("delivered %d bytes, want %d", total, len(audio))
			}
			return
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for audio frames")
		}
	}
}

func TestHubPlayHonorsCancellation(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	newTestClient(t, h, "device-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	audio := make([]byte, audioFrameSize*4)
	if err := h.Play(ctx, audio); err == nil {
		t.Error("expected context error from cancelled play")
	}
}

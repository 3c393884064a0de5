package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Synthesized audio is delivered in frames of this size with a
	// short gap so slow clients keep up without huge socket buffers.
	audioFrameSize   = 32 * 1024
	audioFramePacing = 20 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// same-store kiosks connect from file:// and LAN origins
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected devices and fans voice-loop
// events out to them. It is the EventSink the hands-free service
// reports into and the AudioPlayer it speaks through.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	service *usecase.HandsFreeService
	logger  *zap.Logger
}

var (
	_ repositories.EventSink   = (*Hub)(nil)
	_ repositories.AudioPlayer = (*Hub)(nil)
)

// NewHub creates a hub with no service bound yet. The hands-free
// service needs the hub as its sink and player, so construction is
// two-phase: build the hub, build the service over it, then BindService.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// BindService attaches the hands-free service the hub forwards
// commands and microphone audio to.
func (h *Hub) BindService(service *usecase.HandsFreeService) {
	h.service = service
}

// Run starts the hub's registration loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.deviceID]; ok {
				close(old.send)
			}
			h.clients[client.deviceID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("deviceID", client.deviceID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.deviceID]; ok && current == client {
				delete(h.clients, client.deviceID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("deviceID", client.deviceID))
		}
	}
}

// WriteData is one outbound websocket frame
type WriteData struct {
	Type    int
	Payload []byte
}

// Client is a middleman between one device's websocket connection and
// the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan WriteData
	deviceID string
	logger   *zap.Logger
}

// HandleWebSocketWithAuth upgrades an authenticated request and starts
// the client's pumps.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, deviceID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		deviceID: deviceID,
		logger:   logger,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processControl(message)
		case websocket.BinaryMessage:
			c.processAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processControl dispatches an inbound command to the voice loop
func (c *Client) processControl(message []byte) {
	msg, err := ParseControlMessage(message)
	if err != nil {
		c.logger.Warn("Bad control message", zap.Error(err))
		c.enqueue(ErrorMessage{
			BaseMessage: newBase(MessageTypeError),
			Code:        "bad_message",
			Message:     err.Error(),
		})
		return
	}
	if c.hub.service == nil {
		c.logger.Error("Control message received before service bound")
		return
	}

	switch msg.Type {
	case MessageTypeHandsFreeOn:
		if err := c.hub.service.Enable(context.Background()); err != nil {
			c.logger.Error("Failed to enable hands-free", zap.Error(err))
		}
	case MessageTypeHandsFreeOff:
		c.hub.service.Disable()
	case MessageTypeStopSpeaking:
		c.hub.service.StopSpeaking()
	case MessageTypeRetryTurn:
		c.hub.service.RetryTurn()
	}
}

// processAudio forwards one microphone chunk into the capture session
func (c *Client) processAudio(data []byte) {
	if c.hub.service == nil {
		return
	}
	if err := c.hub.service.FeedAudio(data); err != nil {
		c.logger.Warn("Failed to forward audio chunk",
			zap.String("deviceID", c.deviceID),
			zap.Int("size", len(data)),
			zap.Error(err))
	}
}

// enqueue drops the frame if the client's buffer is full; a stalled
// client must not block the voice loop.
func (c *Client) enqueue(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal outbound message", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Dropping outbound message, client buffer full",
			zap.String("deviceID", c.deviceID))
	}
}

// broadcast fans one JSON message out to every connected client
func (h *Hub) broadcast(v interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.enqueue(v)
	}
}

// StateChanged implements repositories.EventSink
func (h *Hub) StateChanged(state entities.HandsFreeState) {
	h.broadcast(StateMessage{
		BaseMessage: newBase(MessageTypeState),
		State:       string(state),
	})
}

// TranscriptUpdated implements repositories.EventSink
func (h *Hub) TranscriptUpdated(text string, isFinal bool) {
	h.broadcast(TranscriptMessage{
		BaseMessage: newBase(MessageTypeTranscript),
		Text:        text,
		IsFinal:     isFinal,
	})
}

// CountdownStarted implements repositories.EventSink
func (h *Hub) CountdownStarted(remaining time.Duration) {
	h.broadcast(CountdownMessage{
		BaseMessage: newBase(MessageTypeCountdownStarted),
		RemainingMs: remaining.Milliseconds(),
	})
}

// CountdownStopped implements repositories.EventSink
func (h *Hub) CountdownStopped() {
	h.broadcast(CountdownMessage{
		BaseMessage: newBase(MessageTypeCountdownStopped),
	})
}

// TurnStarted implements repositories.EventSink
func (h *Hub) TurnStarted(turn entities.ConversationTurn) {
	h.broadcast(TurnMessage{
		BaseMessage: newBase(MessageTypeTurnStarted),
		TurnID:      turn.ID,
		InputText:   turn.InputText,
	})
}

// TurnChunk implements repositories.EventSink
func (h *Hub) TurnChunk(turnID string, chunk string) {
	h.broadcast(TurnChunkMessage{
		BaseMessage: newBase(MessageTypeTurnChunk),
		TurnID:      turnID,
		Chunk:       chunk,
	})
}

// TurnCompleted implements repositories.EventSink
func (h *Hub) TurnCompleted(turn entities.ConversationTurn) {
	h.broadcast(TurnMessage{
		BaseMessage:  newBase(MessageTypeTurnCompleted),
		TurnID:       turn.ID,
		ResponseText: turn.ResponseText,
	})
}

// TurnErrored implements repositories.EventSink
func (h *Hub) TurnErrored(turn entities.ConversationTurn) {
	h.broadcast(TurnMessage{
		BaseMessage: newBase(MessageTypeTurnErrored),
		TurnID:      turn.ID,
		ErrorDetail: turn.ErrorDetail,
	})
}

// CaptureError implements repositories.EventSink
func (h *Hub) CaptureError(code repositories.CaptureErrorCode, detail string) {
	h.broadcast(CaptureErrorMessage{
		BaseMessage: newBase(MessageTypeCaptureError),
		Code:        string(code),
		Detail:      detail,
	})
}

// Play implements repositories.AudioPlayer. Synthesized audio goes out
// as paced binary frames followed by an audio_end marker; the call
// blocks for roughly the delivery duration so the speech pipeline's
// ordering holds.
func (h *Hub) Play(ctx context.Context, audio []byte) error {
	for offset := 0; offset < len(audio); offset += audioFrameSize {
		end := offset + audioFrameSize
		if end > len(audio) {
			end = len(audio)
		}
		frame := audio[offset:end]

		h.mu.RLock()
		for _, client := range h.clients {
			select {
			case client.send <- WriteData{Type: websocket.BinaryMessage, Payload: frame}:
			default:
				client.logger.Warn("Dropping audio frame, client buffer full",
					zap.String("deviceID", client.deviceID))
			}
		}
		h.mu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(audioFramePacing):
		}
	}

	h.broadcast(newBase(MessageTypeAudioEnd))
	return nil
}

package api

import "time"

// DeviceAuthRequest represents the request payload for device authentication
type DeviceAuthRequest struct {
	SerialNumber string `json:"serial_number" validate:"required"`
	SecretKey    string `json:"secret_key" validate:"required"`
}

// DeviceAuthResponse represents the response payload for device authentication
type DeviceAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id"`
}

// HandsFreeStatusResponse snapshots the hands-free loop for polling
// clients that do not hold a websocket.
type HandsFreeStatusResponse struct {
	State     string            `json:"state"`
	Active    bool              `json:"active"`
	TurnCount int               `json:"turn_count"`
	Turns     []TurnStatusEntry `json:"turns,omitempty"`
}

// TurnStatusEntry is one conversation turn in a status response
type TurnStatusEntry struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	InputText    string `json:"input_text"`
	ResponseText string `json:"response_text,omitempty"`
	ErrorDetail  string `json:"error_detail,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

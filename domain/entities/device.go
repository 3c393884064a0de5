package entities

import (
	"errors"
	"time"
)

// Device represents a registered line-station client (a kitchen tablet or
// browser kiosk) allowed to open a voice session against the gateway.
type Device struct {
	ID           string    `json:"id"`
	SerialNumber string    `json:"serial_number"`
	SecretKey    string    `json:"-"`
	Label        string    `json:"label"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the required device fields
func (d *Device) Validate() error {
	if d.SerialNumber == "" {
		return errors.New("serial number is required")
	}
	if d.SecretKey == "" {
		return errors.New("secret key is required")
	}
	return nil
}

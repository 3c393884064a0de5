package repositories

import (
	"context"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
)

// DeviceRepository defines access to registered line-station devices
type DeviceRepository interface {
	Create(ctx context.Context, device *entities.Device) error
	GetByID(ctx context.Context, id string) (*entities.Device, error)
	GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error)
	// ValidateDevice validates device credentials for authentication
	ValidateDevice(serialNumber, secret string) (*entities.Device, error)
}

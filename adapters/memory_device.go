package adapters

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// MemoryDeviceRepository is an in-memory implementation of
// DeviceRepository. Conversation content is never persisted, so a
// simple registry of provisioned kiosk devices is all the storage the
// server needs.
type MemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*entities.Device // id -> device
	serials map[string]*entities.Device // serial_number -> device
	secrets map[string]string           // serial_number -> secret_key
}

var _ repositories.DeviceRepository = (*MemoryDeviceRepository)(nil)

// NewMemoryDeviceRepository creates an empty device repository
func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{
		devices: make(map[string]*entities.Device),
		serials: make(map[string]*entities.Device),
		secrets: make(map[string]string),
	}
}

// SeedFromEnv registers devices listed in DEVICE_SEED, formatted as
// comma-separated serial:secret pairs. Useful for single-store
// deployments that provision through environment config.
func (m *MemoryDeviceRepository) SeedFromEnv(ctx context.Context) error {
	seed := os.Getenv("DEVICE_SEED")
	if seed == "" {
		return nil
	}
	for _, pair := range strings.Split(seed, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return errors.New("DEVICE_SEED entries must be serial:secret pairs")
		}
		device := &entities.Device{
			SerialNumber: parts[0],
			SecretKey:    parts[1],
			Label:        parts[0],
		}
		if err := m.Create(ctx, device); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDevice checks serial number and secret for device auth
func (m *MemoryDeviceRepository) ValidateDevice(serialNumber, secret string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	storedSecret, exists := m.secrets[serialNumber]
	if !exists {
		return nil, errors.New("device not found")
	}
	if storedSecret != secret {
		return nil, errors.New("invalid credentials")
	}

	device, exists := m.serials[serialNumber]
	if !exists {
		return nil, errors.New("device not found")
	}
	deviceCopy := *device
	return &deviceCopy, nil
}

// Create registers a new device
func (m *MemoryDeviceRepository) Create(ctx context.Context, device *entities.Device) error {
	if device == nil {
		return errors.New("device cannot be nil")
	}
	if err := device.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.serials[device.SerialNumber]; exists {
		return errors.New("device with this serial number already exists")
	}
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	deviceCopy := *device
	m.devices[device.ID] = &deviceCopy
	m.serials[device.SerialNumber] = &deviceCopy
	m.secrets[device.SerialNumber] = device.SecretKey
	return nil
}

// GetByID looks up a device by its ID
func (m *MemoryDeviceRepository) GetByID(ctx context.Context, id string) (*entities.Device, error) {
	if id == "" {
		return nil, errors.New("device ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[id]
	if !exists {
		return nil, errors.New("device not found")
	}
	deviceCopy := *device
	return &deviceCopy, nil
}

// GetBySerialNumber looks up a device by its serial number
func (m *MemoryDeviceRepository) GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error) {
	if serialNumber == "" {
		return nil, errors.New("serial number cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.serials[serialNumber]
	if !exists {
		return nil, errors.New("device not found")
	}
	deviceCopy := *device
	return &deviceCopy, nil
}

package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeviceID represents a unique device identifier
type DeviceID string

// NewDeviceID generates a new unique device ID
func NewDeviceID() DeviceID {
	return DeviceID(uuid.New().String())
}

// String returns the string representation of DeviceID
func (id DeviceID) String() string {
	return string(id)
}

// IsValid checks if the device ID is valid
func (id DeviceID) IsValid() bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(string(id))
	return err == nil
}

// ParseDeviceID parses a string into a DeviceID
func ParseDeviceID(s string) (DeviceID, error) {
	if s == "" {
		return "", fmt.Errorf("device ID cannot be empty")
	}

	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid device ID format: %w", err)
	}

	return DeviceID(s), nil
}

// UserID represents the owning user of a device
type UserID string

// String returns the string representation of UserID
func (id UserID) String() string {
	return string(id)
}

// IsValid checks if the user ID is valid
func (id UserID) IsValid() bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(string(id))
	return err == nil
}

// ParseUserID parses a string into a UserID
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return "", fmt.Errorf("user ID cannot be empty")
	}

	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid user ID format: %w", err)
	}

	return UserID(s), nil
}

// DeviceStatus represents the lifecycle status of a device connection
type DeviceStatus string

const (
	StatusOffline      DeviceStatus = "offline"
	StatusConnecting   DeviceStatus = "connecting"
	StatusPendingQR    DeviceStatus = "pending_qr"
	StatusOnline       DeviceStatus = "online"
	StatusDisconnected DeviceStatus = "disconnected"
	StatusError        DeviceStatus = "error"
)

// IsValid checks if the status is valid
func (s DeviceStatus) IsValid() bool {
	switch s {
	case StatusOffline, StatusConnecting, StatusPendingQR, StatusOnline, StatusDisconnected, StatusError:
		return true
	default:
		return false
	}
}

// Device represents one WhatsApp-linkable endpoint owned by a user.
// Phone and JID stay empty until the device comes online for the first time;
// status and identity fields are only ever written by the connection supervisor.
type Device struct {
	bun.BaseModel `bun:"table:user_devices,alias:d"`

	ID        DeviceID     `bun:",pk" json:"id"`
	UserID    UserID       `bun:"user_id,notnull" json:"user_id"`
	Name      string       `bun:"device_name,notnull" json:"name"`
	Phone     string       `bun:"phone" json:"phone,omitempty"`
	JID       string       `bun:"jid" json:"jid,omitempty"`
	Status    DeviceStatus `bun:",default:'offline'" json:"status"`
	LastSeen  *time.Time   `bun:"last_seen,nullzero" json:"last_seen,omitempty"`
	CreatedAt time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// NewDevice creates a new device for the given user
func NewDevice(userID UserID, name string) *Device {
	now := time.Now()
	return &Device{
		ID:        NewDeviceID(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		Status:    StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsOnline reports whether the device is currently linked and connected
func (d *Device) IsOnline() bool {
	return d.Status == StatusOnline
}

// IsPaired reports whether the device completed pairing at least once
func (d *Device) IsPaired() bool {
	return d.JID != ""
}

// StatusProjector persists externally observable device state. Empty phone
// or jid arguments must not overwrite values stored earlier.
type StatusProjector interface {
	SetStatus(ctx context.Context, id DeviceID, status DeviceStatus, phone, jid string) error
	TouchLastSeen(ctx context.Context, id DeviceID) error
}

// DeviceRepository defines persistence operations for devices
type DeviceRepository interface {
	StatusProjector

	Create(ctx context.Context, device *Device) error
	GetByID(ctx context.Context, id DeviceID) (*Device, error)
	GetByUser(ctx context.Context, userID UserID) ([]*Device, error)
	GetByStatus(ctx context.Context, status DeviceStatus) ([]*Device, error)
	CountByUser(ctx context.Context, userID UserID) (int, error)
	Delete(ctx context.Context, id DeviceID) error
}

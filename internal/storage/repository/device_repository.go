package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"walink/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

// deviceRepository implements domain.DeviceRepository on bun/PostgreSQL.
// Its SetStatus is the status projector: partial updates only, so identity
// fields persisted at pairing time survive later status flips.
type deviceRepository struct {
	db *bun.DB
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *bun.DB) domain.DeviceRepository {
	return &deviceRepository{db: db}
}

// Create stores a new device
func (r *deviceRepository) Create(ctx context.Context, device *domain.Device) error {
	if _, err := r.db.NewInsert().Model(device).Exec(ctx); err != nil {
		log.Error().Err(err).Str("device_id", device.ID.String()).Msg("Failed to create device")
		return fmt.Errorf("failed to create device: %w", err)
	}

	log.Info().
		Str("device_id", device.ID.String()).
		Str("user_id", device.UserID.String()).
		Str("name", device.Name).
		Msg("Device created")
	return nil
}

// GetByID retrieves a device by its ID
func (r *deviceRepository) GetByID(ctx context.Context, id domain.DeviceID) (*domain.Device, error) {
	device := new(domain.Device)
	err := r.db.NewSelect().
		Model(device).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDeviceNotFound(id)
		}
		log.Error().Err(err).Str("device_id", id.String()).Msg("Failed to get device by ID")
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// GetByUser retrieves all devices owned by a user
func (r *deviceRepository) GetByUser(ctx context.Context, userID domain.UserID) ([]*domain.Device, error) {
	var devices []*domain.Device
	err := r.db.NewSelect().
		Model(&devices).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to get devices by user")
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	return devices, nil
}

// GetByStatus retrieves devices by status
func (r *deviceRepository) GetByStatus(ctx context.Context, status domain.DeviceStatus) ([]*domain.Device, error) {
	var devices []*domain.Device
	err := r.db.NewSelect().
		Model(&devices).
		Where("status = ?", status).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Failed to get devices by status")
		return nil, fmt.Errorf("failed to get devices by status: %w", err)
	}

	return devices, nil
}

// CountByUser counts the devices owned by a user
func (r *deviceRepository) CountByUser(ctx context.Context, userID domain.UserID) (int, error) {
	count, err := r.db.NewSelect().
		Model((*domain.Device)(nil)).
		Where("user_id = ?", userID).
		Count(ctx)

	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to count devices")
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}

	return count, nil
}

// Delete removes a device
func (r *deviceRepository) Delete(ctx context.Context, id domain.DeviceID) error {
	result, err := r.db.NewDelete().
		Model((*domain.Device)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		log.Error().Err(err).Str("device_id", id.String()).Msg("Failed to delete device")
		return fmt.Errorf("failed to delete device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return domain.ErrDeviceNotFound(id)
	}

	log.Info().Str("device_id", id.String()).Msg("Device deleted")
	return nil
}

// SetStatus projects a supervisor transition into the device record.
// Empty phone/jid arguments are left untouched; last_seen is always bumped.
func (r *deviceRepository) SetStatus(ctx context.Context, id domain.DeviceID, status domain.DeviceStatus, phone, jid string) error {
	query := r.setStatusQuery(id, status, phone, jid, time.Now())

	if _, err := query.Exec(ctx); err != nil {
		log.Error().
			Err(err).
			Str("device_id", id.String()).
			Str("status", string(status)).
			Msg("Failed to project device status")
		return fmt.Errorf("failed to update device status: %w", err)
	}

	log.Debug().
		Str("device_id", id.String()).
		Str("status", string(status)).
		Msg("Device status projected")
	return nil
}

// setStatusQuery builds the projection update. Identity columns are only
// included when a value is present, so a status-only flip never clobbers
// the phone/jid persisted at pairing time.
func (r *deviceRepository) setStatusQuery(id domain.DeviceID, status domain.DeviceStatus, phone, jid string, now time.Time) *bun.UpdateQuery {
	query := r.db.NewUpdate().
		Model((*domain.Device)(nil)).
		Set("status = ?", status).
		Set("last_seen = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id)

	if phone != "" {
		query = query.Set("phone = ?", phone)
	}
	if jid != "" {
		query = query.Set("jid = ?", jid)
	}
	return query
}

// TouchLastSeen bumps the keep-alive timestamp
func (r *deviceRepository) TouchLastSeen(ctx context.Context, id domain.DeviceID) error {
	_, err := r.db.NewUpdate().
		Model((*domain.Device)(nil)).
		Set("last_seen = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to touch last_seen: %w", err)
	}
	return nil
}

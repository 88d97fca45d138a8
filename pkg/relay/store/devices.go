package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

// ReplaceDevice deletes all existing device rows for the user and inserts
// the given one in a single transaction. Observers see either the old
// device or the new one, never both.
func (s *GORMStore) ReplaceDevice(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	device.CreatedAt = time.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", device.UserID).Delete(&models.Device{}).Error; err != nil {
			return err
		}
		return tx.Create(device).Error
	})
}

func (s *GORMStore) GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	var device models.Device
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		First(&device).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrDeviceNotFound)
	}
	return &device, nil
}

// GetAnyDevice returns the user's device row, if any. Under the
// one-device-per-user model this is the singleton.
func (s *GORMStore) GetAnyDevice(ctx context.Context, userID string) (*models.Device, error) {
	return getByField[models.Device](s.db, ctx, "user_id", userID, models.ErrDeviceNotFound)
}

// DeleteDevice removes the (user, device) row. Deleting a device that is
// already gone is not an error, which makes logout idempotent.
func (s *GORMStore) DeleteDevice(ctx context.Context, userID, deviceID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&models.Device{}).Error
}

// TouchDevice updates the device's last-seen timestamp. Missing rows are
// ignored: the device may have been replaced by a newer login between the
// caller's existence check and this write.
func (s *GORMStore) TouchDevice(ctx context.Context, userID, deviceID string, seenAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Update("last_seen_at", seenAt).Error
}

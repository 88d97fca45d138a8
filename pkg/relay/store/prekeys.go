package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

// UpsertSignedPreKey inserts or replaces the signed pre-key identified by
// (user, keyId), then reaps all but the most recent retained keys in the
// same transaction.
func (s *GORMStore) UpsertSignedPreKey(ctx context.Context, key *models.SignedPreKey) error {
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	key.CreatedAt = time.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "key_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"public_key", "signature", "created_at"}),
		}).Create(key).Error
		if err != nil {
			return err
		}

		_, err = reapSignedPreKeysTx(tx, key.UserID, signedPreKeyRetention)
		return err
	})
}

// signedPreKeyRetention is how many signed pre-keys are kept per user.
// Recently rotated-out keys stay available so in-flight handshakes that
// fetched an older bundle can still complete.
const signedPreKeyRetention = 5

func (s *GORMStore) GetLatestSignedPreKey(ctx context.Context, userID string) (*models.SignedPreKey, error) {
	var key models.SignedPreKey
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&key).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSignedPreKeyNotFound)
	}
	return &key, nil
}

// ReapSignedPreKeys deletes all but the keep most recent signed pre-keys
// for the user and returns the number removed.
func (s *GORMStore) ReapSignedPreKeys(ctx context.Context, userID string, keep int) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		removed, err = reapSignedPreKeysTx(tx, userID, keep)
		return err
	})
	return removed, err
}

func reapSignedPreKeysTx(tx *gorm.DB, userID string, keep int) (int64, error) {
	var keepIDs []string
	err := tx.Model(&models.SignedPreKey{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(keep).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return 0, err
	}

	result := tx.Where("user_id = ? AND id NOT IN ?", userID, keepIDs).
		Delete(&models.SignedPreKey{})
	return result.RowsAffected, result.Error
}

// CreateOneTimePreKeys batch-inserts one-time pre-keys. Uniqueness on
// (user, keyId) is enforced by the store.
func (s *GORMStore) CreateOneTimePreKeys(ctx context.Context, keys []*models.OneTimePreKey) error {
	if len(keys) == 0 {
		return nil
	}
	now := time.Now()
	for _, key := range keys {
		if key.ID == "" {
			key.ID = uuid.New().String()
		}
		key.CreatedAt = now
	}

	if err := s.db.WithContext(ctx).Create(keys).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicatePreKey
		}
		return err
	}
	return nil
}

// TakeOneTimePreKey atomically removes and returns the oldest one-time
// pre-key for the user. The row is locked and deleted inside a single
// transaction, so two concurrent bundle fetches always receive distinct
// keys. Returns (nil, nil) when the user has none left.
func (s *GORMStore) TakeOneTimePreKey(ctx context.Context, userID string) (*models.OneTimePreKey, error) {
	var taken *models.OneTimePreKey
	err := s.writeTx(ctx, func(tx *gorm.DB) error {
		taken = nil

		var key models.OneTimePreKey
		err := s.lockForUpdate(tx).
			Where("user_id = ?", userID).
			Order("created_at ASC, key_id ASC").
			First(&key).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Delete(&key).Error; err != nil {
			return err
		}
		taken = &key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

func (s *GORMStore) CountOneTimePreKeys(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.OneTimePreKey{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

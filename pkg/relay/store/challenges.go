package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

// CreateChallenge deletes any prior challenges for the user and inserts the
// given one in a single transaction, keeping at most one active challenge
// per user.
func (s *GORMStore) CreateChallenge(ctx context.Context, challenge *models.AuthChallenge) error {
	if challenge.ID == "" {
		challenge.ID = uuid.New().String()
	}
	challenge.CreatedAt = time.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", challenge.UserID).Delete(&models.AuthChallenge{}).Error; err != nil {
			return err
		}
		return tx.Create(challenge).Error
	})
}

// TakeChallenge atomically removes all challenge rows for the user and
// returns the most recent one that had not yet expired. Rows are deleted
// even when nothing usable is found, so a nonce can only ever be attempted
// once regardless of the signature verification outcome.
func (s *GORMStore) TakeChallenge(ctx context.Context, userID string, now time.Time) (*models.AuthChallenge, error) {
	var taken *models.AuthChallenge
	err := s.writeTx(ctx, func(tx *gorm.DB) error {
		taken = nil

		var challenge models.AuthChallenge
		err := s.lockForUpdate(tx).
			Where("user_id = ? AND expires_at > ?", userID, now).
			Order("created_at DESC").
			First(&challenge).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if delErr := tx.Where("user_id = ?", userID).Delete(&models.AuthChallenge{}).Error; delErr != nil {
			return delErr
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrChallengeNotFound
		}
		taken = &challenge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// ReapExpiredChallenges deletes challenge rows past their expiry and
// returns the number removed.
func (s *GORMStore) ReapExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.AuthChallenge{})
	return result.RowsAffected, result.Error
}

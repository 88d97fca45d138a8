package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

func (s *GORMStore) EnqueueMessage(ctx context.Context, msg *models.QueuedMessage) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return "", err
	}
	return msg.ID, nil
}

// DrainMessages atomically removes and returns up to limit of the oldest
// queued messages for the recipient, ordered by creation time ascending.
// The select and delete share one transaction with row locks, so two
// concurrent drains for the same recipient return disjoint sets.
func (s *GORMStore) DrainMessages(ctx context.Context, recipientID string, limit int) ([]*models.QueuedMessage, error) {
	var drained []*models.QueuedMessage
	err := s.writeTx(ctx, func(tx *gorm.DB) error {
		drained = nil

		var rows []*models.QueuedMessage
		err := s.lockForUpdate(tx).
			Where("recipient_id = ?", recipientID).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}

		if err := tx.Where("id IN ?", ids).Delete(&models.QueuedMessage{}).Error; err != nil {
			return err
		}

		drained = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	if drained == nil {
		drained = []*models.QueuedMessage{}
	}
	return drained, nil
}

// DeleteMessages removes the identified rows, restricted to those owned by
// the given recipient so a caller cannot erase another user's queue.
func (s *GORMStore) DeleteMessages(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Where("recipient_id = ? AND id IN ?", recipientID, ids).
		Delete(&models.QueuedMessage{})
	return result.RowsAffected, result.Error
}

// ReapExpiredMessages deletes rows past their expiry, then rows older than
// maxAge. The second pass catches rows whose expiry was set far in the
// future by a buggy or malicious client.
func (s *GORMStore) ReapExpiredMessages(ctx context.Context, now time.Time, maxAge time.Duration) (expired int64, stale int64, err error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.QueuedMessage{})
	if result.Error != nil {
		return 0, 0, result.Error
	}
	expired = result.RowsAffected

	result = s.db.WithContext(ctx).
		Where("created_at < ?", now.Add(-maxAge)).
		Delete(&models.QueuedMessage{})
	if result.Error != nil {
		return expired, 0, result.Error
	}
	stale = result.RowsAffected

	return expired, stale, nil
}

// ValidMessageID reports whether id is a well-formed UUID. Batch deletes
// reject requests containing anything else.
func ValidMessageID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

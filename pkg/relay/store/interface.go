package store

import (
	"context"
	"time"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

// UserStore provides access to registered users.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (string, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateIdentityKey(ctx context.Context, userID, publicKey string, registrationID uint32) error
	DeleteUser(ctx context.Context, userID string) error
}

// DeviceStore provides access to the single active device per user.
type DeviceStore interface {
	// ReplaceDevice deletes all existing device rows for the user and
	// inserts the given one in a single transaction. This is what enforces
	// the one-device-per-user session model.
	ReplaceDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error)
	GetAnyDevice(ctx context.Context, userID string) (*models.Device, error)
	DeleteDevice(ctx context.Context, userID, deviceID string) error
	TouchDevice(ctx context.Context, userID, deviceID string, seenAt time.Time) error
}

// PreKeyStore provides access to signed and one-time pre-keys.
type PreKeyStore interface {
	UpsertSignedPreKey(ctx context.Context, key *models.SignedPreKey) error
	GetLatestSignedPreKey(ctx context.Context, userID string) (*models.SignedPreKey, error)
	// ReapSignedPreKeys deletes all but the keep most recent signed
	// pre-keys for the user and returns the number removed.
	ReapSignedPreKeys(ctx context.Context, userID string, keep int) (int64, error)
	CreateOneTimePreKeys(ctx context.Context, keys []*models.OneTimePreKey) error
	// TakeOneTimePreKey atomically removes and returns the oldest one-time
	// pre-key for the user. Returns (nil, nil) when none remain; concurrent
	// callers never observe the same key.
	TakeOneTimePreKey(ctx context.Context, userID string) (*models.OneTimePreKey, error)
	CountOneTimePreKeys(ctx context.Context, userID string) (int64, error)
}

// ChallengeStore provides access to authentication challenges.
type ChallengeStore interface {
	// CreateChallenge deletes any prior challenges for the user and inserts
	// the given one in a single transaction.
	CreateChallenge(ctx context.Context, challenge *models.AuthChallenge) error
	// TakeChallenge atomically removes all challenge rows for the user and
	// returns the most recent one that had not yet expired. The rows are
	// deleted even when the returned error is ErrChallengeNotFound, so a
	// nonce can never be retried.
	TakeChallenge(ctx context.Context, userID string, now time.Time) (*models.AuthChallenge, error)
	ReapExpiredChallenges(ctx context.Context, now time.Time) (int64, error)
}

// MessageStore provides access to the offline message queue.
type MessageStore interface {
	EnqueueMessage(ctx context.Context, msg *models.QueuedMessage) (string, error)
	// DrainMessages atomically removes and returns up to limit of the oldest
	// queued messages for the recipient, ordered by creation time ascending.
	// Concurrent drains for the same recipient return disjoint sets.
	DrainMessages(ctx context.Context, recipientID string, limit int) ([]*models.QueuedMessage, error)
	// DeleteMessages removes the identified rows, but only those owned by
	// the given recipient. Returns the number of rows removed.
	DeleteMessages(ctx context.Context, recipientID string, ids []string) (int64, error)
	// ReapExpiredMessages deletes rows past their expiry, then rows older
	// than maxAge. Returns both counts.
	ReapExpiredMessages(ctx context.Context, now time.Time, maxAge time.Duration) (expired int64, stale int64, err error)
}

// Store is the full persistence interface of the relay.
type Store interface {
	UserStore
	DeviceStore
	PreKeyStore
	ChallengeStore
	MessageStore

	// Ping verifies database connectivity for readiness probes.
	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*GORMStore)(nil)

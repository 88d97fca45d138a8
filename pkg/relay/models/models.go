// Package models defines the persistent entities of the Quietwire relay:
// users, devices, pre-keys, authentication challenges, and the offline
// message queue. The server stores public key material and opaque
// ciphertexts only; it never holds private keys or plaintext.
package models

import (
	"time"
)

// MessageType classifies a relayed ciphertext so the recipient knows how to
// process it. The server treats the payload itself as opaque bytes.
type MessageType string

const (
	// MessageTypeSignal is a regular Double-Ratchet message within an
	// established session.
	MessageTypeSignal MessageType = "signal_message"

	// MessageTypePreKeySignal is the first message of a session, carrying
	// the X3DH handshake material alongside the ciphertext.
	MessageTypePreKeySignal MessageType = "pre_key_signal_message"

	// MessageTypeKeyExchange is a bare key-exchange message.
	MessageTypeKeyExchange MessageType = "key_exchange"
)

// IsValid checks if the message type is one of the supported kinds.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeSignal, MessageTypePreKeySignal, MessageTypeKeyExchange:
		return true
	}
	return false
}

// User is a registered account. The identity public key is the Ed25519 key
// clients sign authentication challenges with; it may be rotated but is
// never shared between users.
type User struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	Username          string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	IdentityPublicKey string    `gorm:"not null;size:64" json:"identity_public_key"`
	RegistrationID    uint32    `gorm:"not null" json:"registration_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// Device is the single active device of a user. At most one row exists per
// user at any instant: a successful challenge verification replaces all
// prior rows in the same transaction, which is what remotely logs out the
// previous session.
type Device struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	UserID            string     `gorm:"index;not null;size:36" json:"user_id"`
	DeviceID          string     `gorm:"not null;size:255" json:"device_id"`
	IdentityPublicKey string     `gorm:"not null;size:64" json:"identity_public_key"`
	RegistrationID    uint32     `gorm:"not null" json:"registration_id"`
	DeviceName        string     `gorm:"size:255" json:"device_name,omitempty"`
	FCMToken          string     `gorm:"size:512" json:"-"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Device.
func (Device) TableName() string {
	return "devices"
}

// SignedPreKey is a medium-lived X25519 public key authenticated by the
// owner's Ed25519 identity signature. The latest key per user is served in
// pre-key bundles; only the most recent few are retained.
type SignedPreKey struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index:idx_signed_pre_keys_user_key,unique;not null;size:36" json:"user_id"`
	KeyID     uint32    `gorm:"index:idx_signed_pre_keys_user_key,unique;not null" json:"key_id"`
	PublicKey string    `gorm:"not null" json:"public_key"`
	Signature string    `gorm:"not null" json:"signature"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for SignedPreKey.
func (SignedPreKey) TableName() string {
	return "signed_pre_keys"
}

// OneTimePreKey is a single-use X25519 public key. A bundle fetch that
// includes it deletes the row in the same transaction, so no two handshakes
// ever observe the same key.
type OneTimePreKey struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index:idx_one_time_pre_keys_user_key,unique;not null;size:36" json:"user_id"`
	KeyID     uint32    `gorm:"index:idx_one_time_pre_keys_user_key,unique;not null" json:"key_id"`
	PublicKey string    `gorm:"not null" json:"public_key"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for OneTimePreKey.
func (OneTimePreKey) TableName() string {
	return "one_time_pre_keys"
}

// AuthChallenge is a short-lived login nonce. At most one non-expired row
// exists per user; issuing a new challenge deletes prior rows in the same
// transaction, and verification consumes the row regardless of outcome.
type AuthChallenge struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index;not null;size:36" json:"user_id"`
	Nonce     string    `gorm:"not null;size:64" json:"nonce"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for AuthChallenge.
func (AuthChallenge) TableName() string {
	return "auth_challenges"
}

// IsExpired reports whether the challenge has passed its expiry.
func (c *AuthChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// QueuedMessage is a ciphertext awaiting an offline recipient. Rows are
// drained with an atomic fetch-and-delete so a message is handed to a
// client at most once.
type QueuedMessage struct {
	ID               string      `gorm:"primaryKey;size:36" json:"id"`
	RecipientID      string      `gorm:"index:idx_queued_messages_recipient_created;not null;size:36" json:"recipient_id"`
	SenderID         string      `gorm:"index;not null;size:36" json:"sender_id"`
	EncryptedPayload []byte      `gorm:"not null" json:"-"`
	MessageType      MessageType `gorm:"not null;size:32;default:signal_message" json:"message_type"`
	FileReference    string      `gorm:"size:512" json:"file_reference,omitempty"`
	CreatedAt        time.Time   `gorm:"index:idx_queued_messages_recipient_created;autoCreateTime" json:"created_at"`
	ExpiresAt        time.Time   `gorm:"index;not null" json:"expires_at"`
}

// TableName returns the table name for QueuedMessage.
func (QueuedMessage) TableName() string {
	return "queued_messages"
}

// AllModels returns every model for GORM AutoMigrate.
func AllModels() []any {
	return []any{
		&User{},
		&Device{},
		&SignedPreKey{},
		&OneTimePreKey{},
		&AuthChallenge{},
		&QueuedMessage{},
	}
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

// createTestStore creates an in-memory SQLite store for testing.
func createTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := New(&Config{
		Type: DatabaseTypeSQLite,
		SQLite: SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// createFileTestStore creates a SQLite store backed by a temp file, so
// every pooled connection sees the same database. Concurrency tests need
// this; single-goroutine tests use the in-memory store.
func createFileTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := New(&Config{
		Type: DatabaseTypeSQLite,
		SQLite: SQLiteConfig{
			Path: filepath.Join(t.TempDir(), "relay.db"),
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// createTestUser registers a user with defaults suitable for tests.
func createTestUser(t *testing.T, s *GORMStore, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username:          username,
		IdentityPublicKey: "dGVzdC1pZGVudGl0eS1rZXk=",
		RegistrationID:    1234,
	}
	if _, err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user %q: %v", username, err)
	}
	return user
}

func TestNew(t *testing.T) {
	t.Run("default config uses sqlite", func(t *testing.T) {
		config := &Config{}
		config.ApplyDefaults()

		if config.Type != DatabaseTypeSQLite {
			t.Errorf("expected SQLite, got %s", config.Type)
		}
	})

	t.Run("invalid config returns error", func(t *testing.T) {
		config := &Config{
			Type: "invalid",
		}
		_, err := New(config)
		if err == nil {
			t.Error("expected error for invalid config")
		}
	})

	t.Run("creates in-memory store", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestUserOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("create user", func(t *testing.T) {
		user := &models.User{
			Username:          "alice",
			IdentityPublicKey: "a2V5LWFsaWNl",
			RegistrationID:    1,
		}

		id, err := store.CreateUser(ctx, user)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		if id == "" {
			t.Error("expected non-empty user ID")
		}
	})

	t.Run("duplicate username fails", func(t *testing.T) {
		user := &models.User{
			Username:          "alice",
			IdentityPublicKey: "b3RoZXIta2V5",
			RegistrationID:    2,
		}

		_, err := store.CreateUser(ctx, user)
		if !errors.Is(err, models.ErrDuplicateUser) {
			t.Errorf("expected ErrDuplicateUser, got %v", err)
		}
	})

	t.Run("get user by username", func(t *testing.T) {
		user, err := store.GetUser(ctx, "alice")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if user.Username != "alice" {
			t.Errorf("expected username 'alice', got %q", user.Username)
		}
		if user.IdentityPublicKey != "a2V5LWFsaWNl" {
			t.Errorf("unexpected identity key %q", user.IdentityPublicKey)
		}
	})

	t.Run("get user not found", func(t *testing.T) {
		_, err := store.GetUser(ctx, "nonexistent")
		if !errors.Is(err, models.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("get user by id", func(t *testing.T) {
		byName, _ := store.GetUser(ctx, "alice")

		byID, err := store.GetUserByID(ctx, byName.ID)
		if err != nil {
			t.Fatalf("failed to get user by id: %v", err)
		}
		if byID.Username != "alice" {
			t.Errorf("expected username 'alice', got %q", byID.Username)
		}
	})

	t.Run("rotate identity key", func(t *testing.T) {
		user, _ := store.GetUser(ctx, "alice")

		err := store.UpdateIdentityKey(ctx, user.ID, "bmV3LWtleQ==", 99)
		if err != nil {
			t.Fatalf("failed to rotate identity key: %v", err)
		}

		updated, _ := store.GetUser(ctx, "alice")
		if updated.IdentityPublicKey != "bmV3LWtleQ==" {
			t.Errorf("expected rotated key, got %q", updated.IdentityPublicKey)
		}
		if updated.RegistrationID != 99 {
			t.Errorf("expected registration id 99, got %d", updated.RegistrationID)
		}
	})

	t.Run("rotate identity key of missing user", func(t *testing.T) {
		err := store.UpdateIdentityKey(ctx, "no-such-id", "a2V5", 1)
		if !errors.Is(err, models.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("delete user cascades", func(t *testing.T) {
		user := createTestUser(t, store, "cascade")

		if err := store.ReplaceDevice(ctx, &models.Device{
			UserID:            user.ID,
			DeviceID:          "dev-1",
			IdentityPublicKey: user.IdentityPublicKey,
			RegistrationID:    user.RegistrationID,
		}); err != nil {
			t.Fatalf("failed to create device: %v", err)
		}

		if err := store.DeleteUser(ctx, user.ID); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}

		if _, err := store.GetUserByID(ctx, user.ID); !errors.Is(err, models.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound after delete, got %v", err)
		}
		if _, err := store.GetAnyDevice(ctx, user.ID); !errors.Is(err, models.ErrDeviceNotFound) {
			t.Errorf("expected device rows to be removed, got %v", err)
		}
	})
}

package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

func newChallenge(userID, nonce string, expiresAt time.Time) *models.AuthChallenge {
	return &models.AuthChallenge{
		UserID:    userID,
		Nonce:     nonce,
		ExpiresAt: expiresAt,
	}
}

func challengeCount(t *testing.T, s *GORMStore, userID string) int64 {
	t.Helper()
	var count int64
	if err := s.DB().Model(&models.AuthChallenge{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count challenges: %v", err)
	}
	return count
}

func TestChallengeOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "bob")
	nonce := strings.Repeat("ab", 32)

	t.Run("create replaces prior challenges", func(t *testing.T) {
		expires := time.Now().Add(2 * time.Minute)
		if err := store.CreateChallenge(ctx, newChallenge(user.ID, nonce, expires)); err != nil {
			t.Fatalf("failed to create challenge: %v", err)
		}
		if err := store.CreateChallenge(ctx, newChallenge(user.ID, strings.Repeat("cd", 32), expires)); err != nil {
			t.Fatalf("failed to create second challenge: %v", err)
		}

		if got := challengeCount(t, store, user.ID); got != 1 {
			t.Errorf("expected exactly 1 challenge row, got %d", got)
		}
	})

	t.Run("take returns the active challenge and removes it", func(t *testing.T) {
		challenge, err := store.TakeChallenge(ctx, user.ID, time.Now())
		if err != nil {
			t.Fatalf("failed to take challenge: %v", err)
		}
		if challenge.Nonce != strings.Repeat("cd", 32) {
			t.Errorf("unexpected nonce %q", challenge.Nonce)
		}

		if got := challengeCount(t, store, user.ID); got != 0 {
			t.Errorf("expected challenge to be consumed, got %d rows", got)
		}
	})

	t.Run("take with no challenge fails", func(t *testing.T) {
		_, err := store.TakeChallenge(ctx, user.ID, time.Now())
		if !errors.Is(err, models.ErrChallengeNotFound) {
			t.Errorf("expected ErrChallengeNotFound, got %v", err)
		}
	})

	t.Run("take burns expired challenges", func(t *testing.T) {
		expired := newChallenge(user.ID, nonce, time.Now().Add(-1*time.Second))
		if err := store.CreateChallenge(ctx, expired); err != nil {
			t.Fatalf("failed to create expired challenge: %v", err)
		}

		_, err := store.TakeChallenge(ctx, user.ID, time.Now())
		if !errors.Is(err, models.ErrChallengeNotFound) {
			t.Errorf("expected ErrChallengeNotFound for expired challenge, got %v", err)
		}

		// The expired row is removed even though nothing was returned.
		if got := challengeCount(t, store, user.ID); got != 0 {
			t.Errorf("expected expired row to be burned, got %d rows", got)
		}
	})

	t.Run("reap removes only expired rows", func(t *testing.T) {
		now := time.Now()
		other := createTestUser(t, store, "mallory")

		if err := store.CreateChallenge(ctx, newChallenge(user.ID, nonce, now.Add(-1*time.Minute))); err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		if err := store.CreateChallenge(ctx, newChallenge(other.ID, nonce, now.Add(2*time.Minute))); err != nil {
			t.Fatalf("failed to create: %v", err)
		}

		reaped, err := store.ReapExpiredChallenges(ctx, now)
		if err != nil {
			t.Fatalf("failed to reap: %v", err)
		}
		if reaped != 1 {
			t.Errorf("expected 1 reaped row, got %d", reaped)
		}
		if got := challengeCount(t, store, other.ID); got != 1 {
			t.Errorf("expected live challenge to survive, got %d rows", got)
		}
	})
}

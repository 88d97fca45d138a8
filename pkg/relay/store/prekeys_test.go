package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

func TestSignedPreKeyOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "alice")

	t.Run("upsert and fetch latest", func(t *testing.T) {
		for keyID := uint32(1); keyID <= 3; keyID++ {
			err := store.UpsertSignedPreKey(ctx, &models.SignedPreKey{
				UserID:    user.ID,
				KeyID:     keyID,
				PublicKey: fmt.Sprintf("cHViJWQ=%d", keyID),
				Signature: "c2ln",
			})
			if err != nil {
				t.Fatalf("failed to upsert signed pre-key %d: %v", keyID, err)
			}
		}

		latest, err := store.GetLatestSignedPreKey(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to get latest signed pre-key: %v", err)
		}
		if latest.KeyID != 3 {
			t.Errorf("expected latest key id 3, got %d", latest.KeyID)
		}
	})

	t.Run("upsert with same key id replaces", func(t *testing.T) {
		err := store.UpsertSignedPreKey(ctx, &models.SignedPreKey{
			UserID:    user.ID,
			KeyID:     3,
			PublicKey: "cmVwbGFjZWQ=",
			Signature: "c2lnMg==",
		})
		if err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		latest, _ := store.GetLatestSignedPreKey(ctx, user.ID)
		if latest.PublicKey != "cmVwbGFjZWQ=" {
			t.Errorf("expected replaced public key, got %q", latest.PublicKey)
		}

		var count int64
		if err := store.DB().Model(&models.SignedPreKey{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3 rows after replace, got %d", count)
		}
	})

	t.Run("no signed pre-key", func(t *testing.T) {
		other := createTestUser(t, store, "empty")
		_, err := store.GetLatestSignedPreKey(ctx, other.ID)
		if !errors.Is(err, models.ErrSignedPreKeyNotFound) {
			t.Errorf("expected ErrSignedPreKeyNotFound, got %v", err)
		}
	})

	t.Run("retention keeps most recent", func(t *testing.T) {
		for keyID := uint32(4); keyID <= 10; keyID++ {
			err := store.UpsertSignedPreKey(ctx, &models.SignedPreKey{
				UserID:    user.ID,
				KeyID:     keyID,
				PublicKey: "cHVi",
				Signature: "c2ln",
			})
			if err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		}

		// Upload path reaps as it goes, so the row count never exceeds the
		// retention window.
		var count int64
		if err := store.DB().Model(&models.SignedPreKey{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != signedPreKeyRetention {
			t.Errorf("expected %d rows, got %d", signedPreKeyRetention, count)
		}

		latest, _ := store.GetLatestSignedPreKey(ctx, user.ID)
		if latest.KeyID != 10 {
			t.Errorf("expected latest key id 10, got %d", latest.KeyID)
		}
	})
}

func TestOneTimePreKeyOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "carol")

	makeKeys := func(ids ...uint32) []*models.OneTimePreKey {
		keys := make([]*models.OneTimePreKey, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, &models.OneTimePreKey{
				UserID:    user.ID,
				KeyID:     id,
				PublicKey: fmt.Sprintf("b3RrLQ==%d", id),
			})
		}
		return keys
	}

	t.Run("batch create and count", func(t *testing.T) {
		if err := store.CreateOneTimePreKeys(ctx, makeKeys(1, 2)); err != nil {
			t.Fatalf("failed to create one-time pre-keys: %v", err)
		}

		count, err := store.CountOneTimePreKeys(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 2 {
			t.Errorf("expected count 2, got %d", count)
		}
	})

	t.Run("duplicate key id fails", func(t *testing.T) {
		err := store.CreateOneTimePreKeys(ctx, makeKeys(1))
		if !errors.Is(err, models.ErrDuplicatePreKey) {
			t.Errorf("expected ErrDuplicatePreKey, got %v", err)
		}
	})

	t.Run("take consumes each key exactly once", func(t *testing.T) {
		first, err := store.TakeOneTimePreKey(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to take first key: %v", err)
		}
		second, err := store.TakeOneTimePreKey(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to take second key: %v", err)
		}

		if first == nil || second == nil {
			t.Fatal("expected two keys to be returned")
		}
		if first.KeyID == second.KeyID {
			t.Errorf("same key id %d returned twice", first.KeyID)
		}

		taken := map[uint32]bool{first.KeyID: true, second.KeyID: true}
		if !taken[1] || !taken[2] {
			t.Errorf("expected key ids 1 and 2, got %v", taken)
		}
	})

	t.Run("exhausted pool returns nil without error", func(t *testing.T) {
		key, err := store.TakeOneTimePreKey(ctx, user.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != nil {
			t.Errorf("expected nil key, got %+v", key)
		}

		count, _ := store.CountOneTimePreKeys(ctx, user.ID)
		if count != 0 {
			t.Errorf("expected count 0, got %d", count)
		}
	})
}

// Concurrent bundle fetches must never hand the same one-time pre-key to
// two callers: every take locks and deletes the row in one transaction.
func TestConcurrentOneTimePreKeyTakes(t *testing.T) {
	store := createFileTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "carol")

	const poolSize = 20
	keys := make([]*models.OneTimePreKey, poolSize)
	for i := range keys {
		keys[i] = &models.OneTimePreKey{
			UserID:    user.ID,
			KeyID:     uint32(i + 1),
			PublicKey: fmt.Sprintf("b3RrLSVk=%d", i+1),
		}
	}
	if err := store.CreateOneTimePreKeys(ctx, keys); err != nil {
		t.Fatalf("failed to seed pool: %v", err)
	}

	const workers = 10
	served := make(chan uint32, poolSize+workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempts := 0; attempts < 200; attempts++ {
				key, err := store.TakeOneTimePreKey(ctx, user.ID)
				if err != nil {
					// Lock contention; retry.
					time.Sleep(time.Millisecond)
					continue
				}
				if key == nil {
					return
				}
				served <- key.KeyID
			}
		}()
	}
	wg.Wait()
	close(served)

	seen := make(map[uint32]bool)
	for keyID := range served {
		if seen[keyID] {
			t.Errorf("one-time pre-key %d served twice", keyID)
		}
		seen[keyID] = true
	}
	if len(seen) != poolSize {
		t.Errorf("expected %d keys served, got %d", poolSize, len(seen))
	}

	count, err := store.CountOneTimePreKeys(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to count keys: %v", err)
	}
	if count != 0 {
		t.Errorf("expected an empty pool, got %d", count)
	}
}

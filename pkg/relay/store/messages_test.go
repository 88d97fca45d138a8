package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quietwire/quietwire/pkg/relay/models"
)

func enqueueTestMessage(t *testing.T, s *GORMStore, senderID, recipientID string, payload string) string {
	t.Helper()
	id, err := s.EnqueueMessage(context.Background(), &models.QueuedMessage{
		RecipientID:      recipientID,
		SenderID:         senderID,
		EncryptedPayload: []byte(payload),
		MessageType:      models.MessageTypeSignal,
		ExpiresAt:        time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to enqueue message: %v", err)
	}
	return id
}

func TestMessageQueueOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	sender := createTestUser(t, store, "eve")
	recipient := createTestUser(t, store, "dave")

	t.Run("enqueue assigns id", func(t *testing.T) {
		id := enqueueTestMessage(t, store, sender.ID, recipient.ID, "first")
		if !ValidMessageID(id) {
			t.Errorf("expected UUID message id, got %q", id)
		}
	})

	t.Run("drain returns oldest first and empties the queue", func(t *testing.T) {
		enqueueTestMessage(t, store, sender.ID, recipient.ID, "second")
		enqueueTestMessage(t, store, sender.ID, recipient.ID, "third")

		msgs, err := store.DrainMessages(ctx, recipient.ID, 10)
		if err != nil {
			t.Fatalf("failed to drain: %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(msgs))
		}
		if string(msgs[0].EncryptedPayload) != "first" {
			t.Errorf("expected oldest message first, got %q", msgs[0].EncryptedPayload)
		}

		again, err := store.DrainMessages(ctx, recipient.ID, 10)
		if err != nil {
			t.Fatalf("failed to drain again: %v", err)
		}
		if len(again) != 0 {
			t.Errorf("expected empty second drain, got %d messages", len(again))
		}
	})

	t.Run("drain honors the limit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			enqueueTestMessage(t, store, sender.ID, recipient.ID, fmt.Sprintf("msg-%d", i))
		}

		first, err := store.DrainMessages(ctx, recipient.ID, 2)
		if err != nil {
			t.Fatalf("failed to drain: %v", err)
		}
		second, err := store.DrainMessages(ctx, recipient.ID, 10)
		if err != nil {
			t.Fatalf("failed to drain: %v", err)
		}

		if len(first) != 2 || len(second) != 3 {
			t.Fatalf("expected 2 then 3 messages, got %d then %d", len(first), len(second))
		}

		// The two drains are disjoint and cover everything queued.
		seen := map[string]bool{}
		for _, m := range append(first, second...) {
			if seen[m.ID] {
				t.Errorf("message %s drained twice", m.ID)
			}
			seen[m.ID] = true
		}
		if len(seen) != 5 {
			t.Errorf("expected 5 distinct messages, got %d", len(seen))
		}
	})

	t.Run("delete only touches the recipient's rows", func(t *testing.T) {
		mine := enqueueTestMessage(t, store, sender.ID, recipient.ID, "mine")
		theirs := enqueueTestMessage(t, store, recipient.ID, sender.ID, "theirs")

		deleted, err := store.DeleteMessages(ctx, recipient.ID, []string{mine, theirs})
		if err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if deleted != 1 {
			t.Errorf("expected 1 deleted row, got %d", deleted)
		}

		left, _ := store.DrainMessages(ctx, sender.ID, 10)
		if len(left) != 1 || left[0].ID != theirs {
			t.Errorf("expected the other recipient's message to survive")
		}
	})

	t.Run("reap removes expired and stale rows", func(t *testing.T) {
		now := time.Now()

		expired := &models.QueuedMessage{
			RecipientID:      recipient.ID,
			SenderID:         sender.ID,
			EncryptedPayload: []byte("expired"),
			MessageType:      models.MessageTypeSignal,
			ExpiresAt:        now.Add(-1 * time.Second),
		}
		if _, err := store.EnqueueMessage(ctx, expired); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}

		stale := &models.QueuedMessage{
			RecipientID:      recipient.ID,
			SenderID:         sender.ID,
			EncryptedPayload: []byte("stale"),
			MessageType:      models.MessageTypeSignal,
			ExpiresAt:        now.Add(24 * time.Hour),
		}
		if _, err := store.EnqueueMessage(ctx, stale); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		// Age the row past the retention window.
		if err := store.DB().Model(&models.QueuedMessage{}).
			Where("id = ?", stale.ID).
			Update("created_at", now.Add(-31*24*time.Hour)).Error; err != nil {
			t.Fatalf("failed to age row: %v", err)
		}

		fresh := &models.QueuedMessage{
			RecipientID:      recipient.ID,
			SenderID:         sender.ID,
			EncryptedPayload: []byte("fresh"),
			MessageType:      models.MessageTypeSignal,
			ExpiresAt:        now.Add(24 * time.Hour),
		}
		if _, err := store.EnqueueMessage(ctx, fresh); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		if err := store.DB().Model(&models.QueuedMessage{}).
			Where("id = ?", fresh.ID).
			Update("created_at", now.Add(-29*24*time.Hour)).Error; err != nil {
			t.Fatalf("failed to age row: %v", err)
		}

		expiredCount, staleCount, err := store.ReapExpiredMessages(ctx, now, 30*24*time.Hour)
		if err != nil {
			t.Fatalf("failed to reap: %v", err)
		}
		if expiredCount != 1 {
			t.Errorf("expected 1 expired row, got %d", expiredCount)
		}
		if staleCount != 1 {
			t.Errorf("expected 1 stale row, got %d", staleCount)
		}

		rest, _ := store.DrainMessages(ctx, recipient.ID, 10)
		if len(rest) != 1 || string(rest[0].EncryptedPayload) != "fresh" {
			t.Errorf("expected only the fresh message to survive, got %d rows", len(rest))
		}
	})
}

func TestValidMessageID(t *testing.T) {
	if !ValidMessageID("ab54a98c-eb1f-4b6f-8f4e-000000000000") {
		t.Error("expected UUID to be valid")
	}
	if ValidMessageID("not-a-uuid") {
		t.Error("expected arbitrary string to be invalid")
	}
	if ValidMessageID("") {
		t.Error("expected empty string to be invalid")
	}
}

// Concurrent drains for the same recipient must hand out disjoint sets:
// the select and delete share one transaction, so every queued message is
// delivered through the queue exactly once.
func TestConcurrentDrains(t *testing.T) {
	store := createFileTestStore(t)
	ctx := context.Background()
	sender := createTestUser(t, store, "eve")
	recipient := createTestUser(t, store, "dave")

	const queued = 30
	for i := 0; i < queued; i++ {
		enqueueTestMessage(t, store, sender.ID, recipient.ID, fmt.Sprintf("msg-%d", i))
	}

	const workers = 5
	drained := make(chan string, queued+workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempts := 0; attempts < 200; attempts++ {
				msgs, err := store.DrainMessages(ctx, recipient.ID, 5)
				if err != nil {
					// Lock contention; retry.
					time.Sleep(time.Millisecond)
					continue
				}
				if len(msgs) == 0 {
					return
				}
				for _, msg := range msgs {
					drained <- msg.ID
				}
			}
		}()
	}
	wg.Wait()
	close(drained)

	seen := make(map[string]bool)
	for id := range drained {
		if seen[id] {
			t.Errorf("message %s drained twice", id)
		}
		seen[id] = true
	}
	if len(seen) != queued {
		t.Errorf("expected %d messages drained, got %d", queued, len(seen))
	}
}

package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sampleDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryDocumentStoreRoundTripAndExpiry(t *testing.T) {
	store := NewMemoryDocumentStore("test")
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	doc := sampleDoc{Name: "cart", Count: 2}
	if err := store.Save(ctx, "user:1", doc, time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	doc.Count = 99

	var loaded sampleDoc
	hit, err := store.Load(ctx, "user:1", &loaded)
	if err != nil || !hit {
		t.Fatalf("load want hit got %v err=%v", hit, err)
	}
	if loaded.Count != 2 {
		t.Fatalf("stored copy should not change, got %d", loaded.Count)
	}

	now = now.Add(2 * time.Minute)
	hit, _ = store.Load(ctx, "user:1", &loaded)
	if hit {
		t.Fatalf("expired document should miss")
	}
}

func TestMemoryLockerRejectsSecondHolder(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	release, err := locker.Acquire(ctx, "checkout:1", time.Second)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if _, err := locker.Acquire(ctx, "checkout:1", time.Second); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second acquire want ErrLockHeld got %v", err)
	}
	release()
	release()
	again, err := locker.Acquire(ctx, "checkout:1", time.Second)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	again()
}

func TestLocalStockWarningFanOut(t *testing.T) {
	ctx := context.Background()
	ch, cancel := SubscribeStockWarnings(ctx, 7)
	defer cancel()

	if err := PublishStockWarning(ctx, StockWarning{ProductID: 7, Stock: 1, Threshold: 5}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	select {
	case warning := <-ch:
		if warning.Stock != 1 {
			t.Fatalf("unexpected warning: %+v", warning)
		}
	case <-time.After(time.Second):
		t.Fatalf("warning not delivered")
	}
}

package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreSetIfAbsent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.SetIfAbsent(ctx, "trigger:feed1", time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ok {
		t.Error("Expected first set to succeed")
	}

	ok, err = store.SetIfAbsent(ctx, "trigger:feed1", time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ok {
		t.Error("Expected second set within TTL to fail")
	}

	ok, _ = store.SetIfAbsent(ctx, "trigger:feed2", time.Minute)
	if !ok {
		t.Error("Expected set for a different key to succeed")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	ok, _ := store.SetIfAbsent(context.Background(), "trigger:feed1", 5*time.Minute)
	if !ok {
		t.Fatal("Expected first set to succeed")
	}

	current = current.Add(2 * time.Minute)
	ok, _ = store.SetIfAbsent(context.Background(), "trigger:feed1", 5*time.Minute)
	if ok {
		t.Error("Expected set before expiry to fail")
	}

	current = current.Add(4 * time.Minute)
	ok, _ = store.SetIfAbsent(context.Background(), "trigger:feed1", 5*time.Minute)
	if !ok {
		t.Error("Expected set after expiry to succeed")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if ok, _ := store.SetIfAbsent(ctx, "trigger:feed1", time.Minute); !ok {
		t.Fatal("Expected first set to succeed")
	}

	if err := store.Delete(ctx, "trigger:feed1"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	ok, err := store.SetIfAbsent(ctx, "trigger:feed1", time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ok {
		t.Error("Expected set after delete to succeed")
	}

	// Deleting a missing key is a no-op
	if err := store.Delete(ctx, "trigger:unknown"); err != nil {
		t.Errorf("Expected no error for a missing key, got: %v", err)
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	successes := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.SetIfAbsent(context.Background(), "trigger:feed1", time.Minute)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if ok {
				successes <- true
			}
		}()
	}

	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Errorf("Expected exactly one concurrent set to succeed, got %d", count)
	}
}

// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) *HistoryCache {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewHistoryCache(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestNewHistoryCacheInvalidURL(t *testing.T) {
	if _, err := NewHistoryCache("not-a-url"); err == nil {
		t.Error("expected error for invalid Redis URL")
	}
}

func TestNewHistoryCacheUnreachable(t *testing.T) {
	if _, err := NewHistoryCache("redis://127.0.0.1:1"); err == nil {
		t.Error("expected error for unreachable Redis server")
	}
}

func TestHistoryCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	records := []ConversationRecord{
		{SessionID: "s1", UserInput: "create a course", AIResponse: "which category?"},
	}

	if _, ok := cache.Get(ctx, "s1", 3); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.Set(ctx, "s1", 3, records)

	got, ok := cache.Get(ctx, "s1", 3)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(got) != 1 || got[0].UserInput != "create a course" {
		t.Errorf("unexpected cached records: %+v", got)
	}

	// Different limit is a different key
	if _, ok := cache.Get(ctx, "s1", 10); ok {
		t.Error("expected miss for different limit")
	}
}

func TestHistoryCacheInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "s1", 3, []ConversationRecord{{SessionID: "s1", UserInput: "a"}})
	cache.Set(ctx, "s1", 10, []ConversationRecord{{SessionID: "s1", UserInput: "a"}})
	cache.Set(ctx, "s2", 3, []ConversationRecord{{SessionID: "s2", UserInput: "b"}})

	cache.Invalidate(ctx, "s1")

	if _, ok := cache.Get(ctx, "s1", 3); ok {
		t.Error("expected s1 limit-3 entry to be invalidated")
	}
	if _, ok := cache.Get(ctx, "s1", 10); ok {
		t.Error("expected s1 limit-10 entry to be invalidated")
	}
	if _, ok := cache.Get(ctx, "s2", 3); !ok {
		t.Error("expected s2 entry to survive s1 invalidation")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var cache *HistoryCache
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "s", 3); ok {
		t.Error("nil cache must always miss")
	}
	cache.Set(ctx, "s", 3, nil)
	cache.Invalidate(ctx, "s")
	if err := cache.Close(); err != nil {
		t.Errorf("nil cache Close returned error: %v", err)
	}
}

func TestCachedStoreWriteInvalidates(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cached := NewCachedStore(store, newTestCache(t))
	ctx := context.Background()

	if err := cached.SaveConversation(ctx, ConversationRecord{SessionID: "s", UserInput: "one", AIResponse: "r"}); err != nil {
		t.Fatal(err)
	}

	// Warm the cache
	first, err := cached.GetConversationHistory(ctx, "s", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 record, got %d", len(first))
	}

	// A write must invalidate so the next read sees the new row
	if err := cached.SaveConversation(ctx, ConversationRecord{SessionID: "s", UserInput: "two", AIResponse: "r"}); err != nil {
		t.Fatal(err)
	}

	second, err := cached.GetConversationHistory(ctx, "s", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 {
		t.Errorf("expected 2 records after write-through invalidation, got %d", len(second))
	}
	if second[0].UserInput != "two" {
		t.Errorf("expected newest record first, got %q", second[0].UserInput)
	}
}

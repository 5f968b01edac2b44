// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// historyTTL bounds staleness if an invalidation is ever missed.
const historyTTL = 10 * time.Minute

// HistoryCache is an optional Redis cache in front of the conversation
// history table. A nil *HistoryCache is valid and disables caching.
type HistoryCache struct {
	client *redis.Client
	logger *log.Logger
}

// NewHistoryCache connects to Redis at redisURL (redis://host:port/db).
// Returns an error if the server is unreachable; callers may treat that as
// non-fatal and run without a cache.
func NewHistoryCache(redisURL string) (*HistoryCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := &HistoryCache{
		client: client,
		logger: log.New(os.Stdout, "[HISTORY_CACHE] ", log.LstdFlags),
	}
	c.logger.Printf("Connected to Redis: %s", redisURL)
	return c, nil
}

func historyKey(sessionID string, limit int) string {
	return fmt.Sprintf("history:%s:%d", sessionID, limit)
}

// Get returns cached history for (session, limit), or (nil, false) on miss
// or any Redis error. Errors never surface; the store is the source of
// truth.
func (c *HistoryCache) Get(ctx context.Context, sessionID string, limit int) ([]ConversationRecord, bool) {
	if c == nil {
		return nil, false
	}

	payload, err := c.client.Get(ctx, historyKey(sessionID, limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("Cache read failed for session %s: %v", sessionID, err)
		}
		return nil, false
	}

	var records []ConversationRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		c.logger.Printf("Cache entry corrupt for session %s: %v", sessionID, err)
		return nil, false
	}
	return records, true
}

// Set stores history for (session, limit). Best effort.
func (c *HistoryCache) Set(ctx context.Context, sessionID string, limit int, records []ConversationRecord) {
	if c == nil {
		return
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, historyKey(sessionID, limit), payload, historyTTL).Err(); err != nil {
		c.logger.Printf("Cache write failed for session %s: %v", sessionID, err)
	}
}

// Invalidate drops all cached history for a session. Called after every
// conversation append so readers never see a stale tail.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID string) {
	if c == nil {
		return
	}

	pattern := fmt.Sprintf("history:%s:*", sessionID)
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		c.logger.Printf("Cache invalidation scan failed for session %s: %v", sessionID, err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Printf("Cache invalidation failed for session %s: %v", sessionID, err)
	}
}

// Close releases the Redis connection.
func (c *HistoryCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// CachedStore layers a HistoryCache over a Store for the conversation
// read/write path. All other operations pass straight through to Store.
type CachedStore struct {
	*Store
	cache *HistoryCache
}

// NewCachedStore wraps a store with an optional cache (nil cache is fine).
func NewCachedStore(store *Store, cache *HistoryCache) *CachedStore {
	return &CachedStore{Store: store, cache: cache}
}

// GetConversationHistory serves from cache when possible.
func (s *CachedStore) GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]ConversationRecord, error) {
	if records, ok := s.cache.Get(ctx, sessionID, limit); ok {
		return records, nil
	}

	records, err := s.Store.GetConversationHistory(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, sessionID, limit, records)
	return records, nil
}

// SaveConversation appends and invalidates the session's cached history.
func (s *CachedStore) SaveConversation(ctx context.Context, rec ConversationRecord) error {
	if err := s.Store.SaveConversation(ctx, rec); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, rec.SessionID)
	return nil
}

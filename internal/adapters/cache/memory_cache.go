package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// MemoryCache is an in-memory implementation of core.ScoreCache
type MemoryCache struct {
	entries     map[string]*core.ScoreCacheEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[string]*core.ScoreCacheEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go runCleanup(cache, cleanupFreq, cache.stopCh, logger)
	}

	return cache
}

// Get retrieves an unexpired entry
func (c *MemoryCache) Get(ctx context.Context, key string) (*core.ScoreCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !time.Now().Before(entry.ExpiresAt) {
		return nil, core.ErrNotFound
	}
	return copyEntry(entry), nil
}

// Set stores an entry
func (c *MemoryCache) Set(ctx context.Context, entry *core.ScoreCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Key] = copyEntry(entry)
	return nil
}

// Delete removes an entry
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expiredCount := 0
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expiredCount))
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func copyEntry(e *core.ScoreCacheEntry) *core.ScoreCacheEntry {
	out := *e
	out.Scores = make(core.LabelScores, len(e.Scores))
	for label, score := range e.Scores {
		out.Scores[label] = score
	}
	return &out
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleEntry(key string, ttl time.Duration) *core.ScoreCacheEntry {
	now := time.Now().Truncate(time.Millisecond)
	return &core.ScoreCacheEntry{
		Key: key,
		Scores: core.LabelScores{
			core.LabelPaidEvent:    0.91,
			core.LabelCancellation: 0.04,
		},
		Model:     "test-model",
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func exerciseCache(t *testing.T, c core.ScoreCache) {
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, c.Set(ctx, sampleEntry("k1", time.Hour)))
	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "test-model", got.Model)
	assert.InDelta(t, 0.91, got.Scores.Score(core.LabelPaidEvent), 1e-9)

	require.NoError(t, c.Delete(ctx, "k1"))
	_, err = c.Get(ctx, "k1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryCache_Lifecycle(t *testing.T) {
	c := NewMemoryCache(zap.NewNop(), 0)
	defer c.Stop()

	exerciseCache(t, c)
}

func TestMemoryCache_Cleanup(t *testing.T) {
	c := NewMemoryCache(zap.NewNop(), 0)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleEntry("expired", -time.Minute)))
	require.NoError(t, c.Set(ctx, sampleEntry("live", time.Hour)))

	_, err := c.Get(ctx, "expired")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, c.Cleanup(ctx))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache(zap.NewNop(), 0)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleEntry("k", time.Hour)))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	got.Scores[core.LabelPaidEvent] = 0

	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.InDelta(t, 0.91, again.Scores.Score(core.LabelPaidEvent), 1e-9)
}

func TestSQLiteCache_Lifecycle(t *testing.T) {
	c, err := NewSQLiteCache(":memory:", zap.NewNop(), 0)
	require.NoError(t, err)
	defer c.Stop()

	exerciseCache(t, c)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, sampleEntry("old", -time.Minute)))
	_, err = c.Get(ctx, "old")
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, c.Cleanup(ctx))
}

func TestRedisCache_Lifecycle(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), mr.Addr(), "", 0, zap.NewNop())
	require.NoError(t, err)
	defer c.Stop()

	exerciseCache(t, c)
}

func TestRedisCache_ExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), mr.Addr(), "", 0, zap.NewNop())
	require.NoError(t, err)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleEntry("k", time.Minute)))
	assert.True(t, mr.Exists(redisKeyPrefix+"k"))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

package factory

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mikey/subscription-tracker/internal/adapters/cache"
	"github.com/mikey/subscription-tracker/internal/adapters/mailbox"
	"github.com/mikey/subscription-tracker/internal/adapters/store"
	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConfig(overrides map[string]any) *config.Config {
	v := config.NewEmptyViper()
	for k, val := range overrides {
		v.Set(k, val)
	}
	return config.NewFromViper(v)
}

func TestStoreFactory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := NewStoreFactory(newTestConfig(map[string]any{"store.type": "memory"}), zap.NewNop()).CreateStore()
		require.NoError(t, err)
		assert.IsType(t, &store.MemoryStore{}, s)
	})

	t.Run("sqlite in memory", func(t *testing.T) {
		cfg := newTestConfig(map[string]any{"store.type": "sqlite", "store.sqlite_path": ":memory:"})
		s, err := NewStoreFactory(cfg, zap.NewNop()).CreateStore()
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &store.SQLStore{}, s)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := NewStoreFactory(newTestConfig(map[string]any{"store.type": "etcd"}), zap.NewNop()).CreateStore()
		assert.EqualError(t, err, "unsupported store type: etcd")
	})
}

func TestCacheFactory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		c, err := NewCacheFactory(newTestConfig(map[string]any{"cache.enabled": false}), zap.NewNop()).CreateScoreCache()
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("memory", func(t *testing.T) {
		cfg := newTestConfig(map[string]any{"cache.type": "memory", "cache.cleanup_frequency": "0s"})
		c, err := NewCacheFactory(cfg, zap.NewNop()).CreateScoreCache()
		require.NoError(t, err)
		require.IsType(t, &cache.MemoryCache{}, c)
		c.(*cache.MemoryCache).Stop()
	})

	t.Run("redis", func(t *testing.T) {
		srv := miniredis.RunT(t)
		cfg := newTestConfig(map[string]any{"cache.type": "redis", "cache.redis_addr": srv.Addr()})
		c, err := NewCacheFactory(cfg, zap.NewNop()).CreateScoreCache()
		require.NoError(t, err)
		require.IsType(t, &cache.RedisCache{}, c)
		c.(*cache.RedisCache).Stop()
	})

	t.Run("invalid ttl", func(t *testing.T) {
		_, err := NewCacheFactory(newTestConfig(map[string]any{"cache.ttl": "weekly"}), zap.NewNop()).CreateScoreCache()
		assert.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := NewCacheFactory(newTestConfig(map[string]any{"cache.type": "memcached"}), zap.NewNop()).CreateScoreCache()
		assert.EqualError(t, err, "unsupported cache type: memcached")
	})
}

func TestMailboxFactory(t *testing.T) {
	t.Run("eml dir without spool", func(t *testing.T) {
		f := NewMailboxFactory(newTestConfig(map[string]any{"mailbox.eml_dir": t.TempDir()}), zap.NewNop())
		assert.Nil(t, f.CreateSpool())
		mb, err := f.CreateMailbox(nil)
		require.NoError(t, err)
		assert.IsType(t, &mailbox.EmlDirMailbox{}, mb)
	})

	t.Run("eml dir combined with spool", func(t *testing.T) {
		f := NewMailboxFactory(newTestConfig(map[string]any{
			"mailbox.eml_dir":    t.TempDir(),
			"smtp_spool.enabled": true,
		}), zap.NewNop())
		spool := f.CreateSpool()
		require.NotNil(t, spool)
		mb, err := f.CreateMailbox(spool)
		require.NoError(t, err)
		assert.IsType(t, &mailbox.CombinedMailbox{}, mb)
	})

	t.Run("imap requires server", func(t *testing.T) {
		f := NewMailboxFactory(newTestConfig(map[string]any{"mailbox.type": "imap"}), zap.NewNop())
		_, err := f.CreateMailbox(nil)
		assert.Error(t, err)
	})

	t.Run("spool type requires spool", func(t *testing.T) {
		f := NewMailboxFactory(newTestConfig(map[string]any{"mailbox.type": "smtp_spool"}), zap.NewNop())
		_, err := f.CreateMailbox(nil)
		assert.Error(t, err)
	})
}

package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/subscription-tracker/internal/adapters/cache"
	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// CacheFactory creates classification caches based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateScoreCache creates a cache based on the configuration. The returned
// cache is nil when caching is disabled.
func (f *CacheFactory) CreateScoreCache() (core.ScoreCache, error) {
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return nil, fmt.Errorf("invalid cache configuration: %w", err)
	}
	if !cacheCfg.Enabled {
		f.logger.Info("Classification cache disabled")
		return nil, nil
	}

	switch cacheCfg.Type {
	case "memory":
		return cache.NewMemoryCache(f.logger, cacheCfg.CleanupFrequency), nil
	case "sqlite":
		if err := ensureDir(cacheCfg.SQLitePath); err != nil {
			return nil, err
		}
		return cache.NewSQLiteCache(cacheCfg.SQLitePath, f.logger, cacheCfg.CleanupFrequency)
	case "mysql":
		return cache.NewMySQLCache(cacheCfg.MySQLDSN, f.logger, cacheCfg.CleanupFrequency)
	case "redis":
		return cache.NewRedisCache(context.Background(), cacheCfg.RedisAddr, cacheCfg.RedisPassword, cacheCfg.RedisDB, f.logger)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}

// ensureDir creates the parent directory of a database file
func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create SQLite directory: %w", err)
	}
	return nil
}

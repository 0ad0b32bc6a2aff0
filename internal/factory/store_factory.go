package factory

import (
	"fmt"

	"github.com/mikey/subscription-tracker/internal/adapters/store"
	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates the pattern, feedback and ledger store
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a store based on the configuration
func (f *StoreFactory) CreateStore() (core.Store, error) {
	storeCfg := f.cfg.GetStore()

	switch storeCfg.Type {
	case "sqlite":
		if err := ensureDir(storeCfg.SQLitePath); err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
	case "memory":
		f.logger.Warn("Using in-memory store, data is lost on exit")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}

package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/adapters/store"
	"github.com/mikey/subscription-sentry/internal/config"
	"github.com/mikey/subscription-sentry/internal/core"
)

// StoreFactory creates result stores based on configuration
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

// CreateResultStore creates a result store based on the configuration
func (f *StoreFactory) CreateResultStore() (core.ResultStore, error) {
	retention, err := f.cfg.GetDuration("store.retention")
	if err != nil {
		return nil, fmt.Errorf("invalid store retention: %w", err)
	}
	dedupWindow, err := f.cfg.GetDuration("store.dedup_window")
	if err != nil {
		return nil, fmt.Errorf("invalid store dedup window: %w", err)
	}
	cleanupFreq, err := f.cfg.GetDuration("store.cleanup_frequency")
	if err != nil {
		return nil, fmt.Errorf("invalid store cleanup frequency: %w", err)
	}

	switch storeType := f.cfg.GetString("store.type"); storeType {
	case "memory":
		return store.NewMemoryStore(f.logger, retention, dedupWindow, cleanupFreq), nil
	case "sqlite":
		sqlitePath := f.cfg.GetString("store.sqlite_path")
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(sqlitePath, f.logger, retention, dedupWindow, cleanupFreq)
	case "mysql":
		return store.NewMySQLStore(f.cfg.GetString("store.mysql_dsn"), f.logger, retention, dedupWindow, cleanupFreq)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}

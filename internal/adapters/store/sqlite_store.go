package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS subscription_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service_name TEXT NOT NULL,
		regex_pattern TEXT NOT NULL,
		is_subscription INTEGER NOT NULL,
		source TEXT NOT NULL,
		approved_count INTEGER NOT NULL DEFAULT 0,
		rejected_count INTEGER NOT NULL DEFAULT 0,
		is_trusted_sender_domain INTEGER NOT NULL DEFAULT 0,
		pattern_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (service_name, regex_pattern)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patterns_polarity ON subscription_patterns(is_subscription, priority)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service_name TEXT NOT NULL,
		original_status TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		submitted_at INTEGER NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_processed ON feedback(processed)`,
	`CREATE TABLE IF NOT EXISTS user_subscriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service_name TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		start_date INTEGER NOT NULL,
		end_date INTEGER,
		status TEXT NOT NULL,
		last_email_id TEXT NOT NULL DEFAULT '',
		last_confirmation_date INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_subscriptions_key ON user_subscriptions(service_name, user_id, start_date)`,
	// at most one ACTIVE row per (service, user)
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_subscriptions_active
		ON user_subscriptions(service_name, user_id) WHERE status = 'ACTIVE'`,
}

// NewSQLiteStore opens (creating if needed) a SQLite database at dbPath.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single connection serialises writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	store, err := newSQLStore(db, "sqlite3", sqliteSchema, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened SQLite store", zap.String("path", dbPath))
	return store, nil
}

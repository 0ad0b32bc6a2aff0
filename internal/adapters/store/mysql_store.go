package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS subscription_patterns (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		service_name VARCHAR(255) NOT NULL,
		regex_pattern VARCHAR(512) NOT NULL,
		is_subscription BOOLEAN NOT NULL,
		source VARCHAR(64) NOT NULL,
		approved_count INT NOT NULL DEFAULT 0,
		rejected_count INT NOT NULL DEFAULT 0,
		is_trusted_sender_domain BOOLEAN NOT NULL DEFAULT FALSE,
		pattern_type VARCHAR(32) NOT NULL,
		priority INT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE KEY uq_pattern (service_name, regex_pattern),
		INDEX idx_patterns_polarity (is_subscription, priority)
	) DEFAULT CHARSET = utf8mb4`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		service_name VARCHAR(255) NOT NULL,
		original_status VARCHAR(64) NOT NULL DEFAULT '',
		label VARCHAR(64) NOT NULL,
		note TEXT NOT NULL,
		submitted_at BIGINT NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		INDEX idx_feedback_processed (processed)
	) DEFAULT CHARSET = utf8mb4`,
	// active_key is NULL for cancelled rows, so the unique key only binds ACTIVE rows
	`CREATE TABLE IF NOT EXISTS user_subscriptions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		service_name VARCHAR(255) NOT NULL,
		user_id VARCHAR(255) NOT NULL DEFAULT '',
		start_date BIGINT NOT NULL,
		end_date BIGINT NULL,
		status VARCHAR(16) NOT NULL,
		last_email_id VARCHAR(255) NOT NULL DEFAULT '',
		last_confirmation_date BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		active_key TINYINT AS (IF(status = 'ACTIVE', 1, NULL)) STORED,
		UNIQUE KEY uq_user_subscriptions_active (service_name, user_id, active_key),
		INDEX idx_user_subscriptions_key (service_name, user_id, start_date)
	) DEFAULT CHARSET = utf8mb4`,
}

// NewMySQLStore connects to MySQL and creates the schema if needed
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	// report matched rather than changed rows so no-op updates are not mistaken for missing rows
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	store, err := newSQLStore(db, "mysql", mysqlSchema, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to MySQL store", zap.String("address", cfg.Addr), zap.String("database", cfg.DBName))
	return store, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is a database/sql implementation of core.Store shared by the
// SQLite and MySQL adapters. Timestamps are stored as Unix milliseconds.
type SQLStore struct {
	*repos
	db     *sql.DB
	driver string
	logger *zap.Logger
}

func newSQLStore(db *sql.DB, driver string, schema []string, logger *zap.Logger) (*SQLStore, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to apply %s schema: %w", driver, err)
		}
	}
	return &SQLStore{
		repos:  &repos{q: db},
		db:     db,
		driver: driver,
		logger: logger,
	}, nil
}

// InTx runs fn in a database transaction
func (s *SQLStore) InTx(ctx context.Context, fn func(tx core.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&repos{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.String("driver", s.driver), zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// repos implements core.Repositories on top of a queryer
type repos struct {
	q queryer
}

const patternColumns = `id, service_name, regex_pattern, is_subscription, source, approved_count,
	rejected_count, is_trusted_sender_domain, pattern_type, priority, created_at, updated_at`

const subscriptionColumns = `id, service_name, user_id, start_date, end_date, status, last_email_id,
	last_confirmation_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*core.SubscriptionPattern, error) {
	var p core.SubscriptionPattern
	var source, patternType string
	var createdAt, updatedAt int64
	err := row.Scan(&p.ID, &p.ServiceName, &p.RegexPattern, &p.IsSubscription, &source, &p.ApprovedCount,
		&p.RejectedCount, &p.IsTrustedSenderDomain, &patternType, &p.Priority, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Source = core.PatternSource(source)
	p.PatternType, _ = core.ParsePatternType(patternType)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func scanSubscription(row rowScanner) (*core.UserSubscriptionRecord, error) {
	var r core.UserSubscriptionRecord
	var status string
	var start, confirmation, createdAt, updatedAt int64
	var end sql.NullInt64
	err := row.Scan(&r.ID, &r.ServiceName, &r.UserID, &start, &end, &status, &r.LastEmailIDProcessed,
		&confirmation, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = core.SubscriptionStatus(status)
	r.SubscriptionStartDate = fromMillis(start)
	if end.Valid {
		t := fromMillis(end.Int64)
		r.SubscriptionEndDate = &t
	}
	r.LastActiveConfirmationDate = fromMillis(confirmation)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

func (r *repos) queryPatterns(ctx context.Context, query string, args ...any) ([]*core.SubscriptionPattern, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*core.SubscriptionPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (r *repos) queryPattern(ctx context.Context, query string, args ...any) (*core.SubscriptionPattern, error) {
	p, err := scanPattern(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern: %w", err)
	}
	return p, nil
}

// ReliableSubscriptionPatterns returns positive patterns, highest priority first
func (r *repos) ReliableSubscriptionPatterns(ctx context.Context) ([]*core.SubscriptionPattern, error) {
	return r.queryPatterns(ctx, `
		SELECT `+patternColumns+`
		FROM subscription_patterns
		WHERE is_subscription = 1
		ORDER BY priority DESC, approved_count DESC, id ASC
	`)
}

// NonSubscriptionPatterns returns negative patterns with enough rejections
func (r *repos) NonSubscriptionPatterns(ctx context.Context, minRejectionVotes int) ([]*core.SubscriptionPattern, error) {
	return r.queryPatterns(ctx, `
		SELECT `+patternColumns+`
		FROM subscription_patterns
		WHERE is_subscription = 0 AND rejected_count > ? AND rejected_count > approved_count
		ORDER BY rejected_count DESC, priority DESC, id ASC
	`, minRejectionVotes)
}

// PatternByServiceName returns the highest priority pattern for a service, ignoring case
func (r *repos) PatternByServiceName(ctx context.Context, serviceName string) (*core.SubscriptionPattern, error) {
	return r.queryPattern(ctx, `
		SELECT `+patternColumns+`
		FROM subscription_patterns
		WHERE LOWER(service_name) = LOWER(?)
		ORDER BY priority DESC, id ASC
		LIMIT 1
	`, serviceName)
}

// PatternByKey returns the pattern with the given service name and regex
func (r *repos) PatternByKey(ctx context.Context, serviceName, regex string) (*core.SubscriptionPattern, error) {
	return r.queryPattern(ctx, `
		SELECT `+patternColumns+`
		FROM subscription_patterns
		WHERE service_name = ? AND regex_pattern = ?
	`, serviceName, regex)
}

// UpsertPattern inserts or replaces a pattern keyed on (service name, regex)
func (r *repos) UpsertPattern(ctx context.Context, p *core.SubscriptionPattern) error {
	if p.ID == 0 {
		existing, err := r.PatternByKey(ctx, p.ServiceName, p.RegexPattern)
		switch {
		case err == nil:
			p.ID = existing.ID
		case !errors.Is(err, core.ErrNotFound):
			return err
		}
	}

	patternType := core.PatternUnknown
	if p.PatternType != nil {
		patternType = p.PatternType
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	if p.ID != 0 {
		_, err := r.q.ExecContext(ctx, `
			UPDATE subscription_patterns
			SET service_name = ?, regex_pattern = ?, is_subscription = ?, source = ?, approved_count = ?,
				rejected_count = ?, is_trusted_sender_domain = ?, pattern_type = ?, priority = ?, updated_at = ?
			WHERE id = ?
		`, p.ServiceName, p.RegexPattern, p.IsSubscription, string(p.Source), p.ApprovedCount,
			p.RejectedCount, p.IsTrustedSenderDomain, patternType.String(), p.Priority, toMillis(p.UpdatedAt), p.ID)
		if err != nil {
			return fmt.Errorf("failed to update pattern: %w", err)
		}
		return nil
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO subscription_patterns (service_name, regex_pattern, is_subscription, source, approved_count,
			rejected_count, is_trusted_sender_domain, pattern_type, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ServiceName, p.RegexPattern, p.IsSubscription, string(p.Source), p.ApprovedCount,
		p.RejectedCount, p.IsTrustedSenderDomain, patternType.String(), p.Priority,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert pattern: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read pattern id: %w", err)
	}
	return nil
}

// InsertFeedback stores a feedback record
func (r *repos) InsertFeedback(ctx context.Context, f *core.FeedbackRecord) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO feedback (service_name, original_status, label, note, submitted_at, processed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.ServiceName, f.OriginalStatus, string(f.Label), f.Note, toMillis(f.SubmittedAt), f.Processed)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read feedback id: %w", err)
	}
	return nil
}

// PendingFeedback returns unprocessed feedback, oldest first
func (r *repos) PendingFeedback(ctx context.Context) ([]*core.FeedbackRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, service_name, original_status, label, note, submitted_at, processed
		FROM feedback
		WHERE processed = 0
		ORDER BY submitted_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var pending []*core.FeedbackRecord
	for rows.Next() {
		var f core.FeedbackRecord
		var label string
		var submittedAt int64
		if err := rows.Scan(&f.ID, &f.ServiceName, &f.OriginalStatus, &label, &f.Note, &submittedAt, &f.Processed); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		f.Label = core.FeedbackLabel(label)
		f.SubmittedAt = fromMillis(submittedAt)
		pending = append(pending, &f)
	}
	return pending, rows.Err()
}

// MarkFeedbackProcessed flags a feedback row as folded into the pattern store
func (r *repos) MarkFeedbackProcessed(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE feedback SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark feedback processed: %w", err)
	}
	return requireAffected(res)
}

// LatestSubscription returns the row with the latest start date
func (r *repos) LatestSubscription(ctx context.Context, serviceName, userID string) (*core.UserSubscriptionRecord, error) {
	rec, err := scanSubscription(r.q.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_subscriptions
		WHERE service_name = ? AND user_id = ?
		ORDER BY start_date DESC, id DESC
		LIMIT 1
	`, serviceName, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}
	return rec, nil
}

// InsertSubscription stores a new ledger row
func (r *repos) InsertSubscription(ctx context.Context, rec *core.UserSubscriptionRecord) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO user_subscriptions (service_name, user_id, start_date, end_date, status, last_email_id,
			last_confirmation_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ServiceName, rec.UserID, toMillis(rec.SubscriptionStartDate), nullableMillis(rec.SubscriptionEndDate),
		string(rec.Status), rec.LastEmailIDProcessed, toMillis(rec.LastActiveConfirmationDate),
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read subscription id: %w", err)
	}
	return nil
}

// UpdateSubscription rewrites a ledger row
func (r *repos) UpdateSubscription(ctx context.Context, rec *core.UserSubscriptionRecord) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE user_subscriptions
		SET start_date = ?, end_date = ?, status = ?, last_email_id = ?, last_confirmation_date = ?, updated_at = ?
		WHERE id = ?
	`, toMillis(rec.SubscriptionStartDate), nullableMillis(rec.SubscriptionEndDate), string(rec.Status),
		rec.LastEmailIDProcessed, toMillis(rec.LastActiveConfirmationDate), toMillis(rec.UpdatedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return requireAffected(res)
}

// ActiveSubscriptions returns the user's ACTIVE rows
func (r *repos) ActiveSubscriptions(ctx context.Context, userID string) ([]*core.UserSubscriptionRecord, error) {
	return r.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_subscriptions
		WHERE user_id = ? AND status = 'ACTIVE'
		ORDER BY start_date DESC, id DESC
	`, userID)
}

// Subscriptions returns every row of the user
func (r *repos) Subscriptions(ctx context.Context, userID string) ([]*core.UserSubscriptionRecord, error) {
	return r.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_subscriptions
		WHERE user_id = ?
		ORDER BY start_date DESC, id DESC
	`, userID)
}

func (r *repos) querySubscriptions(ctx context.Context, query string, args ...any) ([]*core.UserSubscriptionRecord, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var records []*core.UserSubscriptionRecord
	for rows.Next() {
		rec, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

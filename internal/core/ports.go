package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a pattern, ledger row or cache entry does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidPattern is returned when a stored regex does not compile
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrInvalidFeedback is returned for feedback with an unknown label or no service
	ErrInvalidFeedback = errors.New("invalid feedback")
	// ErrRefreshFailed wraps a whole-batch failure that is shown to the user
	ErrRefreshFailed = errors.New("refresh failed")
)

// PatternRepository persists subscription patterns
type PatternRepository interface {
	// ReliableSubscriptionPatterns returns positive patterns, highest priority first
	ReliableSubscriptionPatterns(ctx context.Context) ([]*SubscriptionPattern, error)

	// NonSubscriptionPatterns returns negative patterns whose rejected count exceeds
	// minRejectionVotes and the approved count, most rejected first
	NonSubscriptionPatterns(ctx context.Context, minRejectionVotes int) ([]*SubscriptionPattern, error)

	// PatternByServiceName returns the highest priority pattern for a service, ignoring case
	PatternByServiceName(ctx context.Context, serviceName string) (*SubscriptionPattern, error)

	// PatternByKey returns the pattern identified by service name and regex
	PatternByKey(ctx context.Context, serviceName, regex string) (*SubscriptionPattern, error)

	// UpsertPattern inserts or replaces a pattern keyed on (service name, regex)
	UpsertPattern(ctx context.Context, p *SubscriptionPattern) error
}

// FeedbackRepository persists user feedback
type FeedbackRepository interface {
	InsertFeedback(ctx context.Context, f *FeedbackRecord) error
	PendingFeedback(ctx context.Context) ([]*FeedbackRecord, error)
	MarkFeedbackProcessed(ctx context.Context, id int64) error
}

// LedgerRepository persists user subscription records
type LedgerRepository interface {
	// LatestSubscription returns the row with the latest start date for (serviceName, userID)
	LatestSubscription(ctx context.Context, serviceName, userID string) (*UserSubscriptionRecord, error)
	InsertSubscription(ctx context.Context, r *UserSubscriptionRecord) error
	UpdateSubscription(ctx context.Context, r *UserSubscriptionRecord) error
	ActiveSubscriptions(ctx context.Context, userID string) ([]*UserSubscriptionRecord, error)
	Subscriptions(ctx context.Context, userID string) ([]*UserSubscriptionRecord, error)
}

// Repositories groups the three stores that share a database
type Repositories interface {
	PatternRepository
	FeedbackRepository
	LedgerRepository
}

// Store is the persistence port. InTx runs fn atomically: every write made through
// the Repositories handed to fn is committed together or not at all.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}

// ModelBackend is implemented by every text-classification provider
type ModelBackend interface {
	// ZeroShot scores text against each candidate label
	ZeroShot(ctx context.Context, text string, labels []string) (map[string]float64, error)

	// Generate runs an instruction-following prompt and returns the raw answer
	Generate(ctx context.Context, prompt string) (string, error)

	// Name identifies the backend and model in logs and cache entries
	Name() string
}

// TextClassifier is what the core consumes. It never returns errors: failures are
// reported as ErrorScores and ("", false).
type TextClassifier interface {
	ZeroShot(ctx context.Context, text string, labels []string) LabelScores
	Generate(ctx context.Context, prompt string) (string, bool)
}

// ScoreCacheEntry is a cached zero-shot answer
type ScoreCacheEntry struct {
	Key       string
	Scores    LabelScores
	Model     string
	CachedAt  time.Time
	ExpiresAt time.Time
}

// ScoreCache caches zero-shot answers by content hash
type ScoreCache interface {
	// Get retrieves an unexpired entry, ErrNotFound otherwise
	Get(ctx context.Context, key string) (*ScoreCacheEntry, error)

	// Set stores an entry
	Set(ctx context.Context, entry *ScoreCacheEntry) error

	// Delete removes an entry
	Delete(ctx context.Context, key string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// Mailbox retrieves raw emails for the user
type Mailbox interface {
	FetchEmails(ctx context.Context, maxTotal int, onProgress ProgressFunc) ([]*RawEmail, error)
}

// Recorder receives operational measurements
type Recorder interface {
	ObserveClassification(source, event string)
	ObserveLedgerMutation(op string)
	ObserveFailure(stage string)
	ObserveFeedback(processed int)
	ObserveBatch(d time.Duration)
}

// NopRecorder discards all measurements
type NopRecorder struct{}

func (NopRecorder) ObserveClassification(string, string) {}
func (NopRecorder) ObserveLedgerMutation(string)         {}
func (NopRecorder) ObserveFailure(string)                {}
func (NopRecorder) ObserveFeedback(int)                  {}
func (NopRecorder) ObserveBatch(time.Duration)           {}

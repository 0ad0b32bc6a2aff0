package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ClassifierOptions tunes the Lifecycle Classifier
type ClassifierOptions struct {
	ConfidenceThreshold float64
	Concurrency         int
	MaxContentChars     int
	MinRejectionVotes   int
	FallbackConfidence  float64
	LLMAnalysisEnabled  bool
}

// DefaultClassifierOptions returns the standard tuning
func DefaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{
		ConfidenceThreshold: 0.75,
		Concurrency:         4,
		MaxContentChars:     500,
		MinRejectionVotes:   3,
		FallbackConfidence:  0.8,
	}
}

// LifecycleClassifier turns a batch of emails into ledger transitions.
//
// A run has two phases. Classification fans out over a bounded number of
// goroutines and only produces ClassifiedEmails. After the barrier the results
// are applied to the ledger newest first, one transaction per email, with all
// writes for a (service, user) key serialised.
type LifecycleClassifier struct {
	store      Store
	identifier *ServiceIdentifier
	classifier TextClassifier
	matcher    *PatternMatcher
	recorder   Recorder
	logger     *zap.Logger
	opts       ClassifierOptions
	locks      *keyedMutex
	now        func() time.Time
}

// NewLifecycleClassifier creates a new lifecycle classifier
func NewLifecycleClassifier(
	store Store,
	identifier *ServiceIdentifier,
	classifier TextClassifier,
	matcher *PatternMatcher,
	recorder Recorder,
	logger *zap.Logger,
	opts ClassifierOptions,
) *LifecycleClassifier {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &LifecycleClassifier{
		store:      store,
		identifier: identifier,
		classifier: classifier,
		matcher:    matcher,
		recorder:   recorder,
		logger:     logger,
		opts:       opts,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// patternSet is the pattern snapshot used for one run
type patternSet struct {
	reliable []*SubscriptionPattern
	negative []*SubscriptionPattern
}

// batchTally counts outcomes and forwards progress. Safe for concurrent use.
type batchTally struct {
	mu         sync.Mutex
	result     *BatchResult
	onProgress ProgressFunc
}

func (t *batchTally) classified() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.Processed++
	if t.onProgress != nil {
		t.onProgress(t.result.Processed, t.result.Total)
	}
}

func (t *batchTally) failed() {
	t.mu.Lock()
	t.result.Failed++
	t.mu.Unlock()
}

func (t *batchTally) applied(op ledgerOp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch op {
	case opInsert:
		t.result.Inserted++
	case opConfirm:
		t.result.Confirmed++
	case opCancel:
		t.result.Cancelled++
	case opIgnore:
		t.result.Ignored++
	case opReject:
		t.result.Rejected++
	}
}

func (t *batchTally) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.onProgress != nil {
		t.onProgress(t.result.Processed, t.result.Total)
	}
}

// ProcessBatch classifies emails for one user and applies the resulting
// transitions to the ledger. Per-email failures are logged and counted; the
// returned error is non-nil only when ctx was cancelled.
func (c *LifecycleClassifier) ProcessBatch(
	ctx context.Context,
	emails []*RawEmail,
	userID string,
	onProgress ProgressFunc,
) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{RunID: uuid.NewString(), Total: len(emails)}
	tally := &batchTally{result: result, onProgress: onProgress}
	logger := c.logger.With(zap.String("run_id", result.RunID), zap.String("user_id", userID))

	ordered := make([]*RawEmail, len(emails))
	copy(ordered, emails)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.After(ordered[j].Date)
	})

	patterns := c.loadPatterns(ctx, logger)
	logger.Info("Processing email batch",
		zap.Int("total", len(ordered)),
		zap.Int("reliable_patterns", len(patterns.reliable)),
		zap.Int("negative_patterns", len(patterns.negative)))

	classified := c.classifyAll(ctx, ordered, patterns, tally, logger)
	if err := ctx.Err(); err != nil {
		tally.finish()
		logger.Warn("Email batch cancelled during classification", zap.Int("processed", result.Processed))
		return result, err
	}

	if err := c.applyAll(ctx, classified, userID, tally, logger); err != nil {
		tally.finish()
		logger.Warn("Email batch cancelled during ledger update", zap.Error(err))
		return result, err
	}

	tally.finish()
	result.Duration = time.Since(start)
	c.recorder.ObserveBatch(result.Duration)
	logger.Info("Email batch processed",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("inserted", result.Inserted),
		zap.Int("confirmed", result.Confirmed),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("ignored", result.Ignored),
		zap.Int("rejected", result.Rejected),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (c *LifecycleClassifier) loadPatterns(ctx context.Context, logger *zap.Logger) patternSet {
	var set patternSet
	var err error
	if set.reliable, err = c.store.ReliableSubscriptionPatterns(ctx); err != nil {
		logger.Warn("Failed to load subscription patterns", zap.Error(err))
		set.reliable = nil
	}
	if set.negative, err = c.store.NonSubscriptionPatterns(ctx, c.opts.MinRejectionVotes); err != nil {
		logger.Warn("Failed to load non-subscription patterns", zap.Error(err))
		set.negative = nil
	}
	return set
}

// classifyAll runs the bounded fan-out. The returned slice keeps the input order
// and holds nil for emails that failed or were never scheduled.
func (c *LifecycleClassifier) classifyAll(
	ctx context.Context,
	emails []*RawEmail,
	patterns patternSet,
	tally *batchTally,
	logger *zap.Logger,
) []*ClassifiedEmail {
	results := make([]*ClassifiedEmail, len(emails))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, email := range emails {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Email classification panicked",
						zap.String("email_id", email.ID),
						zap.Any("panic", r))
					c.recorder.ObserveFailure("classify")
					tally.failed()
					tally.classified()
				}
			}()
			if ctx.Err() != nil {
				return nil
			}

			results[i] = c.Classify(ctx, email, patterns.reliable, patterns.negative)
			tally.classified()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Classify resolves the service and lifecycle event of a single email
func (c *LifecycleClassifier) Classify(
	ctx context.Context,
	email *RawEmail,
	reliable, negative []*SubscriptionPattern,
) *ClassifiedEmail {
	if p := c.matcher.FirstMatch(negative, email); p != nil {
		c.logger.Debug("Email suppressed by non-subscription pattern",
			zap.String("email_id", email.ID),
			zap.Int64("pattern_id", p.ID),
			zap.String("service", p.ServiceName))
		c.recorder.ObserveClassification(SourcePatternFallback, "suppressed")
		return &ClassifiedEmail{
			Email:            email,
			ServiceName:      p.ServiceName,
			MatchedPatternID: p.ID,
			Event:            EventNone,
			Scores:           LabelScores{},
			Source:           SourcePatternFallback,
			Suppressed:       true,
		}
	}

	ident := c.identifier.Identify(email, reliable)
	result := &ClassifiedEmail{
		Email:       email,
		ServiceName: ident.ServiceName,
		Source:      SourceZeroShot,
	}
	if ident.Pattern != nil {
		result.MatchedPatternID = ident.Pattern.ID
	}

	content := PrepareClassificationContent(email, c.opts.MaxContentChars)
	result.Scores = c.classifier.ZeroShot(ctx, content, LifecycleLabels)

	switch {
	case !result.Scores.IsError():
		result.PaidScore = result.Scores.Score(LabelPaidEvent)
		result.CancelScore = result.Scores.Score(LabelCancellation)
	case c.analyze(ctx, email, result):
	case ident.Pattern != nil:
		// degraded mode: only emails of a known subscription service are considered
		result.Source = SourcePatternFallback
		result.PaidScore, result.CancelScore = LexicalScores(email, c.opts.FallbackConfidence)
	default:
		result.Source = SourcePatternFallback
	}

	result.Event = DecideEvent(result.PaidScore, result.CancelScore, c.opts.ConfidenceThreshold)
	result.IsPaidSubscription = result.Event == EventPaid
	c.recorder.ObserveClassification(result.Source, result.Event.String())

	if result.Event == EventNone {
		c.logger.Debug("Email below confidence threshold",
			zap.String("email_id", email.ID),
			zap.String("service", result.ServiceName),
			zap.String("source", result.Source),
			zap.Float64("paid_score", result.PaidScore),
			zap.Float64("cancel_score", result.CancelScore))
	}
	return result
}

// analyze asks the generation capability for an EmailAnalysis and folds it into
// result. It reports whether a usable answer was obtained.
func (c *LifecycleClassifier) analyze(ctx context.Context, email *RawEmail, result *ClassifiedEmail) bool {
	if !c.opts.LLMAnalysisEnabled {
		return false
	}
	answer, ok := c.classifier.Generate(ctx, AnalysisPrompt(email, c.opts.MaxContentChars))
	if !ok {
		return false
	}
	analysis := ParseEmailAnalysis(answer)
	if analysis.Confidence <= 0 {
		return false
	}

	result.Source = SourceLLMAnalysis
	result.PaidScore, result.CancelScore = AnalysisScores(analysis)
	return true
}

// applyAll groups results by ledger key and applies each group newest first.
// Groups are independent and may be applied concurrently.
func (c *LifecycleClassifier) applyAll(
	ctx context.Context,
	classified []*ClassifiedEmail,
	userID string,
	tally *batchTally,
	logger *zap.Logger,
) error {
	var keys []string
	groups := make(map[string][]*ClassifiedEmail)
	for _, ce := range classified {
		if ce == nil || ce.Event == EventNone {
			continue
		}
		key := ledgerKey(ce.ServiceName, userID)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], ce)
	}

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, key := range keys {
		group := groups[key]
		g.Go(func() error {
			unlock := c.locks.Lock(key)
			defer unlock()

			for _, ce := range group {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := c.apply(ctx, ce, userID, tally, logger); err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return err
					}
					logger.Error("Failed to apply ledger transition",
						zap.String("email_id", ce.Email.ID),
						zap.String("service", ce.ServiceName),
						zap.Error(err))
					c.recorder.ObserveFailure("apply")
					tally.failed()
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// apply runs one email's transition inside its own transaction
func (c *LifecycleClassifier) apply(
	ctx context.Context,
	ce *ClassifiedEmail,
	userID string,
	tally *batchTally,
	logger *zap.Logger,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger transition panicked: %v", r)
		}
	}()

	var decision ledgerDecision
	err = c.store.InTx(ctx, func(tx Repositories) error {
		latest, err := tx.LatestSubscription(ctx, ce.ServiceName, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to load latest subscription: %w", err)
		}
		if errors.Is(err, ErrNotFound) {
			latest = nil
		}

		decision = ce.Event.decide(latest, ce, userID, c.now())
		switch decision.op {
		case opInsert:
			return tx.InsertSubscription(ctx, decision.record)
		case opConfirm, opCancel:
			return tx.UpdateSubscription(ctx, decision.record)
		}
		return nil
	})
	if err != nil {
		return err
	}

	tally.applied(decision.op)
	c.recorder.ObserveLedgerMutation(decision.op.String())

	fields := []zap.Field{
		zap.String("email_id", ce.Email.ID),
		zap.String("service", ce.ServiceName),
		zap.String("event", ce.Event.String()),
		zap.Time("email_date", ce.Email.Date),
	}
	switch decision.op {
	case opInsert, opConfirm, opCancel:
		logger.Info("Ledger updated", append(fields, zap.String("op", decision.op.String()))...)
	case opReject:
		logger.Warn("Ledger transition rejected", append(fields, zap.String("reason", decision.reason))...)
	case opIgnore:
		logger.Debug("Ledger transition ignored", append(fields, zap.String("reason", decision.reason))...)
	}
	return nil
}

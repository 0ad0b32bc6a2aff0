package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FeedbackOptions tunes community consensus
type FeedbackOptions struct {
	MinVotes      int
	Supermajority float64
}

// DefaultFeedbackOptions returns the standard consensus rule
func DefaultFeedbackOptions() FeedbackOptions {
	return FeedbackOptions{MinVotes: 3, Supermajority: 0.67}
}

// FeedbackProcessor folds pending user feedback into pattern confidence
type FeedbackProcessor struct {
	store    Store
	recorder Recorder
	logger   *zap.Logger
	opts     FeedbackOptions
	now      func() time.Time
}

// NewFeedbackProcessor creates a new feedback processor
func NewFeedbackProcessor(store Store, recorder Recorder, logger *zap.Logger, opts FeedbackOptions) *FeedbackProcessor {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &FeedbackProcessor{
		store:    store,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Submit validates and stores a feedback record
func (p *FeedbackProcessor) Submit(ctx context.Context, f *FeedbackRecord) error {
	f.ServiceName = strings.TrimSpace(f.ServiceName)
	if f.ServiceName == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidFeedback)
	}
	label, ok := ParseFeedbackLabel(string(f.Label))
	if !ok {
		return fmt.Errorf("%w: unknown label %q", ErrInvalidFeedback, f.Label)
	}
	f.Label = label
	f.Processed = false
	if f.SubmittedAt.IsZero() {
		f.SubmittedAt = p.now()
	}

	if err := p.store.InsertFeedback(ctx, f); err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}
	p.logger.Info("Feedback submitted",
		zap.Int64("feedback_id", f.ID),
		zap.String("service", f.ServiceName),
		zap.String("label", string(f.Label)))
	return nil
}

// ProcessPending applies every unprocessed feedback row in one transaction and
// returns how many were processed. An ErrInvalidPattern error means a stored
// pattern is corrupt and retrying will not help.
func (p *FeedbackProcessor) ProcessPending(ctx context.Context) (int, error) {
	processed := 0
	err := p.store.InTx(ctx, func(tx Repositories) error {
		processed = 0
		pending, err := tx.PendingFeedback(ctx)
		if err != nil {
			return fmt.Errorf("failed to load pending feedback: %w", err)
		}

		for _, f := range pending {
			if err := p.applyFeedback(ctx, tx, f); err != nil {
				return fmt.Errorf("failed to apply feedback %d: %w", f.ID, err)
			}
			if err := tx.MarkFeedbackProcessed(ctx, f.ID); err != nil {
				return fmt.Errorf("failed to mark feedback %d processed: %w", f.ID, err)
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.recorder.ObserveFeedback(processed)
	if processed > 0 {
		p.logger.Info("Processed pending feedback", zap.Int("count", processed))
	}
	return processed, nil
}

func (p *FeedbackProcessor) applyFeedback(ctx context.Context, tx Repositories, f *FeedbackRecord) error {
	pattern, err := tx.PatternByServiceName(ctx, f.ServiceName)
	switch {
	case errors.Is(err, ErrNotFound):
		pattern = p.newPattern(f)
		p.logger.Info("Creating pattern from feedback",
			zap.String("service", f.ServiceName),
			zap.String("regex", pattern.RegexPattern))
	case err != nil:
		return fmt.Errorf("failed to load pattern: %w", err)
	}

	if _, err := CompilePattern(pattern.RegexPattern); err != nil {
		return fmt.Errorf("pattern %d: %w", pattern.ID, err)
	}

	ApplyVote(pattern, f.Label, p.opts)
	pattern.UpdatedAt = p.now()

	if err := tx.UpsertPattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	p.logger.Debug("Applied feedback vote",
		zap.Int64("pattern_id", pattern.ID),
		zap.String("service", pattern.ServiceName),
		zap.String("label", string(f.Label)),
		zap.Int("approved", pattern.ApprovedCount),
		zap.Int("rejected", pattern.RejectedCount),
		zap.String("source", string(pattern.Source)))
	return nil
}

func (p *FeedbackProcessor) newPattern(f *FeedbackRecord) *SubscriptionPattern {
	now := p.now()
	return &SubscriptionPattern{
		ServiceName:    f.ServiceName,
		RegexPattern:   regexp.QuoteMeta(strings.ToLower(f.ServiceName)),
		IsSubscription: f.Label.ConfirmsSubscription(),
		Source:         SourceUserFeedbackNew,
		PatternType:    PatternUnknown,
		Priority:       PriorityDefault + PriorityUserFeedbackBoost,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ApplyVote records one vote on p and resolves community consensus once enough
// votes have been cast
func ApplyVote(p *SubscriptionPattern, label FeedbackLabel, opts FeedbackOptions) {
	if label.ConfirmsSubscription() {
		p.ApprovedCount++
		p.IsSubscription = true
		if p.Source == SourceCommunityRejected && p.RejectedCount > 0 {
			p.RejectedCount--
		}
	} else {
		p.RejectedCount++
		p.IsSubscription = false
		if p.Source == SourceCommunityApproved && p.ApprovedCount > 0 {
			p.ApprovedCount--
		}
	}

	total := p.ApprovedCount + p.RejectedCount
	if total < opts.MinVotes || total == 0 {
		return
	}
	approval := float64(p.ApprovedCount) / float64(total)
	rejection := float64(p.RejectedCount) / float64(total)

	if p.IsSubscription {
		switch {
		case approval >= opts.Supermajority:
			p.Source = SourceCommunityApproved
			p.Priority = PriorityCommunityApproved
		case rejection >= opts.Supermajority:
			p.IsSubscription = false
			p.Source = SourceCommunityRejected
			p.Priority = PriorityCommunityRejected
		}
		return
	}

	switch {
	case rejection >= opts.Supermajority:
		p.Source = SourceCommunityRejected
		p.Priority = PriorityCommunityRejected
	case approval >= opts.Supermajority:
		p.IsSubscription = true
		p.Source = SourceCommunityApproved
		p.Priority = PriorityCommunityApproved
	}
}

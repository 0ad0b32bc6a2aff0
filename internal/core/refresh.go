package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// SubscriptionItem is a ledger row prepared for display
type SubscriptionItem struct {
	ID            int64              `json:"id"`
	ServiceName   string             `json:"service_name"`
	Status        SubscriptionStatus `json:"status"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       *time.Time         `json:"end_date,omitempty"`
	LastEmailDate time.Time          `json:"last_email_date"`
	LastEmailID   string             `json:"last_email_id"`
}

// RefreshReport summarises one refresh
type RefreshReport struct {
	Fetched int                 `json:"fetched"`
	Batch   *BatchResult        `json:"batch"`
	Items   []*SubscriptionItem `json:"items"`
}

// Progress milestones of a refresh, in percent
const (
	progressFetchEnd    = 25
	progressClassifyEnd = 90
)

// RefreshService runs fetch, classification and ledger loading for a user
type RefreshService struct {
	mailbox    Mailbox
	classifier *LifecycleClassifier
	feedback   *FeedbackProcessor
	ledger     LedgerRepository
	logger     *zap.Logger
	maxTotal   int
	inactivity time.Duration
	now        func() time.Time
}

// NewRefreshService creates a new refresh service
func NewRefreshService(
	mailbox Mailbox,
	classifier *LifecycleClassifier,
	feedback *FeedbackProcessor,
	ledger LedgerRepository,
	logger *zap.Logger,
	maxTotal int,
	inactivity time.Duration,
) *RefreshService {
	return &RefreshService{
		mailbox:    mailbox,
		classifier: classifier,
		feedback:   feedback,
		ledger:     ledger,
		logger:     logger,
		maxTotal:   maxTotal,
		inactivity: inactivity,
		now:        time.Now,
	}
}

// Refresh fetches the user's mailbox, classifies it and returns the updated
// subscription list. onProgress receives percentages from 0 to 100.
func (s *RefreshService) Refresh(ctx context.Context, userID string, onProgress func(percent int)) (*RefreshReport, error) {
	report := func(p int) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	report(0)

	emails, err := s.mailbox.FetchEmails(ctx, s.maxTotal, func(processed, total int) {
		report(scaleProgress(processed, total, 0, progressFetchEnd))
	})
	if err != nil {
		s.logger.Error("Failed to fetch emails", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: could not read your mailbox: %v", ErrRefreshFailed, err)
	}
	report(progressFetchEnd)

	batch, err := s.classifier.ProcessBatch(ctx, emails, userID, func(processed, total int) {
		report(scaleProgress(processed, total, progressFetchEnd, progressClassifyEnd))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: classification was interrupted: %v", ErrRefreshFailed, err)
	}
	report(progressClassifyEnd)

	items, err := s.Subscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: could not load subscriptions: %v", ErrRefreshFailed, err)
	}
	report(100)

	return &RefreshReport{Fetched: len(emails), Batch: batch, Items: items}, nil
}

// Subscriptions returns every ledger row of the user prepared for display
func (s *RefreshService) Subscriptions(ctx context.Context, userID string) ([]*SubscriptionItem, error) {
	records, err := s.ledger.Subscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	return BuildSubscriptionItems(records, s.now(), s.inactivity), nil
}

// ActiveSubscriptions returns the user's active ledger rows prepared for display
func (s *RefreshService) ActiveSubscriptions(ctx context.Context, userID string) ([]*SubscriptionItem, error) {
	records, err := s.ledger.ActiveSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscriptions: %w", err)
	}
	return BuildSubscriptionItems(records, s.now(), s.inactivity), nil
}

// SubmitFeedback stores a user verdict for later processing
func (s *RefreshService) SubmitFeedback(ctx context.Context, f *FeedbackRecord) error {
	return s.feedback.Submit(ctx, f)
}

// BuildSubscriptionItems maps ledger rows to display items. Active rows not
// confirmed within inactivity are shown as forgotten. Cancelled rows sort last,
// otherwise the most recent email comes first.
func BuildSubscriptionItems(records []*UserSubscriptionRecord, now time.Time, inactivity time.Duration) []*SubscriptionItem {
	items := make([]*SubscriptionItem, 0, len(records))
	for _, r := range records {
		item := &SubscriptionItem{
			ID:            r.ID,
			ServiceName:   r.ServiceName,
			Status:        r.Status,
			StartDate:     r.SubscriptionStartDate,
			EndDate:       r.SubscriptionEndDate,
			LastEmailDate: r.LastActiveConfirmationDate,
			LastEmailID:   r.LastEmailIDProcessed,
		}
		switch r.Status {
		case StatusCancelled:
			if r.SubscriptionEndDate != nil {
				item.LastEmailDate = *r.SubscriptionEndDate
			}
		case StatusActive:
			if inactivity > 0 && now.Sub(r.LastActiveConfirmationDate) > inactivity {
				item.Status = StatusForgotten
			}
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := items[i].Status == StatusCancelled, items[j].Status == StatusCancelled
		if ci != cj {
			return !ci
		}
		return items[i].LastEmailDate.After(items[j].LastEmailDate)
	})
	return items
}

func scaleProgress(processed, total, from, to int) int {
	if total <= 0 {
		return to
	}
	if processed > total {
		processed = total
	}
	return from + (to-from)*processed/total
}

package core

import (
	"net/mail"
	"strings"
	"sync"
	"time"
)

// contentSnippetSize is the number of body characters used when an email has no snippet
const contentSnippetSize = 500

// RawEmail represents an email message as delivered by a mailbox
type RawEmail struct {
	ID        string
	ThreadID  string
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Snippet   string
	BodyPlain string
	BodyHTML  string
	Labels    []string

	snippetOnce    sync.Once
	contentSnippet string
}

// ContentSnippet returns the provider snippet, or the first 500 characters of the
// plain-text body when no snippet is available. The value is computed once.
func (e *RawEmail) ContentSnippet() string {
	e.snippetOnce.Do(func() {
		if s := strings.TrimSpace(e.Snippet); s != "" {
			e.contentSnippet = s
			return
		}
		e.contentSnippet = truncateRunes(e.BodyPlain, contentSnippetSize)
	})
	return e.contentSnippet
}

// SenderAddress returns the lowercased address part of the From header
func (e *RawEmail) SenderAddress() string {
	if addr, err := mail.ParseAddress(e.From); err == nil {
		return strings.ToLower(addr.Address)
	}
	from := e.From
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return strings.ToLower(strings.TrimSpace(from[start+1 : start+end]))
		}
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// SenderDisplayName returns the display-name part of the From header, without quotes
func (e *RawEmail) SenderDisplayName() string {
	if addr, err := mail.ParseAddress(e.From); err == nil && addr.Name != "" {
		return strings.TrimSpace(addr.Name)
	}
	idx := strings.Index(e.From, "<")
	if idx <= 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(e.From[:idx]), `"' `)
}

// PatternSource records where a pattern came from and how far the community has validated it
type PatternSource string

const (
	SourceSeedVerified      PatternSource = "seed_verified"
	SourceCommunityApproved PatternSource = "community_approved"
	SourceCommunityRejected PatternSource = "community_rejected"
	SourceUserFeedbackNew   PatternSource = "user_feedback_new"
)

// Pattern priorities
const (
	PriorityDefault           = 30
	PriorityUserFeedbackBoost = 10
	PriorityCommunityApproved = 70
	PriorityCommunityRejected = 80
	PriorityAdminVerified     = 100
)

// SubscriptionPattern is a community-curated regex rule that maps emails to a service
type SubscriptionPattern struct {
	ID                    int64
	ServiceName           string
	RegexPattern          string
	IsSubscription        bool
	Source                PatternSource
	ApprovedCount         int
	RejectedCount         int
	IsTrustedSenderDomain bool
	PatternType           PatternType
	Priority              int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SubscriptionStatus is the persisted state of a ledger row
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusCancelled SubscriptionStatus = "CANCELLED"
	// StatusForgotten is only derived for display, it is never persisted
	StatusForgotten SubscriptionStatus = "FORGOTTEN"
)

// UserSubscriptionRecord is a ledger entry for one subscription period of a service.
// UserID is empty when the ledger is not partitioned by user.
type UserSubscriptionRecord struct {
	ID                         int64
	ServiceName                string
	UserID                     string
	SubscriptionStartDate      time.Time
	SubscriptionEndDate        *time.Time
	Status                     SubscriptionStatus
	LastEmailIDProcessed       string
	LastActiveConfirmationDate time.Time
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// FeedbackLabel is the user's verdict on a detected subscription
type FeedbackLabel string

const (
	FeedbackIsActive        FeedbackLabel = "IS_ACTIVE_SUBSCRIPTION"
	FeedbackIsForgotten     FeedbackLabel = "IS_FORGOTTEN_SUBSCRIPTION"
	FeedbackIsCancelled     FeedbackLabel = "IS_CANCELLED_SUBSCRIPTION"
	FeedbackNotSubscription FeedbackLabel = "NOT_A_SUBSCRIPTION"
)

// ParseFeedbackLabel validates a feedback label string
func ParseFeedbackLabel(s string) (FeedbackLabel, bool) {
	switch l := FeedbackLabel(strings.ToUpper(strings.TrimSpace(s))); l {
	case FeedbackIsActive, FeedbackIsForgotten, FeedbackIsCancelled, FeedbackNotSubscription:
		return l, true
	}
	return "", false
}

// ConfirmsSubscription reports whether the label is a vote for the service being a subscription
func (l FeedbackLabel) ConfirmsSubscription() bool {
	return l != FeedbackNotSubscription
}

// FeedbackRecord is a single user verdict waiting to be folded into the pattern store
type FeedbackRecord struct {
	ID             int64
	ServiceName    string
	OriginalStatus string
	Label          FeedbackLabel
	Note           string
	SubmittedAt    time.Time
	Processed      bool
}

// Lifecycle labels offered to the zero-shot classifier
const (
	LabelPaidEvent    = "paid_subscription_event"
	LabelCancellation = "paid_subscription_cancellation"
	LabelPromotional  = "promotional_or_advertisement"
	LabelFreeService  = "free_service_related"
	LabelUnrelated    = "other_unrelated"

	// LabelError is the sentinel label returned when classification failed
	LabelError = "error"
)

// LifecycleLabels is the candidate label set in the order it is sent to the classifier
var LifecycleLabels = []string{
	LabelPaidEvent,
	LabelCancellation,
	LabelPromotional,
	LabelFreeService,
	LabelUnrelated,
}

// LabelScores maps candidate labels to confidence scores in [0, 1]
type LabelScores map[string]float64

// ErrorScores is the sentinel result of a failed classification
func ErrorScores() LabelScores {
	return LabelScores{LabelError: 0.0}
}

// Score returns the score for label, 0 when absent
func (s LabelScores) Score(label string) float64 {
	return s[label]
}

// IsError reports whether the scores are the failure sentinel
func (s LabelScores) IsError() bool {
	_, ok := s[LabelError]
	return ok || len(s) == 0
}

// Top returns the highest scoring label
func (s LabelScores) Top() (string, float64) {
	best, bestScore := "", -1.0
	for label, score := range s {
		if score > bestScore || (score == bestScore && label < best) {
			best, bestScore = label, score
		}
	}
	return best, bestScore
}

// Classification sources
const (
	SourceZeroShot        = "zero_shot"
	SourceLLMAnalysis     = "llm_analysis"
	SourcePatternFallback = "pattern_fallback"
)

// ClassifiedEmail is a RawEmail annotated with the service it belongs to and the
// lifecycle event it carries
type ClassifiedEmail struct {
	Email              *RawEmail
	ServiceName        string
	MatchedPatternID   int64
	Event              LifecycleEvent
	PaidScore          float64
	CancelScore        float64
	Scores             LabelScores
	Source             string
	IsPaidSubscription bool
	Suppressed         bool
}

// EmailAnalysis is the structured answer of the instruction-following model
type EmailAnalysis struct {
	EmailIndex   int     `json:"email_index"`
	Company      string  `json:"company"`
	Subscription bool    `json:"subscription"`
	Action       string  `json:"action"`
	Date         string  `json:"date"`
	Confidence   float64 `json:"confidence"`
}

// NeutralAnalysis is returned whenever a model answer cannot be parsed
func NeutralAnalysis() EmailAnalysis {
	return EmailAnalysis{
		Company:      "Unknown",
		Subscription: false,
		Action:       "none",
		Date:         "unknown",
		Confidence:   0.0,
	}
}

// ProgressFunc receives (processed, total) updates
type ProgressFunc func(processed, total int)

// BatchResult summarises one Lifecycle Classifier run
type BatchResult struct {
	RunID     string
	Total     int
	Processed int
	Failed    int
	Inserted  int
	Confirmed int
	Cancelled int
	Ignored   int
	Rejected  int
	Duration  time.Duration
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

package core_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/adapters/store"
	"github.com/mikey/subscription-tracker/internal/blocklist"
	"github.com/mikey/subscription-tracker/internal/core"
)

const testUser = "u1"

// scriptedClassifier answers zero-shot requests by email subject
type scriptedClassifier struct {
	mu         sync.Mutex
	bySubject  map[string]core.LabelScores
	calls      int
	generated  string
	generateOK bool
}

func newScriptedClassifier() *scriptedClassifier {
	return &scriptedClassifier{bySubject: make(map[string]core.LabelScores)}
}

func (s *scriptedClassifier) on(subject string, scores core.LabelScores) *scriptedClassifier {
	s.bySubject[subject] = scores
	return s
}

func (s *scriptedClassifier) ZeroShot(ctx context.Context, text string, labels []string) core.LabelScores {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	firstLine := strings.SplitN(text, "\n", 2)[0]
	if scores, ok := s.bySubject[strings.TrimPrefix(firstLine, "Subject: ")]; ok {
		return scores
	}
	return core.LabelScores{core.LabelUnrelated: 0.9}
}

func (s *scriptedClassifier) Generate(ctx context.Context, prompt string) (string, bool) {
	return s.generated, s.generateOK
}

func paid(score float64) core.LabelScores {
	return core.LabelScores{core.LabelPaidEvent: score, core.LabelCancellation: 0.05}
}

func cancelled(score float64) core.LabelScores {
	return core.LabelScores{core.LabelPaidEvent: 0.05, core.LabelCancellation: score}
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 12, 0, 0, 0, time.UTC)
}

func email(id, from, subject string, date time.Time) *core.RawEmail {
	return &core.RawEmail{ID: id, From: from, Subject: subject, Date: date}
}

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, p := range []*core.SubscriptionPattern{
		{ServiceName: "Netflix", RegexPattern: `netflix\.com`, IsSubscription: true, Source: core.SourceSeedVerified, PatternType: core.PatternDomain, Priority: 100},
		{ServiceName: "Spotify", RegexPattern: `spotify\.com`, IsSubscription: true, Source: core.SourceSeedVerified, PatternType: core.PatternDomain, Priority: 100},
	} {
		require.NoError(t, st.UpsertPattern(ctx, p))
	}
	return st
}

func newTestClassifier(st core.Store, tc core.TextClassifier, opts core.ClassifierOptions) *core.LifecycleClassifier {
	logger := zap.NewNop()
	matcher := core.NewPatternMatcher(logger)
	identifier := core.NewServiceIdentifier(st, matcher, blocklist.NewChecker(nil, logger), logger)
	return core.NewLifecycleClassifier(st, identifier, tc, matcher, nil, logger, opts)
}

func mustRows(t *testing.T, st core.Store) []*core.UserSubscriptionRecord {
	t.Helper()
	rows, err := st.Subscriptions(context.Background(), testUser)
	require.NoError(t, err)
	return rows
}

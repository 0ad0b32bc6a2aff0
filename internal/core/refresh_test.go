package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/core"
)

type listMailbox struct {
	emails []*core.RawEmail
	err    error
}

func (m *listMailbox) FetchEmails(ctx context.Context, maxTotal int, onProgress core.ProgressFunc) ([]*core.RawEmail, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := m.emails
	if maxTotal > 0 && len(out) > maxTotal {
		out = out[:maxTotal]
	}
	for i := range out {
		onProgress(i+1, len(out))
	}
	return out, nil
}

func newRefreshService(t *testing.T, mb core.Mailbox, tc core.TextClassifier) (*core.RefreshService, core.Store) {
	t.Helper()
	st := newTestStore(t)
	logger := zap.NewNop()
	classifier := newTestClassifier(st, tc, core.DefaultClassifierOptions())
	feedback := core.NewFeedbackProcessor(st, nil, logger, core.DefaultFeedbackOptions())
	return core.NewRefreshService(mb, classifier, feedback, st, logger, 100, 0), st
}

func TestRefreshService_Refresh(t *testing.T) {
	mb := &listMailbox{emails: []*core.RawEmail{
		email("m1", "billing@netflix.com", "Your Netflix bill", day(5)),
		email("m2", "no-reply@spotify.com", "Your Spotify receipt", day(3)),
		email("m3", "no-reply@spotify.com", "Your Spotify Premium has been cancelled", day(9)),
	}}
	tc := newScriptedClassifier().
		on("Your Netflix bill", paid(0.9)).
		on("Your Spotify receipt", paid(0.9)).
		on("Your Spotify Premium has been cancelled", cancelled(0.9))
	svc, _ := newRefreshService(t, mb, tc)

	var progress []int
	report, err := svc.Refresh(context.Background(), testUser, func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 3, report.Batch.Processed)
	require.NotEmpty(t, progress)
	assert.Equal(t, 0, progress[0])
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}

	// newest first: the Spotify cancellation has no active row yet when it is applied
	require.Len(t, report.Items, 2)
	names := []string{report.Items[0].ServiceName, report.Items[1].ServiceName}
	assert.ElementsMatch(t, []string{"Netflix", "Spotify"}, names)

	active, err := svc.ActiveSubscriptions(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRefreshService_MailboxFailure(t *testing.T) {
	svc, st := newRefreshService(t, &listMailbox{err: errors.New("connection reset")}, newScriptedClassifier())

	_, err := svc.Refresh(context.Background(), testUser, nil)
	assert.ErrorIs(t, err, core.ErrRefreshFailed)
	assert.Contains(t, err.Error(), "could not read your mailbox")
	assert.Empty(t, mustRows(t, st))
}

func TestRefreshService_SubmitFeedback(t *testing.T) {
	svc, st := newRefreshService(t, &listMailbox{}, newScriptedClassifier())

	err := svc.SubmitFeedback(context.Background(), &core.FeedbackRecord{ServiceName: "Netflix", Label: "is_active_subscription"})
	require.NoError(t, err)

	pending, err := st.PendingFeedback(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, core.FeedbackIsActive, pending[0].Label)
}

func TestBuildSubscriptionItems(t *testing.T) {
	now := day(30)
	end := day(20)
	records := []*core.UserSubscriptionRecord{
		{ID: 1, ServiceName: "Hulu", Status: core.StatusCancelled, SubscriptionStartDate: day(1), SubscriptionEndDate: &end, LastActiveConfirmationDate: day(2)},
		{ID: 2, ServiceName: "Netflix", Status: core.StatusActive, SubscriptionStartDate: day(1), LastActiveConfirmationDate: day(28)},
		{ID: 3, ServiceName: "Audible", Status: core.StatusActive, SubscriptionStartDate: day(1), LastActiveConfirmationDate: day(3)},
	}

	items := core.BuildSubscriptionItems(records, now, 7*24*time.Hour)
	require.Len(t, items, 3)

	assert.Equal(t, "Netflix", items[0].ServiceName)
	assert.Equal(t, core.StatusActive, items[0].Status)
	assert.Equal(t, "Audible", items[1].ServiceName)
	assert.Equal(t, core.StatusForgotten, items[1].Status)
	assert.Equal(t, "Hulu", items[2].ServiceName)
	assert.Equal(t, core.StatusCancelled, items[2].Status)
	assert.True(t, items[2].LastEmailDate.Equal(end))

	// no inactivity threshold means nothing is forgotten
	for _, item := range core.BuildSubscriptionItems(records, now, 0) {
		assert.NotEqual(t, core.StatusForgotten, item.Status)
	}
}

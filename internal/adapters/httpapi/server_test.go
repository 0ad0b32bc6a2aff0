package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/mikey/subscription-tracker/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeService struct {
	refreshErr   error
	refreshUsers []string
	refreshCtx   []error
	deadlines    []bool
	feedback     []*core.FeedbackRecord
	items        []*core.SubscriptionItem
}

func (f *fakeService) Refresh(ctx context.Context, userID string, onProgress func(percent int)) (*core.RefreshReport, error) {
	f.refreshUsers = append(f.refreshUsers, userID)
	f.refreshCtx = append(f.refreshCtx, ctx.Err())
	_, hasDeadline := ctx.Deadline()
	f.deadlines = append(f.deadlines, hasDeadline)
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	onProgress(100)
	return &core.RefreshReport{Fetched: 3, Batch: &core.BatchResult{Total: 3, Processed: 3}, Items: f.items}, nil
}

func (f *fakeService) Subscriptions(ctx context.Context, userID string) ([]*core.SubscriptionItem, error) {
	return f.items, nil
}

func (f *fakeService) ActiveSubscriptions(ctx context.Context, userID string) ([]*core.SubscriptionItem, error) {
	var out []*core.SubscriptionItem
	for _, item := range f.items {
		if item.Status == core.StatusActive {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeService) SubmitFeedback(ctx context.Context, r *core.FeedbackRecord) error {
	if _, ok := core.ParseFeedbackLabel(string(r.Label)); !ok {
		return fmt.Errorf("%w: unknown label", core.ErrInvalidFeedback)
	}
	r.ID = int64(len(f.feedback) + 1)
	f.feedback = append(f.feedback, r)
	return nil
}

type fakeRunner struct{ processed int }

func (f *fakeRunner) ProcessPending(ctx context.Context) (int, error) { return f.processed, nil }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(svc *fakeService, pinger *fakePinger) *Server {
	return NewServer("127.0.0.1:0", "default-user", svc, &fakeRunner{processed: 2}, pinger, monitoring.NewMetrics(), zap.NewNop())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleItems() []*core.SubscriptionItem {
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	return []*core.SubscriptionItem{
		{ID: 1, ServiceName: "Netflix", Status: core.StatusActive, StartDate: start, LastEmailDate: start},
		{ID: 2, ServiceName: "Spotify", Status: core.StatusCancelled, StartDate: start, LastEmailDate: start},
	}
}

func TestServer_Health(t *testing.T) {
	rec := do(t, newTestServer(&fakeService{}, &fakePinger{}), "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestServer(&fakeService{}, &fakePinger{err: errors.New("db down")}), "GET", "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Subscriptions(t *testing.T) {
	s := newTestServer(&fakeService{items: sampleItems()}, &fakePinger{})

	rec := do(t, s, "GET", "/api/v1/subscriptions?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all subscriptionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, "u1", all.UserID)
	assert.Len(t, all.Subscriptions, 2)

	rec = do(t, s, "GET", "/api/v1/subscriptions/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active subscriptionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Equal(t, "default-user", active.UserID)
	require.Len(t, active.Subscriptions, 1)
	assert.Equal(t, "Netflix", active.Subscriptions[0].ServiceName)
}

func TestServer_Refresh(t *testing.T) {
	svc := &fakeService{items: sampleItems()}
	s := newTestServer(svc, &fakePinger{})

	rec := do(t, s, "POST", "/api/v1/refresh", `{"user_id":"u7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u7"}, svc.refreshUsers)

	var report core.RefreshReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 3, report.Fetched)
	assert.Len(t, report.Items, 2)
}

func TestServer_RefreshOutlivesCancelledRequest(t *testing.T) {
	svc := &fakeService{items: sampleItems()}
	s := newTestServer(svc, &fakePinger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/api/v1/refresh?user_id=u9", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u9"}, svc.refreshUsers)
	assert.Equal(t, []error{nil}, svc.refreshCtx)
	assert.Equal(t, []bool{true}, svc.deadlines)
}

func TestServer_RefreshFailure(t *testing.T) {
	svc := &fakeService{refreshErr: fmt.Errorf("%w: could not read your mailbox", core.ErrRefreshFailed)}
	s := newTestServer(svc, &fakePinger{})

	rec := do(t, s, "POST", "/api/v1/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not read your mailbox")
	assert.Equal(t, []string{"default-user"}, svc.refreshUsers)
}

func TestServer_Feedback(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, &fakePinger{})

	rec := do(t, s, "POST", "/api/v1/feedback", `{"service_name":"Acme","label":"IS_ACTIVE_SUBSCRIPTION"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.feedback, 1)
	assert.Equal(t, "Acme", svc.feedback[0].ServiceName)

	rec = do(t, s, "POST", "/api/v1/feedback", `{"service_name":"Acme","label":"MAYBE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/api/v1/feedback", `{"label":"IS_ACTIVE_SUBSCRIPTION"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/api/v1/feedback/process", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"processed":2}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(&fakeService{}, &fakePinger{})
	do(t, s, "GET", "/healthz", "")

	rec := do(t, s, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `subtracker_http_requests_total{endpoint="/healthz",method="GET",status_code="200"} 1`)
}

package monitoring

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.Recorder = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Recorder(t *testing.T) {
	m := NewMetrics()

	m.ObserveClassification(core.SourceZeroShot, "paid")
	m.ObserveClassification(core.SourceZeroShot, "paid")
	m.ObserveLedgerMutation("insert")
	m.ObserveFailure("classify")
	m.ObserveFeedback(4)
	m.ObserveBatch(1500 * time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `subtracker_classifications_total{event="paid",source="zero_shot"} 2`)
	assert.Contains(t, body, `subtracker_ledger_mutations_total{operation="insert"} 1`)
	assert.Contains(t, body, `subtracker_failures_total{stage="classify"} 1`)
	assert.Contains(t, body, `subtracker_feedback_processed_total 4`)
	assert.Contains(t, body, `subtracker_batch_duration_seconds_count 1`)
}

func TestMetrics_HTTPRequests(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/healthz", "200", 5*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `subtracker_http_requests_total{endpoint="/healthz",method="GET",status_code="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

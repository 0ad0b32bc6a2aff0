package core_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/adapters/cache"
	"github.com/mikey/subscription-tracker/internal/core"
)

type fakeBackend struct {
	calls    atomic.Int32
	scores   map[string]float64
	err      error
	block    bool
	panicked bool
	text     string
}

func (f *fakeBackend) ZeroShot(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	f.calls.Add(1)
	if f.panicked {
		panic("backend exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.scores, f.err
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func (f *fakeBackend) Name() string { return "fake/model" }

func TestTextClassifierAdapter_ClampsAndCaches(t *testing.T) {
	backend := &fakeBackend{scores: map[string]float64{
		core.LabelPaidEvent:    1.4,
		core.LabelCancellation: 0.2,
		"unexpected":           0.9,
	}}
	scoreCache := cache.NewMemoryCache(zap.NewNop(), 0)
	defer scoreCache.Stop()

	a := core.NewTextClassifierAdapter(backend, scoreCache, core.AdapterOptions{
		CacheEnabled: true,
		CacheTTL:     time.Hour,
	}, zap.NewNop())

	labels := []string{core.LabelPaidEvent, core.LabelCancellation}
	first := a.ZeroShot(context.Background(), "Subject: receipt", labels)
	second := a.ZeroShot(context.Background(), "Subject: receipt", labels)

	assert.Equal(t, core.LabelScores{core.LabelPaidEvent: 1.0, core.LabelCancellation: 0.2}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), backend.calls.Load())
	assert.Equal(t, 1, scoreCache.Len())
}

func TestTextClassifierAdapter_FailuresBecomeSentinels(t *testing.T) {
	labels := core.LifecycleLabels

	tests := []struct {
		name    string
		backend *fakeBackend
		opts    core.AdapterOptions
	}{
		{"backend error", &fakeBackend{err: errors.New("503 model loading")}, core.AdapterOptions{}},
		{"timeout", &fakeBackend{block: true}, core.AdapterOptions{Timeout: 20 * time.Millisecond}},
		{"panic", &fakeBackend{panicked: true}, core.AdapterOptions{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := core.NewTextClassifierAdapter(tt.backend, nil, tt.opts, zap.NewNop())

			scores := a.ZeroShot(context.Background(), "text", labels)
			assert.True(t, scores.IsError())
			assert.Equal(t, core.ErrorScores(), scores)
		})
	}
}

func TestTextClassifierAdapter_FailedScoresAreNotCached(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	scoreCache := cache.NewMemoryCache(zap.NewNop(), 0)
	defer scoreCache.Stop()

	a := core.NewTextClassifierAdapter(backend, scoreCache, core.AdapterOptions{CacheEnabled: true, CacheTTL: time.Hour}, zap.NewNop())
	a.ZeroShot(context.Background(), "text", core.LifecycleLabels)

	assert.Zero(t, scoreCache.Len())
}

func TestTextClassifierAdapter_Generate(t *testing.T) {
	a := core.NewTextClassifierAdapter(&fakeBackend{text: `{"company":"Hulu"}`}, nil, core.AdapterOptions{}, zap.NewNop())
	text, ok := a.Generate(context.Background(), "prompt")
	assert.True(t, ok)
	assert.Equal(t, `{"company":"Hulu"}`, text)

	a = core.NewTextClassifierAdapter(&fakeBackend{block: true}, nil, core.AdapterOptions{Timeout: 20 * time.Millisecond}, zap.NewNop())
	text, ok = a.Generate(context.Background(), "prompt")
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestTextClassifierAdapter_RateLimiterHonoursCancellation(t *testing.T) {
	backend := &fakeBackend{scores: map[string]float64{core.LabelPaidEvent: 0.5}}
	a := core.NewTextClassifierAdapter(backend, nil, core.AdapterOptions{RequestsPerSecond: 0.001, Burst: 1}, zap.NewNop())

	assert.False(t, a.ZeroShot(context.Background(), "one", core.LifecycleLabels).IsError())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.True(t, a.ZeroShot(ctx, "two", core.LifecycleLabels).IsError())
	assert.Equal(t, int32(1), backend.calls.Load())
}

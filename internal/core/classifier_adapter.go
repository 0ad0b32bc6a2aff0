package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdapterOptions tunes the Text Classifier Adapter
type AdapterOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	CacheEnabled      bool
	CacheTTL          time.Duration
}

// TextClassifierAdapter wraps a ModelBackend with timeouts, rate limiting and
// caching, and converts every backend failure into the neutral values the core
// expects
type TextClassifierAdapter struct {
	backend ModelBackend
	cache   ScoreCache
	limiter *rate.Limiter
	opts    AdapterOptions
	logger  *zap.Logger
}

// NewTextClassifierAdapter creates a new adapter. cache may be nil.
func NewTextClassifierAdapter(
	backend ModelBackend,
	cache ScoreCache,
	opts AdapterOptions,
	logger *zap.Logger,
) *TextClassifierAdapter {
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if !opts.CacheEnabled {
		cache = nil
	}

	return &TextClassifierAdapter{
		backend: backend,
		cache:   cache,
		limiter: limiter,
		opts:    opts,
		logger:  logger,
	}
}

// ZeroShot scores text against labels. Failures yield ErrorScores.
func (a *TextClassifierAdapter) ZeroShot(ctx context.Context, text string, labels []string) (scores LabelScores) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Zero-shot classification panicked", zap.Any("panic", r))
			scores = ErrorScores()
		}
	}()

	key := a.cacheKey(text, labels)
	if a.cache != nil {
		entry, err := a.cache.Get(ctx, key)
		if err == nil {
			a.logger.Debug("Using cached classification", zap.String("key", key))
			return entry.Scores
		}
		if !errors.Is(err, ErrNotFound) {
			a.logger.Warn("Failed to read classification cache", zap.Error(err))
		}
	}

	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	if err := a.wait(callCtx); err != nil {
		a.logger.Warn("Classification rate limiter aborted", zap.Error(err))
		return ErrorScores()
	}

	raw, err := a.backend.ZeroShot(callCtx, text, labels)
	if err != nil {
		a.logger.Warn("Zero-shot classification failed",
			zap.String("backend", a.backend.Name()),
			zap.Error(err))
		return ErrorScores()
	}

	scores = make(LabelScores, len(labels))
	for _, label := range labels {
		scores[label] = clampScore(raw[label])
	}

	if a.cache != nil {
		now := time.Now()
		entry := &ScoreCacheEntry{
			Key:       key,
			Scores:    scores,
			Model:     a.backend.Name(),
			CachedAt:  now,
			ExpiresAt: now.Add(a.opts.CacheTTL),
		}
		if err := a.cache.Set(ctx, entry); err != nil {
			a.logger.Warn("Failed to store classification in cache", zap.Error(err))
		}
	}

	return scores
}

// Generate runs prompt on the backend. ok is false on any failure.
func (a *TextClassifierAdapter) Generate(ctx context.Context, prompt string) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Text generation panicked", zap.Any("panic", r))
			text, ok = "", false
		}
	}()

	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	if err := a.wait(callCtx); err != nil {
		a.logger.Warn("Generation rate limiter aborted", zap.Error(err))
		return "", false
	}

	out, err := a.backend.Generate(callCtx, prompt)
	if err != nil {
		a.logger.Warn("Text generation failed",
			zap.String("backend", a.backend.Name()),
			zap.Error(err))
		return "", false
	}
	return out, true
}

func (a *TextClassifierAdapter) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.Timeout > 0 {
		return context.WithTimeout(ctx, a.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *TextClassifierAdapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *TextClassifierAdapter) cacheKey(text string, labels []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s", a.backend.Name(), strings.Join(labels, ","), text)
	return hex.EncodeToString(h.Sum(nil))
}

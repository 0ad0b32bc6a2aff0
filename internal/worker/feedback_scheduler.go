package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// FeedbackRunner folds pending feedback into the pattern store
type FeedbackRunner interface {
	ProcessPending(ctx context.Context) (int, error)
}

// FeedbackScheduler runs the feedback processor periodically. Transient
// failures are retried with exponential backoff, corrupt patterns are not.
type FeedbackScheduler struct {
	runner        FeedbackRunner
	logger        *zap.Logger
	initialDelay  time.Duration
	interval      time.Duration
	maxRetries    int
	retryInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeedbackScheduler creates a new scheduler
func NewFeedbackScheduler(
	runner FeedbackRunner,
	logger *zap.Logger,
	initialDelay time.Duration,
	interval time.Duration,
	maxRetries int,
	retryInterval time.Duration,
) *FeedbackScheduler {
	return &FeedbackScheduler{
		runner:        runner,
		logger:        logger,
		initialDelay:  initialDelay,
		interval:      interval,
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
	}
}

// Start launches the background loop
func (s *FeedbackScheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	s.logger.Info("Feedback scheduler started",
		zap.Duration("initial_delay", s.initialDelay),
		zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for a running pass to finish
func (s *FeedbackScheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *FeedbackScheduler) loop(ctx context.Context) {
	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}
	s.RunOnce(ctx)

	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce processes pending feedback, retrying transient failures
func (s *FeedbackScheduler) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	attempt := 0

	operation := func() error {
		attempt++
		n, err := s.runner.ProcessPending(ctx)
		if err != nil {
			if errors.Is(err, core.ErrInvalidPattern) {
				return backoff.Permanent(err)
			}
			return err
		}
		processed = n
		return nil
	}

	err := backoff.RetryNotify(operation, s.backOff(ctx), func(err error, wait time.Duration) {
		s.logger.Warn("Feedback processing failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Feedback processing gave up", zap.Int("attempts", attempt), zap.Error(err))
		}
		return 0, err
	}
	return processed, nil
}

func (s *FeedbackScheduler) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryInterval
	eb.MaxElapsedTime = 0
	retries := s.maxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

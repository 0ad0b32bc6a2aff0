package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// runCleanup periodically purges expired entries until stopCh is closed
func runCleanup(c core.ScoreCache, every time.Duration, stopCh <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}

func encodeScores(scores core.LabelScores) (string, error) {
	data, err := json.Marshal(scores)
	if err != nil {
		return "", fmt.Errorf("failed to encode scores: %w", err)
	}
	return string(data), nil
}

func decodeScores(data string) (core.LabelScores, error) {
	var scores core.LabelScores
	if err := json.Unmarshal([]byte(data), &scores); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %w", err)
	}
	return scores, nil
}

package mailbox

import (
	"context"

	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// CombinedMailbox concatenates several sources. A failing source fails the fetch.
type CombinedMailbox struct {
	sources []core.Mailbox
	logger  *zap.Logger
}

// NewCombinedMailbox creates a mailbox reading from every source in order
func NewCombinedMailbox(logger *zap.Logger, sources ...core.Mailbox) *CombinedMailbox {
	return &CombinedMailbox{sources: sources, logger: logger}
}

// FetchEmails fetches from each source until maxTotal messages are collected
func (m *CombinedMailbox) FetchEmails(ctx context.Context, maxTotal int, onProgress core.ProgressFunc) ([]*core.RawEmail, error) {
	var all []*core.RawEmail
	for _, source := range m.sources {
		remaining := 0
		if maxTotal > 0 {
			remaining = maxTotal - len(all)
			if remaining <= 0 {
				break
			}
		}

		offset := len(all)
		emails, err := source.FetchEmails(ctx, remaining, func(processed, total int) {
			if onProgress != nil {
				onProgress(offset+processed, offset+total)
			}
		})
		if err != nil {
			return nil, err
		}
		all = append(all, emails...)
	}

	m.logger.Debug("Fetched messages from combined mailbox",
		zap.Int("sources", len(m.sources)),
		zap.Int("messages", len(all)))
	return all, nil
}

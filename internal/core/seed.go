package core

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

//go:embed catalog.toml
var builtinCatalog string

// seed marker: the Netflix domain pattern with exactly this structure
const (
	markerService = "Netflix"
	markerRegex   = `netflix\.com`
)

type catalogFile struct {
	Revision int            `toml:"revision"`
	Patterns []catalogEntry `toml:"pattern"`
}

type catalogEntry struct {
	Service       string `toml:"service"`
	Regex         string `toml:"regex"`
	Type          string `toml:"type"`
	Subscription  bool   `toml:"subscription"`
	TrustedDomain bool   `toml:"trusted_domain"`
	Approved      int    `toml:"approved"`
	Rejected      int    `toml:"rejected"`
	Priority      int    `toml:"priority"`
}

// LoadCatalog decodes a pattern catalog and validates every expression
func LoadCatalog(data string) ([]*SubscriptionPattern, error) {
	var file catalogFile
	if _, err := toml.Decode(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode pattern catalog: %w", err)
	}

	patterns := make([]*SubscriptionPattern, 0, len(file.Patterns))
	for i, entry := range file.Patterns {
		if entry.Service == "" || entry.Regex == "" {
			return nil, fmt.Errorf("catalog entry %d: service and regex are required", i)
		}
		if _, err := CompilePattern(entry.Regex); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		patternType, ok := ParsePatternType(entry.Type)
		if !ok {
			return nil, fmt.Errorf("catalog entry %d: unknown pattern type %q", i, entry.Type)
		}
		priority := entry.Priority
		if priority == 0 {
			priority = PriorityDefault
		}

		patterns = append(patterns, &SubscriptionPattern{
			ServiceName:           entry.Service,
			RegexPattern:          entry.Regex,
			IsSubscription:        entry.Subscription,
			Source:                SourceSeedVerified,
			ApprovedCount:         entry.Approved,
			RejectedCount:         entry.Rejected,
			IsTrustedSenderDomain: entry.TrustedDomain,
			PatternType:           patternType,
			Priority:              priority,
		})
	}
	return patterns, nil
}

// PatternSeeder installs the built-in catalog into an empty or outdated store
type PatternSeeder struct {
	store   Store
	catalog string
	logger  *zap.Logger
}

// NewPatternSeeder creates a seeder for the built-in catalog
func NewPatternSeeder(store Store, logger *zap.Logger) *PatternSeeder {
	return &PatternSeeder{store: store, catalog: builtinCatalog, logger: logger}
}

// IsSeeded reports whether the marker pattern is present with its expected structure
func (s *PatternSeeder) IsSeeded(ctx context.Context) (bool, error) {
	p, err := s.store.PatternByKey(ctx, markerService, markerRegex)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up seed marker: %w", err)
	}
	return p.Source == SourceSeedVerified && p.PatternType == PatternDomain && p.IsSubscription, nil
}

// Seed inserts catalog patterns that are not yet stored. Existing patterns keep
// their votes. It returns the number of patterns inserted.
func (s *PatternSeeder) Seed(ctx context.Context) (int, error) {
	seeded, err := s.IsSeeded(ctx)
	if err != nil {
		return 0, err
	}
	if seeded {
		s.logger.Debug("Pattern catalog already installed")
		return 0, nil
	}

	patterns, err := LoadCatalog(s.catalog)
	if err != nil {
		return 0, err
	}

	inserted := 0
	err = s.store.InTx(ctx, func(tx Repositories) error {
		inserted = 0
		now := time.Now()
		for _, p := range patterns {
			_, err := tx.PatternByKey(ctx, p.ServiceName, p.RegexPattern)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("failed to look up pattern %q: %w", p.ServiceName, err)
			}
			p.CreatedAt, p.UpdatedAt = now, now
			if err := tx.UpsertPattern(ctx, p); err != nil {
				return fmt.Errorf("failed to insert pattern %q: %w", p.ServiceName, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Installed pattern catalog", zap.Int("inserted", inserted), zap.Int("catalog_size", len(patterns)))
	return inserted, nil
}

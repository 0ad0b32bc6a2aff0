package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/adapters/store"
	"github.com/mikey/subscription-tracker/internal/core"
)

func TestPatternSeeder_SeedsOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seeder := core.NewPatternSeeder(st, zap.NewNop())

	seeded, err := seeder.IsSeeded(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	inserted, err := seeder.Seed(ctx)
	require.NoError(t, err)
	assert.Greater(t, inserted, 10)

	seeded, err = seeder.IsSeeded(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)

	again, err := seeder.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	marker, err := st.PatternByKey(ctx, "Netflix", `netflix\.com`)
	require.NoError(t, err)
	assert.Equal(t, core.PatternDomain, marker.PatternType)
	assert.True(t, marker.IsTrustedSenderDomain)

	negative, err := st.NonSubscriptionPatterns(ctx, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, negative)
}

func TestPatternSeeder_EveryServiceHasSenderAndSubjectPatterns(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_, err := core.NewPatternSeeder(st, zap.NewNop()).Seed(ctx)
	require.NoError(t, err)

	reliable, err := st.ReliableSubscriptionPatterns(ctx)
	require.NoError(t, err)

	kinds := make(map[string]map[core.PatternType]bool)
	for _, p := range reliable {
		if kinds[p.ServiceName] == nil {
			kinds[p.ServiceName] = make(map[core.PatternType]bool)
		}
		kinds[p.ServiceName][p.PatternType] = true
	}

	assert.GreaterOrEqual(t, len(kinds), 30)
	for _, name := range []string{"SoundCloud", "Tidal", "GitLab", "Twitch", "PlayStation", "Xbox", "EA Play", "LinkedIn Premium", "Amazon Prime Video"} {
		assert.Contains(t, kinds, name)
	}
	for service, types := range kinds {
		assert.True(t, types[core.PatternSubjectKeyword], "%s has no subject keyword pattern", service)
		assert.True(t, types[core.PatternDomain] || types[core.PatternSenderEmail], "%s has no sender pattern", service)
	}
}

func TestPatternSeeder_KeepsExistingVotes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertPattern(ctx, &core.SubscriptionPattern{
		ServiceName:    "Spotify",
		RegexPattern:   `spotify\.com`,
		IsSubscription: true,
		Source:         core.SourceCommunityApproved,
		ApprovedCount:  12,
		PatternType:    core.PatternDomain,
		Priority:       core.PriorityCommunityApproved,
	}))

	_, err := core.NewPatternSeeder(st, zap.NewNop()).Seed(ctx)
	require.NoError(t, err)

	p, err := st.PatternByKey(ctx, "Spotify", `spotify\.com`)
	require.NoError(t, err)
	assert.Equal(t, 12, p.ApprovedCount)
	assert.Equal(t, core.SourceCommunityApproved, p.Source)
}

func TestLoadCatalog(t *testing.T) {
	patterns, err := core.LoadCatalog(`
[[pattern]]
service = "Acme"
regex = 'acme\.example'
type = "DOMAIN"
subscription = true
`)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, core.PriorityDefault, patterns[0].Priority)
	assert.Equal(t, core.SourceSeedVerified, patterns[0].Source)

	_, err = core.LoadCatalog(`
[[pattern]]
service = "Acme"
regex = '(acme'
type = "DOMAIN"
`)
	assert.ErrorIs(t, err, core.ErrInvalidPattern)

	_, err = core.LoadCatalog(`
[[pattern]]
service = "Acme"
regex = 'acme'
type = "HEADER"
`)
	assert.Error(t, err)
}

package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/adapters/store"
	"github.com/mikey/subscription-tracker/internal/blocklist"
	"github.com/mikey/subscription-tracker/internal/core"
)

func newIdentifier() *core.ServiceIdentifier {
	logger := zap.NewNop()
	return core.NewServiceIdentifier(store.NewMemoryStore(), core.NewPatternMatcher(logger), blocklist.NewChecker(nil, logger), logger)
}

func TestServiceIdentifier_Identify(t *testing.T) {
	reliable := []*core.SubscriptionPattern{
		{ID: 1, ServiceName: "Netflix", RegexPattern: `netflix\.com`, IsSubscription: true, PatternType: core.PatternDomain},
	}

	tests := []struct {
		name    string
		from    string
		subject string
		want    string
	}{
		{"reliable pattern wins", `"Billing Team" <info@account.netflix.com>`, "Your bill", "Netflix"},
		{"display name", `"Disney+" <hello@mail.example.com>`, "welcome", "Disney+"},
		{"display name is lowercase", `"crunchyroll" <a@b.example>`, "hi", "Crunchyroll"},
		{"generic display name falls through to subject", `"Support" <x@y.example>`, "Welcome to Crunchyroll", "Crunchyroll"},
		{"registrable domain", "billing@hulu.com", "receipt", "Hulu"},
		{"subdomain next to a generic registrable label", "noreply@audible.amazon.com", "receipt", "Audible"},
		{"nothing usable", "noreply@mail.google.com", "security alert", core.UnknownService},
		{"address without a domain", "nobody", "receipt", core.UnknownService},
	}

	id := newIdentifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := id.Identify(&core.RawEmail{From: tt.from, Subject: tt.subject}, reliable)
			assert.Equal(t, tt.want, got.ServiceName)
		})
	}
}

func TestServiceIdentifier_ReportsMatchedPattern(t *testing.T) {
	reliable := []*core.SubscriptionPattern{
		{ID: 7, ServiceName: "Spotify", RegexPattern: `spotify\.com`, IsSubscription: true, PatternType: core.PatternDomain},
	}

	got := newIdentifier().Identify(&core.RawEmail{From: "no-reply@spotify.com"}, reliable)
	if assert.NotNil(t, got.Pattern) {
		assert.Equal(t, int64(7), got.Pattern.ID)
	}

	got = newIdentifier().Identify(&core.RawEmail{From: "billing@hulu.com"}, reliable)
	assert.Nil(t, got.Pattern)
}

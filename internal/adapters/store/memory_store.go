package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mikey/subscription-tracker/internal/core"
)

// memState holds the collections of a MemoryStore. It is not synchronised.
type memState struct {
	patterns      map[int64]*core.SubscriptionPattern
	feedback      map[int64]*core.FeedbackRecord
	subscriptions map[int64]*core.UserSubscriptionRecord
	nextID        int64
}

func newMemState() *memState {
	return &memState{
		patterns:      make(map[int64]*core.SubscriptionPattern),
		feedback:      make(map[int64]*core.FeedbackRecord),
		subscriptions: make(map[int64]*core.UserSubscriptionRecord),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextID = s.nextID
	for id, p := range s.patterns {
		cp := *p
		c.patterns[id] = &cp
	}
	for id, f := range s.feedback {
		cf := *f
		c.feedback[id] = &cf
	}
	for id, r := range s.subscriptions {
		c.subscriptions[id] = copySubscription(r)
	}
	return c
}

func copySubscription(r *core.UserSubscriptionRecord) *core.UserSubscriptionRecord {
	c := *r
	if r.SubscriptionEndDate != nil {
		end := *r.SubscriptionEndDate
		c.SubscriptionEndDate = &end
	}
	return &c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// MemoryStore is an in-memory implementation of core.Store
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// InTx runs fn against a copy of the store and keeps the copy only if fn succeeds
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx core.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(&memRepos{state: working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) read() *memRepos {
	return &memRepos{state: m.state}
}

func (m *MemoryStore) ReliableSubscriptionPatterns(ctx context.Context) ([]*core.SubscriptionPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ReliableSubscriptionPatterns(ctx)
}

func (m *MemoryStore) NonSubscriptionPatterns(ctx context.Context, minRejectionVotes int) ([]*core.SubscriptionPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().NonSubscriptionPatterns(ctx, minRejectionVotes)
}

func (m *MemoryStore) PatternByServiceName(ctx context.Context, serviceName string) (*core.SubscriptionPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().PatternByServiceName(ctx, serviceName)
}

func (m *MemoryStore) PatternByKey(ctx context.Context, serviceName, regex string) (*core.SubscriptionPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().PatternByKey(ctx, serviceName, regex)
}

func (m *MemoryStore) UpsertPattern(ctx context.Context, p *core.SubscriptionPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpsertPattern(ctx, p)
}

func (m *MemoryStore) InsertFeedback(ctx context.Context, f *core.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().InsertFeedback(ctx, f)
}

func (m *MemoryStore) PendingFeedback(ctx context.Context) ([]*core.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().PendingFeedback(ctx)
}

func (m *MemoryStore) MarkFeedbackProcessed(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().MarkFeedbackProcessed(ctx, id)
}

func (m *MemoryStore) LatestSubscription(ctx context.Context, serviceName, userID string) (*core.UserSubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().LatestSubscription(ctx, serviceName, userID)
}

func (m *MemoryStore) InsertSubscription(ctx context.Context, r *core.UserSubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().InsertSubscription(ctx, r)
}

func (m *MemoryStore) UpdateSubscription(ctx context.Context, r *core.UserSubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().UpdateSubscription(ctx, r)
}

func (m *MemoryStore) ActiveSubscriptions(ctx context.Context, userID string) ([]*core.UserSubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ActiveSubscriptions(ctx, userID)
}

func (m *MemoryStore) Subscriptions(ctx context.Context, userID string) ([]*core.UserSubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().Subscriptions(ctx, userID)
}

// memRepos implements core.Repositories over a memState. Results are copies.
type memRepos struct {
	state *memState
}

func (r *memRepos) filterPatterns(keep func(p *core.SubscriptionPattern) bool, less func(a, b *core.SubscriptionPattern) bool) []*core.SubscriptionPattern {
	var out []*core.SubscriptionPattern
	for _, p := range r.state.patterns {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *memRepos) ReliableSubscriptionPatterns(ctx context.Context) ([]*core.SubscriptionPattern, error) {
	return r.filterPatterns(
		func(p *core.SubscriptionPattern) bool { return p.IsSubscription },
		func(a, b *core.SubscriptionPattern) bool {
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return a.ApprovedCount > b.ApprovedCount
		},
	), nil
}

func (r *memRepos) NonSubscriptionPatterns(ctx context.Context, minRejectionVotes int) ([]*core.SubscriptionPattern, error) {
	return r.filterPatterns(
		func(p *core.SubscriptionPattern) bool {
			return !p.IsSubscription && p.RejectedCount > minRejectionVotes && p.RejectedCount > p.ApprovedCount
		},
		func(a, b *core.SubscriptionPattern) bool {
			if a.RejectedCount != b.RejectedCount {
				return a.RejectedCount > b.RejectedCount
			}
			return a.Priority > b.Priority
		},
	), nil
}

func (r *memRepos) PatternByServiceName(ctx context.Context, serviceName string) (*core.SubscriptionPattern, error) {
	matches := r.filterPatterns(
		func(p *core.SubscriptionPattern) bool { return strings.EqualFold(p.ServiceName, serviceName) },
		func(a, b *core.SubscriptionPattern) bool { return a.Priority > b.Priority },
	)
	if len(matches) == 0 {
		return nil, core.ErrNotFound
	}
	return matches[0], nil
}

func (r *memRepos) PatternByKey(ctx context.Context, serviceName, regex string) (*core.SubscriptionPattern, error) {
	for _, p := range r.state.patterns {
		if p.ServiceName == serviceName && p.RegexPattern == regex {
			cp := *p
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *memRepos) UpsertPattern(ctx context.Context, p *core.SubscriptionPattern) error {
	if p.ID == 0 {
		if existing, err := r.PatternByKey(ctx, p.ServiceName, p.RegexPattern); err == nil {
			p.ID = existing.ID
		} else {
			p.ID = r.state.id()
		}
	} else if _, ok := r.state.patterns[p.ID]; !ok {
		return fmt.Errorf("pattern %d: %w", p.ID, core.ErrNotFound)
	}
	if p.PatternType == nil {
		p.PatternType = core.PatternUnknown
	}
	cp := *p
	r.state.patterns[p.ID] = &cp
	return nil
}

func (r *memRepos) InsertFeedback(ctx context.Context, f *core.FeedbackRecord) error {
	f.ID = r.state.id()
	cf := *f
	r.state.feedback[f.ID] = &cf
	return nil
}

func (r *memRepos) PendingFeedback(ctx context.Context) ([]*core.FeedbackRecord, error) {
	var pending []*core.FeedbackRecord
	for _, f := range r.state.feedback {
		if !f.Processed {
			cf := *f
			pending = append(pending, &cf)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].SubmittedAt.Equal(pending[j].SubmittedAt) {
			return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

func (r *memRepos) MarkFeedbackProcessed(ctx context.Context, id int64) error {
	f, ok := r.state.feedback[id]
	if !ok {
		return core.ErrNotFound
	}
	f.Processed = true
	return nil
}

func (r *memRepos) LatestSubscription(ctx context.Context, serviceName, userID string) (*core.UserSubscriptionRecord, error) {
	var latest *core.UserSubscriptionRecord
	for _, rec := range r.state.subscriptions {
		if rec.ServiceName != serviceName || rec.UserID != userID {
			continue
		}
		if latest == nil || rec.SubscriptionStartDate.After(latest.SubscriptionStartDate) ||
			(rec.SubscriptionStartDate.Equal(latest.SubscriptionStartDate) && rec.ID > latest.ID) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, core.ErrNotFound
	}
	return copySubscription(latest), nil
}

func (r *memRepos) InsertSubscription(ctx context.Context, rec *core.UserSubscriptionRecord) error {
	if rec.Status == core.StatusActive {
		for _, existing := range r.state.subscriptions {
			if existing.ServiceName == rec.ServiceName && existing.UserID == rec.UserID && existing.Status == core.StatusActive {
				return fmt.Errorf("active subscription for %q already exists", rec.ServiceName)
			}
		}
	}
	rec.ID = r.state.id()
	r.state.subscriptions[rec.ID] = copySubscription(rec)
	return nil
}

func (r *memRepos) UpdateSubscription(ctx context.Context, rec *core.UserSubscriptionRecord) error {
	if _, ok := r.state.subscriptions[rec.ID]; !ok {
		return core.ErrNotFound
	}
	r.state.subscriptions[rec.ID] = copySubscription(rec)
	return nil
}

func (r *memRepos) ActiveSubscriptions(ctx context.Context, userID string) ([]*core.UserSubscriptionRecord, error) {
	return r.subscriptions(func(rec *core.UserSubscriptionRecord) bool {
		return rec.UserID == userID && rec.Status == core.StatusActive
	}), nil
}

func (r *memRepos) Subscriptions(ctx context.Context, userID string) ([]*core.UserSubscriptionRecord, error) {
	return r.subscriptions(func(rec *core.UserSubscriptionRecord) bool {
		return rec.UserID == userID
	}), nil
}

func (r *memRepos) subscriptions(keep func(rec *core.UserSubscriptionRecord) bool) []*core.UserSubscriptionRecord {
	var out []*core.UserSubscriptionRecord
	for _, rec := range r.state.subscriptions {
		if keep(rec) {
			out = append(out, copySubscription(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubscriptionStartDate.Equal(out[j].SubscriptionStartDate) {
			return out[i].SubscriptionStartDate.After(out[j].SubscriptionStartDate)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

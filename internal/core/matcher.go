package core

import (
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"
)

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// PatternMatcher evaluates subscription patterns against emails. Compiled
// expressions, including failed compilations, are cached by source text.
type PatternMatcher struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	compiled map[string]compiledPattern
}

// NewPatternMatcher creates a new pattern matcher
func NewPatternMatcher(logger *zap.Logger) *PatternMatcher {
	return &PatternMatcher{
		logger:   logger,
		compiled: make(map[string]compiledPattern),
	}
}

// Compile returns the case-insensitive, dot-all compilation of expr
func (m *PatternMatcher) Compile(expr string) (*regexp.Regexp, error) {
	m.mu.RLock()
	c, ok := m.compiled[expr]
	m.mu.RUnlock()
	if ok {
		return c.re, c.err
	}

	re, err := CompilePattern(expr)
	m.mu.Lock()
	m.compiled[expr] = compiledPattern{re: re, err: err}
	m.mu.Unlock()
	return re, err
}

// Matches reports whether the pattern occurs anywhere in the part of the email
// selected by its type. An expression that does not compile never matches.
func (m *PatternMatcher) Matches(p *SubscriptionPattern, e *RawEmail) bool {
	re, err := m.Compile(p.RegexPattern)
	if err != nil {
		m.logger.Warn("Skipping invalid pattern",
			zap.Int64("pattern_id", p.ID),
			zap.String("service", p.ServiceName),
			zap.String("regex", p.RegexPattern),
			zap.Error(err))
		return false
	}

	patternType := p.PatternType
	if patternType == nil {
		patternType = PatternUnknown
	}
	return re.MatchString(patternType.Haystack(e))
}

// FirstMatch returns the first pattern in order that matches e, or nil
func (m *PatternMatcher) FirstMatch(patterns []*SubscriptionPattern, e *RawEmail) *SubscriptionPattern {
	for _, p := range patterns {
		if m.Matches(p, e) {
			return p
		}
	}
	return nil
}

// CompilePattern compiles a stored pattern with case-insensitive, dot-all semantics
func CompilePattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?is)" + expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, expr, err)
	}
	return re, nil
}

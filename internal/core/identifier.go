package core

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownService is returned when no heuristic yields a usable name
const UnknownService = "Unknown Service"

const (
	minNameLength = 3
	maxNameLength = 30
)

// GenericTokenChecker decides whether a candidate name is too generic to
// identify a service
type GenericTokenChecker interface {
	// ContainsGeneric reports whether any word of text is a generic token
	ContainsGeneric(text string) bool
	// IsGenericLabel reports whether a single domain label is a generic token
	IsGenericLabel(label string) bool
}

// Identification is the outcome of service identification
type Identification struct {
	ServiceName string
	// Pattern is the reliable pattern that matched, nil for heuristic names
	Pattern *SubscriptionPattern
}

// ServiceIdentifier resolves the service an email belongs to
type ServiceIdentifier struct {
	patterns PatternRepository
	matcher  *PatternMatcher
	generic  GenericTokenChecker
	logger   *zap.Logger
}

// NewServiceIdentifier creates a new service identifier
func NewServiceIdentifier(
	patterns PatternRepository,
	matcher *PatternMatcher,
	generic GenericTokenChecker,
	logger *zap.Logger,
) *ServiceIdentifier {
	return &ServiceIdentifier{
		patterns: patterns,
		matcher:  matcher,
		generic:  generic,
		logger:   logger,
	}
}

// IdentifyService loads the reliable patterns and identifies the service of e.
// Pattern store failures degrade to the heuristics.
func (s *ServiceIdentifier) IdentifyService(ctx context.Context, e *RawEmail) string {
	reliable, err := s.patterns.ReliableSubscriptionPatterns(ctx)
	if err != nil {
		s.logger.Warn("Failed to load subscription patterns, using heuristics only", zap.Error(err))
		reliable = nil
	}
	return s.Identify(e, reliable).ServiceName
}

// Identify matches e against the given reliable patterns in order and falls back to
// sender and subject heuristics. The returned name is never empty.
func (s *ServiceIdentifier) Identify(e *RawEmail, reliable []*SubscriptionPattern) Identification {
	if p := s.matcher.FirstMatch(reliable, e); p != nil {
		return Identification{ServiceName: p.ServiceName, Pattern: p}
	}
	return Identification{ServiceName: s.heuristicName(e)}
}

func (s *ServiceIdentifier) heuristicName(e *RawEmail) string {
	if name := e.SenderDisplayName(); s.acceptable(name) && !strings.Contains(name, "@") {
		return capitalizeWords(name)
	}

	for _, token := range strings.FieldsFunc(e.Subject, isWordSeparator) {
		if isSubjectKeyword(token) && s.acceptable(token) {
			return capitalizeWords(token)
		}
	}

	if name := s.domainName(e.SenderAddress()); name != "" {
		return capitalizeWords(name)
	}
	return UnknownService
}

func (s *ServiceIdentifier) acceptable(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return false
	}
	return !s.generic.ContainsGeneric(name)
}

// domainName derives a name from the registrable domain of the sender, skipping
// a generic registrable label in favour of the subdomain next to it
func (s *ServiceIdentifier) domainName(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	domain := strings.Trim(address[at+1:], ". ")

	labels := strings.Split(domain, ".")
	idx := 0
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		idx = len(labels) - len(strings.Split(etld1, "."))
	}

	candidate := labels[idx]
	if s.generic.IsGenericLabel(candidate) && idx > 0 {
		candidate = labels[idx-1]
	}

	if utf8.RuneCountInString(candidate) <= 2 || s.generic.IsGenericLabel(candidate) {
		return ""
	}
	return candidate
}

// isSubjectKeyword accepts capitalised words that are not all caps
func isSubjectKeyword(token string) bool {
	first, _ := utf8.DecodeRuneInString(token)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, r := range token {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

func isWordSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func capitalizeWords(s string) string {
	return cases.Title(language.Und, cases.NoLower).String(strings.TrimSpace(s))
}

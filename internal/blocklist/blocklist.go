package blocklist

import (
	"strings"

	"go.uber.org/zap"
)

// DefaultGenericTokens are provider and infrastructure names that never
// identify a subscription service on their own
var DefaultGenericTokens = []string{
	"google", "googlemail", "gmail", "facebook", "microsoft", "apple",
	"amazon", "yahoo", "outlook", "hotmail", "support", "info", "noreply",
	"service", "team", "mail", "email", "com", "newsletter", "update",
	"alert", "mailchimp", "sendgrid",
}

// Checker decides whether a candidate service name is too generic
type Checker struct {
	tokens []string
	exact  map[string]struct{}
	logger *zap.Logger
}

// NewChecker creates a new generic-token checker from the default tokens
// plus any extra tokens
func NewChecker(extra []string, logger *zap.Logger) *Checker {
	seen := make(map[string]struct{}, len(DefaultGenericTokens)+len(extra))
	tokens := make([]string, 0, len(DefaultGenericTokens)+len(extra))
	for _, token := range append(append([]string{}, DefaultGenericTokens...), extra...) {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}

	if len(extra) > 0 && logger != nil {
		logger.Info("Initialized generic token checker",
			zap.Int("tokens", len(tokens)),
			zap.Strings("extra", extra))
	}

	return &Checker{
		tokens: tokens,
		exact:  seen,
		logger: logger,
	}
}

// ContainsGeneric reports whether text contains any generic token
func (c *Checker) ContainsGeneric(text string) bool {
	lower := strings.ToLower(text)
	for _, token := range c.tokens {
		if strings.Contains(lower, token) {
			if c.logger != nil {
				c.logger.Debug("Candidate name contains generic token",
					zap.String("candidate", text),
					zap.String("token", token))
			}
			return true
		}
	}
	return false
}

// IsGenericLabel reports whether a single domain label is a generic token
func (c *Checker) IsGenericLabel(label string) bool {
	_, ok := c.exact[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

package core

import (
	"fmt"
	"strings"
)

// PatternType selects which part of an email a pattern is matched against.
// The set of variants is closed: every variant lives in this file and must
// provide its own haystack, so a new kind cannot be added without deciding
// what it searches.
type PatternType interface {
	fmt.Stringer
	// Haystack returns the text of e the pattern is matched against
	Haystack(e *RawEmail) string
	sealed()
}

type domainPattern struct{}

func (domainPattern) String() string              { return "DOMAIN" }
func (domainPattern) Haystack(e *RawEmail) string { return e.SenderAddress() }
func (domainPattern) sealed()                     {}

type senderEmailPattern struct{}

func (senderEmailPattern) String() string              { return "SENDER_EMAIL" }
func (senderEmailPattern) Haystack(e *RawEmail) string { return e.SenderAddress() }
func (senderEmailPattern) sealed()                     {}

type subjectKeywordPattern struct{}

func (subjectKeywordPattern) String() string              { return "SUBJECT_KEYWORD" }
func (subjectKeywordPattern) Haystack(e *RawEmail) string { return e.Subject }
func (subjectKeywordPattern) sealed()                     {}

type bodyKeywordPattern struct{}

func (bodyKeywordPattern) String() string              { return "BODY_KEYWORD" }
func (bodyKeywordPattern) Haystack(e *RawEmail) string { return e.ContentSnippet() }
func (bodyKeywordPattern) sealed()                     {}

type combinedPattern struct{}

func (combinedPattern) String() string              { return "COMBINED" }
func (combinedPattern) Haystack(e *RawEmail) string { return combinedHaystack(e) }
func (combinedPattern) sealed()                     {}

type unknownPattern struct{}

func (unknownPattern) String() string              { return "UNKNOWN" }
func (unknownPattern) Haystack(e *RawEmail) string { return combinedHaystack(e) }
func (unknownPattern) sealed()                     {}

// Pattern types
var (
	PatternDomain         PatternType = domainPattern{}
	PatternSenderEmail    PatternType = senderEmailPattern{}
	PatternSubjectKeyword PatternType = subjectKeywordPattern{}
	PatternBodyKeyword    PatternType = bodyKeywordPattern{}
	PatternCombined       PatternType = combinedPattern{}
	PatternUnknown        PatternType = unknownPattern{}
)

var patternTypes = []PatternType{
	PatternDomain,
	PatternSenderEmail,
	PatternSubjectKeyword,
	PatternBodyKeyword,
	PatternCombined,
	PatternUnknown,
}

// ParsePatternType converts a stored name back to a PatternType.
// Unrecognised names map to PatternUnknown with ok set to false.
func ParsePatternType(name string) (PatternType, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, t := range patternTypes {
		if t.String() == name {
			return t, true
		}
	}
	return PatternUnknown, false
}

func combinedHaystack(e *RawEmail) string {
	return e.From + " " + e.Subject + " " + e.ContentSnippet()
}

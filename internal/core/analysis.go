package core

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// PrepareClassificationContent renders the text sent to the zero-shot classifier
func PrepareClassificationContent(e *RawEmail, maxChars int) string {
	return fmt.Sprintf("Subject: %s\nFrom: %s\nContent: %s",
		e.Subject, e.From, truncateRunes(e.ContentSnippet(), maxChars))
}

// ExtractJSONObject returns the text between the first '{' and the last '}'
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseEmailAnalysis decodes a model answer. Anything that is not a JSON object
// with the expected fields yields NeutralAnalysis.
func ParseEmailAnalysis(text string) EmailAnalysis {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return NeutralAnalysis()
	}

	analysis := NeutralAnalysis()
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return NeutralAnalysis()
	}
	if strings.TrimSpace(analysis.Company) == "" {
		analysis.Company = "Unknown"
	}
	if strings.TrimSpace(analysis.Action) == "" {
		analysis.Action = "none"
	}
	if strings.TrimSpace(analysis.Date) == "" {
		analysis.Date = "unknown"
	}
	analysis.Confidence = clampScore(analysis.Confidence)
	return analysis
}

// ParseLabelScores decodes a JSON object of label scores from a model answer.
// Both {"scores": {...}} and a bare {...} are accepted. Unknown labels are dropped
// and missing labels score 0.
func ParseLabelScores(text string, labels []string) (map[string]float64, error) {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model answer")
	}

	var wrapped struct {
		Scores map[string]float64 `json:"scores"`
	}
	var scores map[string]float64
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && len(wrapped.Scores) > 0 {
		scores = wrapped.Scores
	} else if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, fmt.Errorf("failed to parse label scores: %w", err)
	}

	result := make(map[string]float64, len(labels))
	for _, label := range labels {
		result[label] = clampScore(scores[label])
	}
	return result, nil
}

// ZeroShotPrompt builds the instruction used by generative backends to emulate
// zero-shot classification
func ZeroShotPrompt(text string, labels []string) string {
	var b strings.Builder
	b.WriteString("You are an email classification system. Score how well the email below matches each label.\n")
	b.WriteString("Labels:\n")
	for _, label := range labels {
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString("\n")
	}
	b.WriteString("Respond with a JSON object of the form {\"scores\": {\"<label>\": <number between 0 and 1>}} ")
	b.WriteString("containing every label and nothing else.\n\nEmail:\n")
	b.WriteString(text)
	return b.String()
}

// AnalysisPrompt builds the instruction asking a generative model for an EmailAnalysis
func AnalysisPrompt(e *RawEmail, maxChars int) string {
	return fmt.Sprintf(`Analyze the following email and decide whether it is about a paid subscription.
Respond with a JSON object containing:
- company: string (the service or company name)
- subscription: boolean (true if the email concerns a paid subscription)
- action: one of "start", "renew", "payment", "cancel", "none"
- date: string (the event date if mentioned, otherwise "unknown")
- confidence: number between 0 and 1

Email:
Subject: %s
From: %s
Content: %s

Respond only with the JSON object and nothing else.`,
		e.Subject, e.From, truncateRunes(e.ContentSnippet(), maxChars))
}

// lexical cues used when no model confidence is available
var (
	cancellationCues = compileCues(
		`\bcancel(l)?ed\b`, `\bcancel(l)?ation\b`, `subscription (has )?ended`,
		`membership (has )?ended`, `we('| a)re sorry to see you go`, `\bunsubscribed\b`,
		`will not renew`, `auto-?renew(al)? (is )?(off|turned off|disabled)`,
	)
	startCues = compileCues(
		`welcome to`, `thanks for subscribing`, `thank you for subscribing`,
		`subscription (is )?(now )?(active|confirmed|started)`, `your (free )?trial (has )?started`,
		`membership (is )?(now )?active`,
	)
	paymentCues = compileCues(
		`\breceipt\b`, `\binvoice\b`, `payment (received|confirmed|successful)`,
		`\brenew(ed|al)\b`, `\bbilled\b`, `\bcharged\b`, `your (monthly|annual|yearly) (plan|bill)`,
		`\bbill\b`,
	)
	promotionalCues = compileCues(
		`\b\d{1,2}% off\b`, `limited time`, `special offer`, `\bdiscount\b`, `\bpromo(tion)?\b`,
		`\bsale\b`, `don't miss`,
	)
)

func compileCues(exprs ...string) []*regexp.Regexp {
	cues := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		cues[i] = regexp.MustCompile("(?i)" + expr)
	}
	return cues
}

func anyCue(cues []*regexp.Regexp, text string) bool {
	for _, re := range cues {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// LexicalScores derives paid-event and cancellation scores from wording alone.
// Cancellation wording wins over start and payment wording; promotional wording
// without a start or payment cue yields no event.
func LexicalScores(e *RawEmail, confidence float64) (paid, cancel float64) {
	text := e.Subject + " " + e.ContentSnippet()
	switch {
	case anyCue(cancellationCues, text):
		return 0, confidence
	case anyCue(startCues, text), anyCue(paymentCues, text):
		return confidence, 0
	case anyCue(promotionalCues, text):
		return 0, 0
	}
	return 0, 0
}

// AnalysisScores maps an EmailAnalysis onto paid-event and cancellation scores
func AnalysisScores(a EmailAnalysis) (paid, cancel float64) {
	switch strings.ToLower(strings.TrimSpace(a.Action)) {
	case "start", "renew", "renewal", "payment":
		if a.Subscription {
			return a.Confidence, 0
		}
	case "cancel", "cancellation", "cancelled":
		return 0, a.Confidence
	}
	return 0, 0
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

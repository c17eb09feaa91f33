package principles

import (
	"context"
	"fmt"
	"strings"
)

const (
	ruleMatchThreshold    = 0.5
	exampleJaccardMinimum = 0.6
	minTokenLength        = 2
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "day": {}, "get": {}, "has": {},
	"him": {}, "his": {}, "how": {}, "its": {}, "may": {}, "new": {},
	"now": {}, "old": {}, "see": {}, "two": {}, "way": {}, "who": {},
	"any": {}, "does": {}, "with": {}, "that": {}, "this": {}, "from": {},
	"they": {}, "will": {}, "would": {}, "there": {}, "their": {},
	"what": {}, "about": {}, "which": {}, "when": {}, "into": {},
	"other": {}, "could": {}, "should": {}, "must": {}, "never": {},
	"always": {}, "avoid": {}, "without": {},
}

// KeywordMatcher is the baseline Matcher: keyword overlap against rule
// text, falling back to Jaccard similarity against curated violating
// examples. It is pure and safe for concurrent use.
type KeywordMatcher struct{}

// NewKeywordMatcher builds the default heuristic matcher.
func NewKeywordMatcher() KeywordMatcher {
	return KeywordMatcher{}
}

// EvaluateAgainst checks one subject against one principle. The first rule
// whose token match ratio reaches the threshold wins; evaluation
// short-circuits per principle.
func (KeywordMatcher) EvaluateAgainst(_ context.Context, subject Subject, p Principle) (Evaluation, error) {
	haystack := strings.ToLower(flatten(subject))
	if haystack == "" {
		return Evaluation{}, nil
	}

	for _, rule := range p.Rules {
		ratio := ruleMatchRatio(rule, haystack)
		if ratio >= ruleMatchThreshold {
			return Evaluation{
				Violates:   true,
				Reason:     fmt.Sprintf("matched rule %q of principle %s", rule, p.Name),
				Severity:   p.Severity,
				Confidence: ratio,
			}, nil
		}
	}

	for _, example := range p.Examples.Violates {
		similarity := jaccard(wordSet(haystack), wordSet(strings.ToLower(example)))
		if similarity >= exampleJaccardMinimum {
			return Evaluation{
				Violates:   true,
				Reason:     fmt.Sprintf("resembles violating example of principle %s", p.Name),
				Severity:   p.Severity,
				Confidence: similarity,
			}, nil
		}
	}

	return Evaluation{}, nil
}

func flatten(subject Subject) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{subject.Action, subject.Input, subject.Resource} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, " ")
}

// ruleMatchRatio returns the fraction of significant rule tokens present in
// the haystack as case-insensitive substrings.
func ruleMatchRatio(rule, haystack string) float64 {
	tokens := significantTokens(rule)
	if len(tokens) == 0 {
		return 0
	}
	matched := 0
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

func significantTokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len(f) <= minTokenLength {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

package safety

import (
	"regexp"
	"strings"
)

// harmFamily is one hand-coded harm-prevention pattern family, checked in
// stage two alongside the configured principles.
type harmFamily struct {
	Name     string
	Severity float64
	Pattern  *regexp.Regexp
}

var harmFamilies = []harmFamily{
	{
		Name:     "physical-harm",
		Severity: 0.95,
		Pattern:  regexp.MustCompile(`(?i)\b(injure|assault|poison|weapon|bomb|explosive|strangle)\b`),
	},
	{
		Name:     "psychological-harm",
		Severity: 0.8,
		Pattern:  regexp.MustCompile(`(?i)\b(harass|bully|threaten|intimidate|gaslight|humiliate)\b`),
	},
	{
		Name:     "privacy-harm",
		Severity: 0.85,
		Pattern:  regexp.MustCompile(`(?i)\b(doxx?|stalk|surveil|wiretap|spy\s+on)\b`),
	},
	{
		Name:     "financial-harm",
		Severity: 0.85,
		Pattern:  regexp.MustCompile(`(?i)\b(defraud|scam|embezzle|launder|phish|counterfeit)\b`),
	},
	{
		Name:     "illegal-activity-harm",
		Severity: 0.9,
		Pattern:  regexp.MustCompile(`(?i)\b(hack|crack|breach|break)\b.{0,40}\b(account|system|network|password|server)\b`),
	},
}

// sensitiveActionPattern is the fixed high-sensitivity action list: matching
// actions require approval regardless of score.
var sensitiveActionPattern = regexp.MustCompile(
	`(?i)\b(delete[-_ ]?user|modify[-_ ]?permission|change[-_ ]?security|export[-_ ]?data|access[-_ ]?credential|modify[-_ ]?audit)`)

func isSensitiveAction(action string) bool {
	return sensitiveActionPattern.MatchString(action)
}

// suggestAlternatives proposes safer substitutes for a blocked action.
// Heuristic text only; never authoritative.
func suggestAlternatives(action ActionContext) []string {
	text := strings.ToLower(action.Action + " " + action.Input + " " + action.Resource)
	var out []string
	if containsAny(text, destructiveActionWords) || strings.Contains(text, "rm -rf") {
		out = append(out,
			"run the operation against a scoped test copy first",
			"use a reversible soft-delete instead of a destructive one",
		)
	}
	if containsAny(text, credentialResourceWords) {
		out = append(out,
			"request short-lived scoped credentials from an operator",
			"use the credential broker instead of raw secrets",
		)
	}
	if strings.Contains(text, "hack") || strings.Contains(text, "bypass") {
		out = append(out,
			"use the documented account-recovery flow",
			"ask the resource owner for access",
		)
	}
	if len(out) == 0 {
		out = append(out, "narrow the action scope and retry, or request operator approval")
	}
	return out
}

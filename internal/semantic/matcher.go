// Package semantic implements a principle matcher backed by a chat model.
// It is an optional alternative to the keyword matcher for deployments that
// want semantic understanding of the action under review.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/MEKXH/aegis/internal/principles"
)

const systemPrompt = `You review a proposed agent action against one safety principle.
Answer with a single JSON object and nothing else:
{"violates": bool, "reason": string, "confidence": number between 0 and 1}
Set violates true only when the action clearly breaches the principle.`

// Matcher evaluates principles with a chat model. Errors from the model
// propagate to the caller, which treats them as a failed check.
type Matcher struct {
	model model.ChatModel
}

// NewMatcher wraps a chat model as a principle matcher.
func NewMatcher(m model.ChatModel) *Matcher {
	return &Matcher{model: m}
}

type verdict struct {
	Violates   bool    `json:"violates"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// EvaluateAgainst asks the model whether the subject violates the principle.
func (m *Matcher) EvaluateAgainst(ctx context.Context, subject principles.Subject, p principles.Principle) (principles.Evaluation, error) {
	if m.model == nil {
		return principles.Evaluation{}, fmt.Errorf("semantic matcher has no model")
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(buildPrompt(subject, p)),
	}

	resp, err := m.model.Generate(ctx, messages)
	if err != nil {
		return principles.Evaluation{}, fmt.Errorf("principle %s: model generate: %w", p.Name, err)
	}

	v, err := parseVerdict(resp.Content)
	if err != nil {
		return principles.Evaluation{}, fmt.Errorf("principle %s: %w", p.Name, err)
	}

	eval := principles.Evaluation{
		Violates:   v.Violates,
		Reason:     v.Reason,
		Confidence: clamp01(v.Confidence),
	}
	if eval.Violates {
		eval.Severity = p.Severity
		if eval.Reason == "" {
			eval.Reason = "violates principle: " + p.Name
		}
	}
	return eval, nil
}

func buildPrompt(subject principles.Subject, p principles.Principle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Principle: %s (category %s)\n", p.Name, p.Category)
	for _, rule := range p.Rules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}
	if len(p.Examples.Violates) > 0 {
		b.WriteString("Examples that violate it:\n")
		for _, ex := range p.Examples.Violates {
			fmt.Fprintf(&b, "- %s\n", ex)
		}
	}
	if len(p.Examples.Complies) > 0 {
		b.WriteString("Examples that comply:\n")
		for _, ex := range p.Examples.Complies {
			fmt.Fprintf(&b, "- %s\n", ex)
		}
	}
	fmt.Fprintf(&b, "\nProposed action: %s\n", subject.Action)
	if subject.Resource != "" {
		fmt.Fprintf(&b, "Target resource: %s\n", subject.Resource)
	}
	if subject.Input != "" {
		fmt.Fprintf(&b, "Action input: %s\n", subject.Input)
	}
	return b.String()
}

// parseVerdict extracts the JSON object from the model reply, tolerating
// fenced code blocks and surrounding prose.
func parseVerdict(content string) (verdict, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return verdict{}, fmt.Errorf("no JSON object in model reply")
	}

	var v verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return verdict{}, fmt.Errorf("parse model verdict: %w", err)
	}
	return v, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

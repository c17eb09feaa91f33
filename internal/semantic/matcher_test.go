package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/MEKXH/aegis/internal/principles"
)

type stubModel struct {
	reply string
	err   error
}

func (s *stubModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage(s.reply, nil), nil
}

func (s *stubModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (s *stubModel) BindTools(tools []*schema.ToolInfo) error { return nil }

func testPrinciple() principles.Principle {
	return principles.Principle{
		Name:     "do-no-harm",
		Category: principles.CategoryHarmPrevention,
		Enabled:  true,
		Severity: 0.9,
		Rules:    []string{"never cause physical harm"},
	}
}

func TestEvaluateAgainst_Violation(t *testing.T) {
	m := NewMatcher(&stubModel{reply: `{"violates": true, "reason": "describes harming a person", "confidence": 0.92}`})

	eval, err := m.EvaluateAgainst(context.Background(), principles.Subject{Action: "hurt someone"}, testPrinciple())
	if err != nil {
		t.Fatalf("EvaluateAgainst returned error: %v", err)
	}
	if !eval.Violates {
		t.Fatal("expected violation")
	}
	if eval.Severity != 0.9 {
		t.Fatalf("expected severity from principle, got %v", eval.Severity)
	}
	if eval.Confidence != 0.92 {
		t.Fatalf("expected confidence 0.92, got %v", eval.Confidence)
	}
}

func TestEvaluateAgainst_FencedReply(t *testing.T) {
	reply := "```json\n{\"violates\": false, \"reason\": \"routine read\", \"confidence\": 0.8}\n```"
	m := NewMatcher(&stubModel{reply: reply})

	eval, err := m.EvaluateAgainst(context.Background(), principles.Subject{Action: "read file"}, testPrinciple())
	if err != nil {
		t.Fatalf("EvaluateAgainst returned error: %v", err)
	}
	if eval.Violates {
		t.Fatal("expected no violation")
	}
	if eval.Severity != 0 {
		t.Fatalf("non-violations carry no severity, got %v", eval.Severity)
	}
}

func TestEvaluateAgainst_ModelError(t *testing.T) {
	m := NewMatcher(&stubModel{err: errors.New("upstream unavailable")})

	_, err := m.EvaluateAgainst(context.Background(), principles.Subject{Action: "anything"}, testPrinciple())
	if err == nil {
		t.Fatal("expected model error to propagate")
	}
}

func TestEvaluateAgainst_GarbageReply(t *testing.T) {
	m := NewMatcher(&stubModel{reply: "I cannot answer that."})

	_, err := m.EvaluateAgainst(context.Background(), principles.Subject{Action: "anything"}, testPrinciple())
	if err == nil {
		t.Fatal("expected parse error for non-JSON reply")
	}
}

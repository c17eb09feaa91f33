package intervention

import (
	"strings"
	"sync"
	"testing"

	"github.com/MEKXH/aegis/internal/approval"
	"github.com/MEKXH/aegis/internal/safety"
)

type recordingLogger struct {
	mu            sync.Mutex
	interventions []string
}

func (r *recordingLogger) LogSafetyDecision(safety.ActionContext, safety.CheckResult, string) error {
	return nil
}

func (r *recordingLogger) LogIntervention(_ safety.ActionContext, interventionType, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interventions = append(r.interventions, interventionType)
	return nil
}

func newTestHandler() *Handler {
	return NewHandler(approval.NewRegistry(), nil)
}

func blockedResult() safety.CheckResult {
	return safety.CheckResult{
		Allowed:    false,
		RiskLevel:  safety.RiskHigh,
		RiskScore:  0.9,
		Violations: []string{"prohibited pattern destructive-shell-commands (critical severity)"},
		Principles: []string{"do-no-harm"},
		Intervention: &safety.InterventionAction{
			Type:         safety.InterventionBlock,
			Reason:       "prohibited pattern",
			Alternatives: []string{"run the operation against a scoped test copy first"},
		},
	}
}

func TestExecute_NilInterventionProceeds(t *testing.T) {
	h := newTestHandler()

	res := h.Execute(safety.ActionContext{Action: "read_file"}, safety.CheckResult{Safe: true, Allowed: true})
	if !res.Proceed {
		t.Fatal("expected proceed")
	}
	if res.Message != "action permitted" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestExecute_Block(t *testing.T) {
	h := newTestHandler()

	res := h.Execute(safety.ActionContext{Action: "run_command"}, blockedResult())
	if res.Proceed {
		t.Fatal("blocked actions must not proceed")
	}
	if !strings.Contains(res.Message, "Action blocked (high risk).") {
		t.Fatalf("unexpected message: %q", res.Message)
	}
	if !strings.Contains(res.Message, "do-no-harm") {
		t.Fatalf("expected principles in message: %q", res.Message)
	}
	if len(res.Alternatives) != 1 {
		t.Fatalf("expected alternatives passed through, got %v", res.Alternatives)
	}
}

func TestExecute_Warn(t *testing.T) {
	h := newTestHandler()

	result := safety.CheckResult{
		Allowed:    true,
		RiskLevel:  safety.RiskMedium,
		RiskScore:  0.45,
		Violations: []string{"risk score 0.45 above warning threshold 0.40"},
		Intervention: &safety.InterventionAction{
			Type:   safety.InterventionWarn,
			Reason: "risk score above warning threshold",
		},
	}
	res := h.Execute(safety.ActionContext{Action: "write_file"}, result)
	if !res.Proceed || !res.Warning {
		t.Fatalf("expected warned proceed, got %+v", res)
	}
	if !strings.Contains(res.Message, "Warning (medium risk)") {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestExecute_Modify(t *testing.T) {
	h := newTestHandler()

	result := safety.CheckResult{
		Allowed:   true,
		RiskLevel: safety.RiskMedium,
		Intervention: &safety.InterventionAction{
			Type:           safety.InterventionModify,
			Reason:         "scoped to a dry run",
			ModifiedAction: "delete_database --dry-run",
		},
	}
	res := h.Execute(safety.ActionContext{Action: "delete_database"}, result)
	if !res.Proceed || !res.Modified {
		t.Fatalf("expected modified proceed, got %+v", res)
	}
	if res.ModifiedAction != "delete_database --dry-run" {
		t.Fatalf("unexpected modified action: %q", res.ModifiedAction)
	}
}

func TestExecute_ModifyWithoutSubstituteBlocks(t *testing.T) {
	h := newTestHandler()

	result := safety.CheckResult{
		RiskLevel: safety.RiskHigh,
		Intervention: &safety.InterventionAction{
			Type:   safety.InterventionModify,
			Reason: "needs narrowing",
		},
	}
	res := h.Execute(safety.ActionContext{Action: "delete_database"}, result)
	if res.Proceed || res.Modified {
		t.Fatalf("modify without a substitute degrades to block, got %+v", res)
	}
}

func TestExecute_RequireApprovalSubmitsRequest(t *testing.T) {
	h := newTestHandler()

	result := safety.CheckResult{
		RiskLevel:        safety.RiskMedium,
		RiskScore:        0.57,
		RequiresApproval: true,
		Intervention: &safety.InterventionAction{
			Type:   safety.InterventionRequireApproval,
			Reason: "risk score 0.57 requires human approval on level standard",
		},
	}
	action := safety.ActionContext{Action: "delete_database", Resource: "user_data", UserID: "agent-1"}
	res := h.Execute(action, result)
	if res.Proceed {
		t.Fatal("held actions must not proceed")
	}
	if !res.RequiresApproval || res.ApprovalRequestID == "" {
		t.Fatalf("expected approval request, got %+v", res)
	}

	req, ok := h.Registry().Get(res.ApprovalRequestID)
	if !ok {
		t.Fatal("request not registered")
	}
	if req.Context.Action != "delete_database" {
		t.Fatalf("context lost: %+v", req.Context)
	}
	if req.Status != approval.StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
}

func TestDrainAudit_WaitsForDetachedWrites(t *testing.T) {
	logger := &recordingLogger{}
	h := NewHandler(approval.NewRegistry(), logger)

	for i := 0; i < 3; i++ {
		h.Execute(safety.ActionContext{Action: "run_command"}, blockedResult())
	}
	h.DrainAudit()

	logger.mu.Lock()
	n := len(logger.interventions)
	logger.mu.Unlock()
	if n != 3 {
		t.Fatalf("expected all 3 intervention writes landed after drain, got %d", n)
	}
}

func TestExecute_UnknownTypeFailsSecure(t *testing.T) {
	h := newTestHandler()

	result := safety.CheckResult{
		RiskLevel:    safety.RiskHigh,
		Intervention: &safety.InterventionAction{Type: "teleport", Reason: "???"},
	}
	res := h.Execute(safety.ActionContext{Action: "anything"}, result)
	if res.Proceed {
		t.Fatal("unknown intervention types must not proceed")
	}
}

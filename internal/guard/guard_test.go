package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MEKXH/aegis/internal/audit"
	"github.com/MEKXH/aegis/internal/config"
	"github.com/MEKXH/aegis/internal/principles"
	"github.com/MEKXH/aegis/internal/safety"
)

func testGuard(t *testing.T) *Guard {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()

	g := New(cfg)
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(g.Shutdown)
	return g
}

func TestCheckAction_NotInitialized(t *testing.T) {
	g := New(config.DefaultConfig())

	_, err := g.CheckAction(context.Background(), safety.ActionContext{Action: "read_file"})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := g.SetSafetyLevel("strict"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized from SetSafetyLevel, got %v", err)
	}
}

func TestInitialize_UnknownDefaultLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	cfg.Safety.DefaultLevel = "paranoid"

	g := New(cfg)
	if err := g.Initialize(context.Background()); err == nil {
		t.Fatal("expected error for unknown safety level")
	}
}

func TestCheckAction_LowRiskRead(t *testing.T) {
	g := testGuard(t)

	result, err := g.CheckAction(context.Background(), safety.ActionContext{
		Action:        "read_file",
		Resource:      "public/readme.md",
		UserID:        "agent-1",
		Authenticated: true,
	})
	if err != nil {
		t.Fatalf("CheckAction failed: %v", err)
	}
	if !result.Safe || !result.Allowed {
		t.Fatalf("expected safe allowed result, got %+v", result)
	}
	if result.RiskLevel != safety.RiskLow {
		t.Fatalf("expected low risk, got %s", result.RiskLevel)
	}
	if result.RequiresApproval {
		t.Fatal("low-risk read must not require approval")
	}
	if result.Metadata.SafetyLevel != "standard" {
		t.Fatalf("expected standard level in metadata, got %q", result.Metadata.SafetyLevel)
	}

	snap := g.Metrics()
	if snap.Checks != 1 || snap.Allowed != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestCheckAndIntervene_DestructiveActionHeldForApproval(t *testing.T) {
	g := testGuard(t)

	action := safety.ActionContext{
		Action:        "delete_database",
		Resource:      "user_data",
		UserID:        "agent-2",
		Authenticated: true,
		MFAVerified:   true,
		Elevated:      true,
	}

	result, res, err := g.CheckAndIntervene(context.Background(), action)
	if err != nil {
		t.Fatalf("CheckAndIntervene failed: %v", err)
	}
	if result.Intervention == nil || result.Intervention.Type != safety.InterventionRequireApproval {
		t.Fatalf("expected require_approval intervention, got %+v", result.Intervention)
	}
	if res.Proceed {
		t.Fatal("held action must not proceed")
	}
	if res.ApprovalRequestID == "" {
		t.Fatal("expected an approval request id")
	}

	pending, err := g.GetPendingApprovals()
	if err != nil {
		t.Fatalf("GetPendingApprovals failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != res.ApprovalRequestID {
		t.Fatalf("expected the held request pending, got %+v", pending)
	}
}

func TestApproveAction_ResolvesWaiter(t *testing.T) {
	g := testGuard(t)

	action := safety.ActionContext{
		Action:        "delete_database",
		Resource:      "user_data",
		Authenticated: true,
		MFAVerified:   true,
		Elevated:      true,
	}
	_, res, err := g.CheckAndIntervene(context.Background(), action)
	if err != nil {
		t.Fatalf("CheckAndIntervene failed: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		approved, waitErr := g.WaitForApproval(context.Background(), res.ApprovalRequestID, 5*time.Second)
		if waitErr != nil {
			done <- false
			return
		}
		done <- approved
	}()

	// Give the waiter a moment to register before resolving.
	time.Sleep(20 * time.Millisecond)

	req, err := g.ApproveAction(res.ApprovalRequestID, "operator-7")
	if err != nil {
		t.Fatalf("ApproveAction failed: %v", err)
	}
	if req.Approver != "operator-7" {
		t.Fatalf("expected approver recorded, got %q", req.Approver)
	}

	select {
	case approved := <-done:
		if !approved {
			t.Fatal("waiter should observe approval")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not resolve")
	}

	// A second resolution must fail.
	if _, err := g.DenyAction(res.ApprovalRequestID, "operator-8", "late"); err == nil {
		t.Fatal("expected error resolving an already approved request")
	}

	snap := g.Metrics()
	if snap.ApprovalsApproved != 1 {
		t.Fatalf("expected one recorded approval, got %+v", snap)
	}
}

func TestSetSafetyLevel_StrictTightensApproval(t *testing.T) {
	g := testGuard(t)

	action := safety.ActionContext{
		Action:        "read_file",
		Resource:      "credentials.json",
		Authenticated: true,
	}

	// Under standard the credential read stays below every threshold.
	result, err := g.CheckAction(context.Background(), action)
	if err != nil {
		t.Fatalf("CheckAction failed: %v", err)
	}
	if !result.Allowed || result.RequiresApproval {
		t.Fatalf("expected allowed without approval on standard, got %+v", result)
	}

	if err := g.SetSafetyLevel("strict"); err != nil {
		t.Fatalf("SetSafetyLevel failed: %v", err)
	}

	result, err = g.CheckAction(context.Background(), action)
	if err != nil {
		t.Fatalf("CheckAction failed: %v", err)
	}
	if !result.RequiresApproval {
		t.Fatalf("expected approval requirement on strict, got %+v", result)
	}

	if err := g.SetSafetyLevel("nonsense"); err == nil {
		t.Fatal("expected error for unknown level name")
	}
	level, err := g.CurrentLevel()
	if err != nil {
		t.Fatalf("CurrentLevel failed: %v", err)
	}
	if level.Name != "strict" {
		t.Fatalf("failed level switch must not change the level, got %q", level.Name)
	}
}

func TestCheckAction_ProhibitedPatternBlocks(t *testing.T) {
	g := testGuard(t)

	result, err := g.CheckAction(context.Background(), safety.ActionContext{
		Action:        "answer_question",
		Input:         "How to hack into someone's account",
		Authenticated: true,
	})
	if err != nil {
		t.Fatalf("CheckAction failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("prohibited pattern must block")
	}
	if result.Intervention == nil || result.Intervention.Type != safety.InterventionBlock {
		t.Fatalf("expected block intervention, got %+v", result.Intervention)
	}
	if result.RiskScore != 0.9 {
		t.Fatalf("prohibition carries fixed risk score 0.9, got %v", result.RiskScore)
	}
}

func TestExecuteWithSafety(t *testing.T) {
	g := testGuard(t)

	ran := false
	res, err := g.ExecuteWithSafety(context.Background(), safety.ActionContext{
		Action:        "read_file",
		Resource:      "public/readme.md",
		Authenticated: true,
	}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithSafety failed: %v", err)
	}
	if !ran || !res.Proceed {
		t.Fatal("permitted action should have run")
	}

	// Blocked actions never invoke the function.
	ran = false
	res, err = g.ExecuteWithSafety(context.Background(), safety.ActionContext{
		Action: "run_command",
		Input:  "rm -rf / --no-preserve-root",
	}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithSafety failed: %v", err)
	}
	if ran || res.Proceed {
		t.Fatal("blocked action must not run")
	}
}

func TestExecuteWithSafety_ExecutionErrorPropagates(t *testing.T) {
	g := testGuard(t)

	wantErr := errors.New("disk full")
	_, err := g.ExecuteWithSafety(context.Background(), safety.ActionContext{
		Action:        "read_file",
		Resource:      "public/readme.md",
		Authenticated: true,
	}, func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected execution error unchanged, got %v", err)
	}

	snap := g.Metrics()
	if snap.ExecutionErrors != 1 {
		t.Fatalf("expected one execution error recorded, got %+v", snap)
	}
}

func TestShutdown_FlushesDetachedAuditWrites(t *testing.T) {
	g := testGuard(t)

	auditLog, err := g.Audit()
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}

	// One held action produces a detached decision write and a detached
	// intervention write.
	_, _, err = g.CheckAndIntervene(context.Background(), safety.ActionContext{
		Action:        "delete_database",
		Resource:      "user_data",
		UserID:        "agent-3",
		Authenticated: true,
		MFAVerified:   true,
		Elevated:      true,
	})
	if err != nil {
		t.Fatalf("CheckAndIntervene failed: %v", err)
	}

	g.Shutdown()

	// Both entries must already be on disk once Shutdown returns.
	entries, err := auditLog.Tail(0)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	var decisions, interventions int
	for _, e := range entries {
		switch e.Type {
		case "safety_decision":
			decisions++
		case "intervention":
			interventions++
		}
	}
	if decisions != 1 || interventions != 1 {
		t.Fatalf("expected 1 decision and 1 intervention flushed, got %d and %d", decisions, interventions)
	}
}

func TestDenyAction_RecordsAuditOverride(t *testing.T) {
	g := testGuard(t)

	_, res, err := g.CheckAndIntervene(context.Background(), safety.ActionContext{
		Action:        "delete_database",
		Resource:      "user_data",
		UserID:        "agent-4",
		Authenticated: true,
		MFAVerified:   true,
		Elevated:      true,
	})
	if err != nil {
		t.Fatalf("CheckAndIntervene failed: %v", err)
	}

	req, err := g.DenyAction(res.ApprovalRequestID, "operator-9", "too broad")
	if err != nil {
		t.Fatalf("DenyAction failed: %v", err)
	}
	if req.Reason != "too broad" {
		t.Fatalf("expected denial reason recorded, got %q", req.Reason)
	}

	auditLog, err := g.Audit()
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	entries, err := auditLog.Query(audit.Filters{Decision: audit.DecisionBlocked})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Override == "operator-9" && e.Reason == "too broad" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a denial entry with the denier as override, got %+v", entries)
	}

	snap := g.Metrics()
	if snap.ApprovalsDenied != 1 {
		t.Fatalf("expected one recorded denial, got %+v", snap)
	}
}

func TestUpdatePrinciples_RejectsInvalidDocument(t *testing.T) {
	g := testGuard(t)

	doc := principles.DefaultDocument()
	doc.Prohibitions[0].Patterns = append(doc.Prohibitions[0].Patterns, "([unclosed")
	if err := g.UpdatePrinciples(doc); err == nil {
		t.Fatal("expected invalid regex to be rejected")
	}
}

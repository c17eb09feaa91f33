package safety

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestActionTypeRisk(t *testing.T) {
	tests := []struct {
		action string
		want   float64
	}{
		{"delete_database", 0.9},
		{"wipe_disk", 0.9},
		{"install_package", 0.7},
		{"execute_script", 0.6},
		{"write_file", 0.4},
		{"read_file", 0.1},
		{"ponder", 0.3},
	}
	for _, tt := range tests {
		if got := actionTypeRisk(tt.action); got != tt.want {
			t.Fatalf("actionTypeRisk(%q)=%v want %v", tt.action, got, tt.want)
		}
	}
}

func TestResourceRisk(t *testing.T) {
	tests := []struct {
		resource string
		want     float64
	}{
		{"credentials.json", 0.9},
		{"user_data", 0.7},
		{"/etc/hosts", 0.5},
		{"public/readme.md", 0.1},
		{"", 0.1},
		{"notes.txt", 0.3},
	}
	for _, tt := range tests {
		if got := resourceRisk(tt.resource); got != tt.want {
			t.Fatalf("resourceRisk(%q)=%v want %v", tt.resource, got, tt.want)
		}
	}
}

func TestAssessRisk_WeightedComposite(t *testing.T) {
	// delete (0.9) on user_data (0.7) with every context mitigation present.
	assessment := assessRisk(ActionContext{
		Action:        "delete_database",
		Resource:      "user_data",
		Authenticated: true,
		MFAVerified:   true,
		Elevated:      true,
	})
	want := 0.4*0.9 + 0.3*0.7
	if !almostEqual(assessment.Total, want) {
		t.Fatalf("expected total %v, got %v", want, assessment.Total)
	}
	if assessment.unsafe() {
		t.Fatalf("%v is below the unsafe threshold", assessment.Total)
	}
}

func TestAssessRisk_ContextPenalties(t *testing.T) {
	// Unauthenticated destructive action on credentials, no MFA, no
	// elevation: every penalty applies.
	assessment := assessRisk(ActionContext{
		Action:   "delete_keys",
		Resource: "credentials_store",
	})
	wantCtx := 0.3 + 0.2 + 0.3
	if !almostEqual(assessment.ContextRisk, wantCtx) {
		t.Fatalf("expected context risk %v, got %v", wantCtx, assessment.ContextRisk)
	}
	want := 0.4*0.9 + 0.3*0.9 + 0.2*wantCtx
	if !almostEqual(assessment.Total, want) {
		t.Fatalf("expected total %v, got %v", want, assessment.Total)
	}
	if !assessment.unsafe() {
		t.Fatalf("%v should exceed the unsafe threshold", assessment.Total)
	}
	if len(assessment.Factors) == 0 {
		t.Fatal("expected contributing factors to be named")
	}
}

func TestHistoryRisk_Capped(t *testing.T) {
	if got := historyRisk(0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := historyRisk(2); !almostEqual(got, 0.3) {
		t.Fatalf("expected 0.3, got %v", got)
	}
	if got := historyRisk(10); got != historyCap {
		t.Fatalf("expected cap %v, got %v", historyCap, got)
	}
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.85, RiskCritical},
		{0.8, RiskCritical},
		{0.7, RiskHigh},
		{0.6, RiskHigh},
		{0.5, RiskMedium},
		{0.4, RiskMedium},
		{0.39, RiskLow},
		{0, RiskLow},
	}
	for _, tt := range tests {
		if got := RiskLevelFor(tt.score); got != tt.want {
			t.Fatalf("RiskLevelFor(%v)=%s want %s", tt.score, got, tt.want)
		}
	}
}

func TestIsSensitiveAction(t *testing.T) {
	sensitive := []string{"delete_user", "modify_permissions", "change_security_settings", "export_data", "access_credentials", "modify_audit_log"}
	for _, a := range sensitive {
		if !isSensitiveAction(a) {
			t.Fatalf("expected %q to be sensitive", a)
		}
	}
	for _, a := range []string{"read_file", "list_dir", "delete_temp_file"} {
		if isSensitiveAction(a) {
			t.Fatalf("expected %q not to be sensitive", a)
		}
	}
}

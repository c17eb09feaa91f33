package safety

import (
	"time"

	"github.com/MEKXH/aegis/internal/principles"
)

// RiskLevel is the banded form of a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor bands a risk score. The mapping is fixed and monotonic.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// InterventionType is the concrete consequence attached to an unsafe result.
type InterventionType string

const (
	InterventionBlock           InterventionType = "block"
	InterventionWarn            InterventionType = "warn"
	InterventionModify          InterventionType = "modify"
	InterventionRequireApproval InterventionType = "require_approval"
)

// ActionContext is the immutable unit of evaluation: one proposed action of
// the agent, plus the caller's identity and session state.
type ActionContext struct {
	Action           string            `json:"action"`
	Input            string            `json:"input,omitempty"`
	Resource         string            `json:"resource,omitempty"`
	UserID           string            `json:"user_id,omitempty"`
	SessionID        string            `json:"session_id,omitempty"`
	Authenticated    bool              `json:"authenticated"`
	MFAVerified      bool              `json:"mfa_verified"`
	Elevated         bool              `json:"elevated"`
	RecentViolations int               `json:"recent_violations,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Subject flattens the checked fields for matching.
func (a ActionContext) Subject() principles.Subject {
	return principles.Subject{Action: a.Action, Input: a.Input, Resource: a.Resource}
}

// InterventionAction describes what must happen to an unsafe action.
type InterventionAction struct {
	Type           InterventionType `json:"type"`
	Reason         string           `json:"reason"`
	Alternatives   []string         `json:"alternatives,omitempty"`
	ModifiedAction string           `json:"modified_action,omitempty"`
}

// ResultMetadata carries bookkeeping fields of one check.
type ResultMetadata struct {
	RequestID   string    `json:"request_id,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	SafetyLevel string    `json:"safety_level"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

// CheckResult is produced exactly once per CheckAction call and never
// mutated afterwards.
type CheckResult struct {
	Safe             bool                `json:"safe"`
	Allowed          bool                `json:"allowed"`
	RiskLevel        RiskLevel           `json:"risk_level"`
	RiskScore        float64             `json:"risk_score"`
	Violations       []string            `json:"violations"`
	Principles       []string            `json:"principles"`
	Intervention     *InterventionAction `json:"intervention,omitempty"`
	RequiresApproval bool                `json:"requires_approval"`
	Metadata         ResultMetadata      `json:"metadata"`
}

// DecisionLogger is the audit collaborator boundary. Failures are treated
// as non-fatal by every caller.
type DecisionLogger interface {
	LogSafetyDecision(action ActionContext, result CheckResult, override string) error
	LogIntervention(action ActionContext, interventionType, reason, decision string) error
}

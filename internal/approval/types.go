package approval

import (
	"time"

	"github.com/MEKXH/aegis/internal/safety"
)

// Status is the lifecycle state of an approval request. A request is born
// pending and moves to exactly one terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Request is a time-boxed, single-resolution record awaiting a human
// decision on a held action.
type Request struct {
	ID          string               `json:"id"`
	Context     safety.ActionContext `json:"context"`
	Result      safety.CheckResult   `json:"result"`
	RequestedAt time.Time            `json:"requested_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Status      Status               `json:"status"`
	Approver    string               `json:"approver,omitempty"`
	ApprovedAt  time.Time            `json:"approved_at,omitempty"`
	Reason      string               `json:"reason,omitempty"`
}

// Outcome codes for approve/deny calls. These are expected operator races,
// returned as values rather than errors.
const (
	OutcomeOK              = "ok"
	OutcomeNotFound        = "not_found"
	OutcomeAlreadyResolved = "already_resolved"
	OutcomeExpired         = "expired"
)

// Outcome reports the result of an approve or deny call.
type Outcome struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func okOutcome(msg string) Outcome {
	return Outcome{Success: true, Code: OutcomeOK, Message: msg}
}

func failOutcome(code, msg string) Outcome {
	return Outcome{Success: false, Code: code, Message: msg}
}

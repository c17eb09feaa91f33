// Package intervention turns safety check results into concrete
// consequences: proceed, block, warn, modify or hold for human approval.
package intervention

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MEKXH/aegis/internal/approval"
	"github.com/MEKXH/aegis/internal/safety"
)

// Result tells the caller what to do with the original action.
type Result struct {
	Proceed           bool     `json:"proceed"`
	Modified          bool     `json:"modified"`
	ModifiedAction    string   `json:"modified_action,omitempty"`
	Message           string   `json:"message"`
	Warning           bool     `json:"warning,omitempty"`
	RequiresApproval  bool     `json:"requires_approval,omitempty"`
	ApprovalRequestID string   `json:"approval_request_id,omitempty"`
	Alternatives      []string `json:"alternatives,omitempty"`
}

// Handler executes interventions and owns the approval request lifecycle
// through the registry.
type Handler struct {
	registry *approval.Registry
	audit    safety.DecisionLogger
	auditWG  sync.WaitGroup
}

// NewHandler wires the handler to its approval registry and audit sink.
func NewHandler(registry *approval.Registry, auditLog safety.DecisionLogger) *Handler {
	return &Handler{registry: registry, audit: auditLog}
}

// Registry exposes the approval registry for delegating operations.
func (h *Handler) Registry() *approval.Registry { return h.registry }

// Execute applies the intervention attached to a check result.
func (h *Handler) Execute(action safety.ActionContext, result safety.CheckResult) Result {
	if result.Intervention == nil {
		return Result{Proceed: true, Message: "action permitted"}
	}

	switch result.Intervention.Type {
	case safety.InterventionBlock:
		return h.block(action, result)
	case safety.InterventionWarn:
		return h.warn(action, result)
	case safety.InterventionModify:
		return h.modify(action, result)
	case safety.InterventionRequireApproval:
		return h.requireApproval(action, result)
	default:
		// Unknown intervention types fail secure.
		return h.block(action, result)
	}
}

func (h *Handler) block(action safety.ActionContext, result safety.CheckResult) Result {
	h.logIntervention(action, string(safety.InterventionBlock), result.Intervention.Reason, "blocked")
	return Result{
		Proceed:      false,
		Message:      blockMessage(result),
		Alternatives: result.Intervention.Alternatives,
	}
}

func (h *Handler) warn(action safety.ActionContext, result safety.CheckResult) Result {
	h.logIntervention(action, string(safety.InterventionWarn), result.Intervention.Reason, "warned")
	return Result{
		Proceed: true,
		Warning: true,
		Message: warnMessage(result),
	}
}

func (h *Handler) modify(action safety.ActionContext, result safety.CheckResult) Result {
	modified := strings.TrimSpace(result.Intervention.ModifiedAction)
	if modified == "" {
		// No substitute was computed; degrade to a block.
		h.logIntervention(action, string(safety.InterventionModify), "no modified action available", "blocked")
		return Result{
			Proceed:      false,
			Message:      blockMessage(result),
			Alternatives: result.Intervention.Alternatives,
		}
	}

	h.logIntervention(action, string(safety.InterventionModify), result.Intervention.Reason, "modified")
	return Result{
		Proceed:        true,
		Modified:       true,
		ModifiedAction: modified,
		Message:        fmt.Sprintf("action modified for safety: %s", result.Intervention.Reason),
	}
}

func (h *Handler) requireApproval(action safety.ActionContext, result safety.CheckResult) Result {
	req := h.registry.Submit(action, result)
	h.logIntervention(action, string(safety.InterventionRequireApproval), result.Intervention.Reason, "blocked")
	return Result{
		Proceed:           false,
		RequiresApproval:  true,
		ApprovalRequestID: req.ID,
		Message:           approvalMessage(result, req.ID),
	}
}

func (h *Handler) logIntervention(action safety.ActionContext, interventionType, reason, decision string) {
	if h.audit == nil {
		return
	}
	h.auditWG.Add(1)
	go func() {
		defer h.auditWG.Done()
		if err := h.audit.LogIntervention(action, interventionType, reason, decision); err != nil {
			slog.Warn("intervention audit write failed", "error", err)
		}
	}()
}

// DrainAudit blocks until every detached intervention write has landed.
func (h *Handler) DrainAudit() {
	h.auditWG.Wait()
}

// Message templating is deterministic so operator-facing output can be
// covered by golden tests.

func blockMessage(result safety.CheckResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action blocked (%s risk).", result.RiskLevel)
	if len(result.Violations) > 0 {
		fmt.Fprintf(&b, " Violations: %s.", strings.Join(result.Violations, "; "))
	}
	if len(result.Principles) > 0 {
		fmt.Fprintf(&b, " Principles: %s.", strings.Join(result.Principles, ", "))
	}
	if result.Intervention != nil && len(result.Intervention.Alternatives) > 0 {
		fmt.Fprintf(&b, " Consider: %s.", strings.Join(result.Intervention.Alternatives, "; "))
	}
	return b.String()
}

func warnMessage(result safety.CheckResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Warning (%s risk): action will proceed.", result.RiskLevel)
	if len(result.Violations) > 0 {
		fmt.Fprintf(&b, " Concerns: %s.", strings.Join(result.Violations, "; "))
	}
	return b.String()
}

func approvalMessage(result safety.CheckResult, requestID string) string {
	return fmt.Sprintf(
		"Action held for human approval (%s risk). Request %s expires in %s.",
		result.RiskLevel, requestID, approval.DefaultTTL,
	)
}

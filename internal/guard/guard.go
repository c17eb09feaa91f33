// Package guard is the top-level facade over the safety pipeline: one
// initialized Guard owns the checker, the intervention handler, the approval
// registry, the audit log and the decision counters.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MEKXH/aegis/internal/approval"
	"github.com/MEKXH/aegis/internal/audit"
	"github.com/MEKXH/aegis/internal/config"
	"github.com/MEKXH/aegis/internal/intervention"
	"github.com/MEKXH/aegis/internal/metrics"
	"github.com/MEKXH/aegis/internal/principles"
	"github.com/MEKXH/aegis/internal/provider"
	"github.com/MEKXH/aegis/internal/safety"
	"github.com/MEKXH/aegis/internal/semantic"
)

// ErrNotInitialized is returned by operations invoked before Initialize.
var ErrNotInitialized = errors.New("guard not initialized")

// ResolutionError is a failed approval resolution, carrying the registry
// outcome code so transports can map it onto their own status codes.
type ResolutionError struct {
	Code    string
	Message string
}

func (e *ResolutionError) Error() string { return e.Message }

// Guard coordinates the safety pipeline collaborators. Create with New,
// then call Initialize before use.
type Guard struct {
	cfg *config.Config

	checker  *safety.Checker
	handler  *intervention.Handler
	registry *approval.Registry
	audit    *audit.Logger
	counters *metrics.Counters
	levels   principles.LevelsDocument

	initialized bool
}

// New creates an uninitialized guard bound to its configuration.
func New(cfg *config.Config) *Guard {
	return &Guard{cfg: cfg}
}

// Initialize loads the principle and level documents, builds the pipeline
// and starts the approval sweep. Safe to call once; later calls are no-ops.
func (g *Guard) Initialize(ctx context.Context) error {
	if g.initialized {
		return nil
	}

	doc, err := principles.LoadDocument(g.cfg.Safety.PrinciplesFile)
	if err != nil {
		return fmt.Errorf("load principles: %w", err)
	}
	levels, err := principles.LoadLevels(g.cfg.Safety.LevelsFile)
	if err != nil {
		return fmt.Errorf("load safety levels: %w", err)
	}

	level, ok := levels.Level(g.cfg.Safety.DefaultLevel)
	if !ok {
		return fmt.Errorf("unknown safety level %q", g.cfg.Safety.DefaultLevel)
	}

	matcher, err := g.buildMatcher(ctx)
	if err != nil {
		return err
	}

	checker, err := safety.NewChecker(doc, level, matcher)
	if err != nil {
		return fmt.Errorf("build checker: %w", err)
	}

	workspace := g.cfg.WorkspacePath()
	auditLog := audit.NewLogger(workspace)
	auditLog.SetVerbosity(level.Logging.Level, level.Logging.IncludeContent)
	checker.SetAuditLogger(auditLog)

	registry := approval.NewRegistryWithConfig(
		time.Duration(g.cfg.Approvals.TTLMinutes)*time.Minute,
		time.Duration(g.cfg.Approvals.SweepMinutes)*time.Minute,
		time.Duration(g.cfg.Approvals.RetentionHours)*time.Hour,
	)
	registry.Start()

	counters := metrics.NewCounters(workspace)
	if err := counters.Load(); err != nil {
		slog.Warn("metrics snapshot load failed", "error", err)
	}

	g.checker = checker
	g.handler = intervention.NewHandler(registry, auditLog)
	g.registry = registry
	g.audit = auditLog
	g.counters = counters
	g.levels = levels
	g.initialized = true

	slog.Info("safety guard initialized",
		"level", level.Name,
		"principles", len(doc.Principles),
		"prohibitions", len(doc.Prohibitions),
		"matcher", g.cfg.Matcher.Engine)
	return nil
}

func (g *Guard) buildMatcher(ctx context.Context) (principles.Matcher, error) {
	if g.cfg.Matcher.Engine != "llm" {
		return principles.NewKeywordMatcher(), nil
	}
	chatModel, err := provider.NewChatModel(ctx, g.cfg)
	if err != nil {
		return nil, fmt.Errorf("llm matcher: %w", err)
	}
	return semantic.NewMatcher(chatModel), nil
}

// CheckAction runs the pipeline on one action and records the decision in
// the counters. The check itself never fails; only calling before
// Initialize is an error.
func (g *Guard) CheckAction(ctx context.Context, action safety.ActionContext) (safety.CheckResult, error) {
	if !g.initialized {
		return safety.CheckResult{}, ErrNotInitialized
	}

	result := g.checker.CheckAction(ctx, action)
	g.recordDecision(result)
	return result, nil
}

// CheckAndIntervene checks the action and immediately executes the
// resulting intervention, returning both.
func (g *Guard) CheckAndIntervene(ctx context.Context, action safety.ActionContext) (safety.CheckResult, intervention.Result, error) {
	result, err := g.CheckAction(ctx, action)
	if err != nil {
		return safety.CheckResult{}, intervention.Result{}, err
	}
	return result, g.handler.Execute(action, result), nil
}

// ExecuteWithSafety guards fn behind the pipeline. fn runs only when the
// intervention permits it; an error from fn is recorded in the audit log
// and returned unchanged.
func (g *Guard) ExecuteWithSafety(ctx context.Context, action safety.ActionContext, fn func(context.Context) error) (intervention.Result, error) {
	_, res, err := g.CheckAndIntervene(ctx, action)
	if err != nil {
		return intervention.Result{}, err
	}
	if !res.Proceed {
		return res, nil
	}

	if execErr := fn(ctx); execErr != nil {
		g.counters.RecordExecutionError()
		if logErr := g.audit.LogExecutionError(action, execErr); logErr != nil {
			slog.Warn("execution error audit write failed", "error", logErr)
		}
		return res, execErr
	}
	return res, nil
}

// ApproveAction resolves a pending approval in the requester's favor and
// records the human override in the audit log.
func (g *Guard) ApproveAction(id, approver string) (approval.Request, error) {
	if !g.initialized {
		return approval.Request{}, ErrNotInitialized
	}

	req, outcome := g.registry.Approve(id, approver)
	if !outcome.Success {
		return req, &ResolutionError{Code: outcome.Code, Message: outcome.Message}
	}

	g.counters.RecordApprovalDecision(true)
	if err := g.audit.LogApprovalResolution(req.Context, req.Result, approver, true, ""); err != nil {
		slog.Warn("approval audit write failed", "error", err)
	}
	return req, nil
}

// DenyAction resolves a pending approval against the requester and records
// the denial in the audit log.
func (g *Guard) DenyAction(id, denier, reason string) (approval.Request, error) {
	if !g.initialized {
		return approval.Request{}, ErrNotInitialized
	}

	req, outcome := g.registry.Deny(id, denier, reason)
	if !outcome.Success {
		return req, &ResolutionError{Code: outcome.Code, Message: outcome.Message}
	}

	g.counters.RecordApprovalDecision(false)
	if err := g.audit.LogApprovalResolution(req.Context, req.Result, denier, false, reason); err != nil {
		slog.Warn("denial audit write failed", "error", err)
	}
	return req, nil
}

// WaitForApproval blocks until the request resolves or the timeout lapses.
// True means approved; everything else is false.
func (g *Guard) WaitForApproval(ctx context.Context, id string, timeout time.Duration) (bool, error) {
	if !g.initialized {
		return false, ErrNotInitialized
	}
	return g.registry.Wait(ctx, id, timeout), nil
}

// GetPendingApprovals lists unresolved requests, oldest first.
func (g *Guard) GetPendingApprovals() ([]approval.Request, error) {
	if !g.initialized {
		return nil, ErrNotInitialized
	}
	return g.registry.Pending(), nil
}

// SetSafetyLevel switches the active level by name. Unknown names fail
// loudly and leave the current level in place. Audit verbosity follows the
// new level.
func (g *Guard) SetSafetyLevel(name string) error {
	if !g.initialized {
		return ErrNotInitialized
	}

	level, ok := g.levels.Level(name)
	if !ok {
		return fmt.Errorf("unknown safety level %q", name)
	}

	g.checker.SetLevel(level)
	g.audit.SetVerbosity(level.Logging.Level, level.Logging.IncludeContent)
	slog.Info("safety level changed", "level", level.Name)
	return nil
}

// CurrentLevel returns the active safety level.
func (g *Guard) CurrentLevel() (principles.SafetyLevel, error) {
	if !g.initialized {
		return principles.SafetyLevel{}, ErrNotInitialized
	}
	return g.checker.Level(), nil
}

// Levels returns the configured level catalogue.
func (g *Guard) Levels() (principles.LevelsDocument, error) {
	if !g.initialized {
		return principles.LevelsDocument{}, ErrNotInitialized
	}
	return g.levels, nil
}

// UpdatePrinciples replaces the active document after validation.
func (g *Guard) UpdatePrinciples(doc principles.Document) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	return g.checker.UpdateDocument(doc)
}

// ReloadPrinciples re-reads the principles file from disk.
func (g *Guard) ReloadPrinciples() error {
	if !g.initialized {
		return ErrNotInitialized
	}
	doc, err := principles.LoadDocument(g.cfg.Safety.PrinciplesFile)
	if err != nil {
		return fmt.Errorf("reload principles: %w", err)
	}
	return g.checker.UpdateDocument(doc)
}

// Document returns the active principles document.
func (g *Guard) Document() (principles.Document, error) {
	if !g.initialized {
		return principles.Document{}, ErrNotInitialized
	}
	return g.checker.Document(), nil
}

// Audit exposes the audit logger for query and report commands.
func (g *Guard) Audit() (*audit.Logger, error) {
	if !g.initialized {
		return nil, ErrNotInitialized
	}
	return g.audit, nil
}

// Metrics returns the current decision counters.
func (g *Guard) Metrics() metrics.Snapshot {
	return g.counters.Snapshot()
}

// Cleanup trims the audit log to the retention window.
func (g *Guard) Cleanup(retention time.Duration) error {
	if !g.initialized {
		return ErrNotInitialized
	}
	return g.audit.Cleanup(retention)
}

// Shutdown stops the approval sweep and releases collaborators. The guard
// must be re-initialized before further use.
func (g *Guard) Shutdown() {
	if !g.initialized {
		return
	}
	g.registry.Stop()
	g.checker.DrainAudit()
	g.handler.DrainAudit()
	if err := g.audit.Shutdown(); err != nil {
		slog.Warn("audit shutdown failed", "error", err)
	}
	g.initialized = false
}

func (g *Guard) recordDecision(result safety.CheckResult) {
	warned := result.Intervention != nil && result.Intervention.Type == safety.InterventionWarn
	approvalRequested := result.Intervention != nil && result.Intervention.Type == safety.InterventionRequireApproval
	g.counters.RecordCheck(result.Allowed, warned, approvalRequested)
}

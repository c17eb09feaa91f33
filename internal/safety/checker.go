package safety

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/aegis/internal/principles"
	"github.com/MEKXH/aegis/internal/trace"
)

const prohibitionRiskScore = 0.9

// Checker runs the four-stage safety-decision pipeline. The current safety
// level is instance state behind a lock, so independent checkers can carry
// different levels.
type Checker struct {
	mu           sync.RWMutex
	doc          principles.Document
	prohibitions []compiledProhibition
	level        principles.SafetyLevel
	matcher      principles.Matcher
	audit        DecisionLogger
	auditWG      sync.WaitGroup
	now          func() time.Time
}

type compiledProhibition struct {
	principles.Prohibition
	compiled []*regexp.Regexp
}

// NewChecker compiles the document's prohibitions and binds the initial
// safety level. The matcher defaults to the keyword heuristic.
func NewChecker(doc principles.Document, level principles.SafetyLevel, matcher principles.Matcher) (*Checker, error) {
	c := &Checker{
		level:   level,
		matcher: matcher,
		now:     time.Now,
	}
	if c.matcher == nil {
		c.matcher = principles.NewKeywordMatcher()
	}
	if err := c.setDocument(doc); err != nil {
		return nil, err
	}
	return c, nil
}

// SetAuditLogger injects the audit collaborator. Checks run fine without
// one; with one, every result is forwarded fire-and-forget.
func (c *Checker) SetAuditLogger(l DecisionLogger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audit = l
}

// SetLevel swaps the current safety level.
func (c *Checker) SetLevel(level principles.SafetyLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
}

// Level returns the current safety level.
func (c *Checker) Level() principles.SafetyLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// UpdateDocument replaces principles and prohibitions wholesale.
func (c *Checker) UpdateDocument(doc principles.Document) error {
	return c.setDocument(doc)
}

func (c *Checker) setDocument(doc principles.Document) error {
	if err := principles.ValidateDocument(doc); err != nil {
		return err
	}
	compiled := make([]compiledProhibition, 0, len(doc.Prohibitions))
	for _, pr := range doc.Prohibitions {
		cp := compiledProhibition{Prohibition: pr}
		for _, pattern := range pr.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("prohibition %q: %w", pr.Name, err)
			}
			cp.compiled = append(cp.compiled, re)
		}
		compiled = append(compiled, cp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = doc
	c.prohibitions = compiled
	return nil
}

// Document returns the active principles document.
func (c *Checker) Document() principles.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc
}

// CheckAction evaluates one action. It never returns an error: any internal
// failure, including a panicking matcher, is converted into a fail-secure
// blocked result carrying the error message in the metadata.
func (c *Checker) CheckAction(ctx context.Context, action ActionContext) CheckResult {
	start := c.now()

	c.mu.RLock()
	level := c.level
	audit := c.audit
	c.mu.RUnlock()

	result, err := c.runPipeline(ctx, action, level)
	if err != nil {
		result = failSecureResult(err)
	}

	result.Metadata.RequestID = trace.RequestIDFromContext(ctx)
	result.Metadata.DurationMs = c.now().Sub(start).Milliseconds()
	result.Metadata.SafetyLevel = level.Name
	result.Metadata.Timestamp = start.UTC()

	if audit != nil {
		c.auditWG.Add(1)
		go func() {
			defer c.auditWG.Done()
			if logErr := audit.LogSafetyDecision(action, result, ""); logErr != nil {
				slog.Warn("audit log write failed", "error", logErr)
			}
		}()
	}
	return result
}

// DrainAudit blocks until every detached audit write spawned by CheckAction
// has landed. Called on shutdown before the audit log closes.
func (c *Checker) DrainAudit() {
	c.auditWG.Wait()
}

func (c *Checker) runPipeline(ctx context.Context, action ActionContext, level principles.SafetyLevel) (result CheckResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("safety pipeline panic: %v", r)
		}
	}()

	if checkEnabled(level, "prohibitions") {
		if res, unsafe := c.checkProhibitions(action, level); unsafe {
			return res, nil
		}
	}

	if checkEnabled(level, "principles") {
		res, unsafe, evalErr := c.evaluatePrinciples(ctx, action, level)
		if evalErr != nil {
			return CheckResult{}, evalErr
		}
		if unsafe {
			return res, nil
		}
	}

	assessment := assessRisk(action)
	if checkEnabled(level, "risk") && assessment.unsafe() {
		return riskResult(action, assessment, level), nil
	}

	return resolveThresholds(action, assessment.Total, level), nil
}

// checkProhibitions is stage one: the fast-path deny list, independent of
// principle scoring.
func (c *Checker) checkProhibitions(action ActionContext, level principles.SafetyLevel) (CheckResult, bool) {
	c.mu.RLock()
	prohibitions := c.prohibitions
	c.mu.RUnlock()

	fields := []string{action.Action, action.Input, action.Resource}
	for _, pr := range prohibitions {
		if !pr.Enabled {
			continue
		}
		for _, re := range pr.compiled {
			for _, field := range fields {
				if field == "" || !re.MatchString(field) {
					continue
				}
				violation := fmt.Sprintf("prohibited pattern %s (%s severity)", pr.Name, pr.Severity)
				return CheckResult{
					Safe:       false,
					Allowed:    false,
					RiskScore:  prohibitionRiskScore,
					RiskLevel:  RiskHigh,
					Violations: []string{violation},
					Principles: principleList(pr.Principle),
					Intervention: &InterventionAction{
						Type:         InterventionBlock,
						Reason:       violation,
						Alternatives: suggestAlternatives(action),
					},
				}, true
			}
		}
	}
	return CheckResult{}, false
}

// evaluatePrinciples is stage two: the configured principles through the
// matcher, plus the hand-coded harm families. The maximum severity across
// all violations becomes the risk score.
func (c *Checker) evaluatePrinciples(ctx context.Context, action ActionContext, level principles.SafetyLevel) (CheckResult, bool, error) {
	c.mu.RLock()
	doc := c.doc
	matcher := c.matcher
	c.mu.RUnlock()

	var (
		violations     []string
		principleNames []string
		maxSeverity    float64
	)

	subject := action.Subject()
	for _, p := range doc.Principles {
		if !p.Enabled {
			continue
		}
		ev, err := matcher.EvaluateAgainst(ctx, subject, p)
		if err != nil {
			return CheckResult{}, false, fmt.Errorf("evaluate principle %s: %w", p.Name, err)
		}
		if !ev.Violates {
			continue
		}
		violations = append(violations, ev.Reason)
		principleNames = append(principleNames, p.Name)
		if ev.Severity > maxSeverity {
			maxSeverity = ev.Severity
		}
	}

	flat := action.Action + " " + action.Input + " " + action.Resource
	for _, family := range harmFamilies {
		if !family.Pattern.MatchString(flat) {
			continue
		}
		violations = append(violations, fmt.Sprintf("potential %s detected", family.Name))
		principleNames = append(principleNames, family.Name)
		if family.Severity > maxSeverity {
			maxSeverity = family.Severity
		}
	}

	if len(violations) == 0 {
		return CheckResult{}, false, nil
	}

	interventionType := InterventionWarn
	allowed := true
	if maxSeverity >= 0.8 {
		interventionType = InterventionBlock
		allowed = false
	}
	return CheckResult{
		Safe:       false,
		Allowed:    allowed,
		RiskScore:  maxSeverity,
		RiskLevel:  RiskLevelFor(maxSeverity),
		Violations: violations,
		Principles: principleNames,
		Intervention: &InterventionAction{
			Type:         interventionType,
			Reason:       strings.Join(violations, "; "),
			Alternatives: suggestAlternatives(action),
		},
		RequiresApproval: maxSeverity >= level.Thresholds.RequiresApproval || isSensitiveAction(action.Action),
	}, true, nil
}

// riskResult is the stage-three unsafe verdict.
func riskResult(action ActionContext, assessment riskAssessment, level principles.SafetyLevel) CheckResult {
	reason := "composite risk exceeds threshold"
	if len(assessment.Factors) > 0 {
		reason = fmt.Sprintf("%s: %s", reason, strings.Join(assessment.Factors, ", "))
	}
	interventionType := InterventionWarn
	allowed := true
	if assessment.Total >= 0.8 {
		interventionType = InterventionBlock
		allowed = false
	}
	return CheckResult{
		Safe:       false,
		Allowed:    allowed,
		RiskScore:  assessment.Total,
		RiskLevel:  RiskLevelFor(assessment.Total),
		Violations: []string{reason},
		Intervention: &InterventionAction{
			Type:         interventionType,
			Reason:       reason,
			Alternatives: suggestAlternatives(action),
		},
		RequiresApproval: assessment.Total >= level.Thresholds.RequiresApproval || isSensitiveAction(action.Action),
	}
}

// resolveThresholds is stage four: the score survived the earlier stages
// and is resolved against the current level. The requires-approval flag is
// set independently of the block/warn outcome: either the score reaches the
// approval threshold or the action matches the fixed sensitive list. The
// two triggers are deliberately kept as independent flags.
func resolveThresholds(action ActionContext, score float64, level principles.SafetyLevel) CheckResult {
	t := level.Thresholds
	requiresApproval := score >= t.RequiresApproval || isSensitiveAction(action.Action)

	result := CheckResult{
		RiskScore:        score,
		RiskLevel:        RiskLevelFor(score),
		Violations:       []string{},
		Principles:       []string{},
		RequiresApproval: requiresApproval,
	}

	switch {
	case score >= t.AutoBlock:
		result.Intervention = &InterventionAction{
			Type:         InterventionBlock,
			Reason:       fmt.Sprintf("risk score %.2f at or above auto-block threshold %.2f", score, t.AutoBlock),
			Alternatives: suggestAlternatives(action),
		}
	case requiresApproval:
		result.Intervention = &InterventionAction{
			Type:   InterventionRequireApproval,
			Reason: fmt.Sprintf("risk score %.2f requires human approval on level %s", score, level.Name),
		}
	case score >= t.Warning:
		result.Intervention = &InterventionAction{
			Type:   InterventionWarn,
			Reason: fmt.Sprintf("risk score %.2f above warning threshold %.2f", score, t.Warning),
		}
	}

	result.Allowed = result.Intervention == nil || result.Intervention.Type == InterventionWarn
	result.Safe = result.Intervention == nil
	return result
}

// failSecureResult converts an internal evaluation error into a blocked
// critical result. Errors never propagate to the caller.
func failSecureResult(err error) CheckResult {
	return CheckResult{
		Safe:       false,
		Allowed:    false,
		RiskScore:  1.0,
		RiskLevel:  RiskCritical,
		Violations: []string{"safety evaluation failed"},
		Intervention: &InterventionAction{
			Type:   InterventionBlock,
			Reason: "internal safety evaluation error, failing secure",
		},
		RequiresApproval: true,
		Metadata:         ResultMetadata{Error: err.Error()},
	}
}

func checkEnabled(level principles.SafetyLevel, name string) bool {
	if len(level.EnabledChecks) == 0 {
		return true
	}
	for _, c := range level.EnabledChecks {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func principleList(name string) []string {
	if strings.TrimSpace(name) == "" {
		return []string{}
	}
	return []string{name}
}

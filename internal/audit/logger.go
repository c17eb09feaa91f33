package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/aegis/internal/safety"
)

const (
	auditFileMode = 0644
	auditDirMode  = 0755
)

// Decision labels recorded per entry.
const (
	DecisionAllowed          = "allowed"
	DecisionBlocked          = "blocked"
	DecisionWarned           = "warned"
	DecisionApprovalRequired = "approval_required"
	DecisionExecutionError   = "execution_error"
)

// Entry is one audit record written as a single JSON line.
type Entry struct {
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Action     string    `json:"action,omitempty"`
	Resource   string    `json:"resource,omitempty"`
	Input      string    `json:"input,omitempty"`
	RiskLevel  string    `json:"risk_level,omitempty"`
	RiskScore  float64   `json:"risk_score,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	Violations []string  `json:"violations,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Override   string    `json:"override,omitempty"`
}

// Filters narrows a Query.
type Filters struct {
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	RiskLevel string
	Decision  string
	Limit     int
}

// Report aggregates decisions over a period.
type Report struct {
	Period           string         `json:"period"`
	TotalChecks      int            `json:"total_checks"`
	Allowed          int            `json:"allowed"`
	Blocked          int            `json:"blocked"`
	Warned           int            `json:"warned"`
	ApprovalRequired int            `json:"approval_required"`
	RiskDistribution map[string]int `json:"risk_distribution"`
}

// Logger appends safety decisions to <workspace>/state/safety_audit.jsonl.
// Verbosity follows the current safety level and is swapped on level
// switches. All methods are safe for concurrent use.
type Logger struct {
	path string

	mu             sync.Mutex
	level          string
	includeContent bool
	now            func() time.Time
}

// NewLogger creates an append-only audit logger rooted at workspace state.
func NewLogger(workspace string) *Logger {
	return &Logger{
		path:  filepath.Join(workspace, "state", "safety_audit.jsonl"),
		level: "info",
		now:   time.Now,
	}
}

// SetVerbosity reconfigures logging per the active safety level.
func (l *Logger) SetVerbosity(level string, includeContent bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = strings.ToLower(strings.TrimSpace(level))
	l.includeContent = includeContent
}

// LogSafetyDecision records the outcome of one check. Override, when set,
// names the operator whose approval overrode the original decision.
func (l *Logger) LogSafetyDecision(action safety.ActionContext, result safety.CheckResult, override string) error {
	decision := decisionLabel(result)

	l.mu.Lock()
	level := l.level
	includeContent := l.includeContent
	l.mu.Unlock()

	if quietLevel(level) && decision == DecisionAllowed && override == "" {
		return nil
	}

	entry := Entry{
		Time:       l.now().UTC(),
		Type:       "safety_decision",
		RequestID:  result.Metadata.RequestID,
		UserID:     action.UserID,
		SessionID:  action.SessionID,
		Action:     action.Action,
		Resource:   action.Resource,
		RiskLevel:  string(result.RiskLevel),
		RiskScore:  result.RiskScore,
		Decision:   decision,
		Violations: result.Violations,
		Override:   override,
	}
	if includeContent {
		entry.Input = action.Input
	}
	return l.append(entry)
}

// LogApprovalResolution records a human decision on a held action. Approval
// lands as allowed, denial as blocked; either way the resolver is recorded
// as the override.
func (l *Logger) LogApprovalResolution(action safety.ActionContext, result safety.CheckResult, resolver string, approved bool, reason string) error {
	decision := DecisionBlocked
	if approved {
		decision = DecisionAllowed
	}
	entry := Entry{
		Time:       l.now().UTC(),
		Type:       "safety_decision",
		RequestID:  result.Metadata.RequestID,
		UserID:     action.UserID,
		SessionID:  action.SessionID,
		Action:     action.Action,
		Resource:   action.Resource,
		RiskLevel:  string(result.RiskLevel),
		RiskScore:  result.RiskScore,
		Decision:   decision,
		Violations: result.Violations,
		Reason:     reason,
		Override:   resolver,
	}
	return l.append(entry)
}

// LogIntervention records the concrete consequence applied to an action.
func (l *Logger) LogIntervention(action safety.ActionContext, interventionType, reason, decision string) error {
	entry := Entry{
		Time:      l.now().UTC(),
		Type:      "intervention",
		UserID:    action.UserID,
		SessionID: action.SessionID,
		Action:    action.Action,
		Resource:  action.Resource,
		Decision:  decision,
		Reason:    fmt.Sprintf("%s: %s", interventionType, reason),
	}
	return l.append(entry)
}

// LogExecutionError records a failure thrown by a guarded action after it
// was allowed to proceed.
func (l *Logger) LogExecutionError(action safety.ActionContext, execErr error) error {
	entry := Entry{
		Time:      l.now().UTC(),
		Type:      DecisionExecutionError,
		UserID:    action.UserID,
		SessionID: action.SessionID,
		Action:    action.Action,
		Resource:  action.Resource,
		Decision:  DecisionExecutionError,
		Reason:    execErr.Error(),
	}
	return l.append(entry)
}

func (l *Logger) append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), auditDirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	encoded = append(encoded, '\n')

	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return file.Sync()
}

// Query reads the log back, newest last, applying the filters.
func (l *Logger) Query(filters Filters) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if filters.UserID != "" && e.UserID != filters.UserID {
			continue
		}
		if !filters.StartDate.IsZero() && e.Time.Before(filters.StartDate) {
			continue
		}
		if !filters.EndDate.IsZero() && e.Time.After(filters.EndDate) {
			continue
		}
		if filters.RiskLevel != "" && !strings.EqualFold(e.RiskLevel, filters.RiskLevel) {
			continue
		}
		if filters.Decision != "" && !strings.EqualFold(e.Decision, filters.Decision) {
			continue
		}
		out = append(out, e)
		if filters.Limit > 0 && len(out) >= filters.Limit {
			break
		}
	}
	return out, nil
}

// Tail returns the most recent n entries.
func (l *Logger) Tail(n int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// GenerateReport aggregates safety decisions over the trailing period.
func (l *Logger) GenerateReport(period time.Duration) (Report, error) {
	entries, err := l.readAll()
	if err != nil {
		return Report{}, err
	}

	cutoff := l.now().UTC().Add(-period)
	report := Report{
		Period:           period.String(),
		RiskDistribution: make(map[string]int),
	}
	for _, e := range entries {
		if e.Type != "safety_decision" || e.Time.Before(cutoff) {
			continue
		}
		report.TotalChecks++
		switch e.Decision {
		case DecisionAllowed:
			report.Allowed++
		case DecisionBlocked:
			report.Blocked++
		case DecisionWarned:
			report.Warned++
		case DecisionApprovalRequired:
			report.ApprovalRequired++
		}
		if e.RiskLevel != "" {
			report.RiskDistribution[e.RiskLevel]++
		}
	}
	return report, nil
}

// Cleanup rewrites the log keeping only entries newer than retention.
func (l *Logger) Cleanup(retention time.Duration) error {
	entries, err := l.readAll()
	if err != nil {
		return err
	}

	cutoff := l.now().UTC().Add(-retention)
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Time.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(l.path), "audit-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp audit file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, e := range kept {
		encoded, err := json.Marshal(e)
		if err != nil {
			_ = tmp.Close()
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		if _, err := w.Write(append(encoded, '\n')); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write temp audit file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, l.path)
}

// Shutdown flushes nothing today; the logger writes synchronously. Kept so
// callers can treat the collaborator uniformly.
func (l *Logger) Shutdown() error { return nil }

func (l *Logger) readAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit file: %w", err)
	}
	return entries, nil
}

func decisionLabel(result safety.CheckResult) string {
	switch {
	case result.Intervention != nil && result.Intervention.Type == safety.InterventionBlock:
		return DecisionBlocked
	case result.RequiresApproval:
		return DecisionApprovalRequired
	case result.Intervention != nil && result.Intervention.Type == safety.InterventionWarn:
		return DecisionWarned
	default:
		return DecisionAllowed
	}
}

func quietLevel(level string) bool {
	return level == "warn" || level == "warning" || level == "error"
}

// Package metrics keeps in-process counters of safety decisions, persisted
// as a JSON snapshot under the workspace state directory.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const countersFileName = "safety_metrics.json"

// Snapshot is the aggregated decision counters.
type Snapshot struct {
	UpdatedAt          time.Time `json:"updated_at"`
	Checks             int64     `json:"checks"`
	Allowed            int64     `json:"allowed"`
	Blocked            int64     `json:"blocked"`
	Warned             int64     `json:"warned"`
	ApprovalsRequested int64     `json:"approvals_requested"`
	ApprovalsApproved  int64     `json:"approvals_approved"`
	ApprovalsDenied    int64     `json:"approvals_denied"`
	ExecutionErrors    int64     `json:"execution_errors"`
}

// BlockRatio returns blocked/checks in [0,1].
func (s Snapshot) BlockRatio() float64 {
	if s.Checks <= 0 {
		return 0
	}
	return float64(s.Blocked) / float64(s.Checks)
}

// HasData reports whether any decisions were recorded.
func (s Snapshot) HasData() bool { return s.Checks > 0 }

// Counters records and persists decision counters.
type Counters struct {
	path string

	mu   sync.Mutex
	snap Snapshot
}

// NewCounters creates a recorder rooted at <workspace>/state.
func NewCounters(workspacePath string) *Counters {
	return &Counters{
		path: filepath.Join(workspacePath, "state", countersFileName),
	}
}

// Snapshot returns the latest in-memory snapshot.
func (c *Counters) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// RecordCheck updates counters for one decision and persists the snapshot.
func (c *Counters) RecordCheck(allowed, warned, approvalRequested bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.Checks++
	switch {
	case approvalRequested:
		c.snap.ApprovalsRequested++
	case allowed && warned:
		c.snap.Warned++
		c.snap.Allowed++
	case allowed:
		c.snap.Allowed++
	default:
		c.snap.Blocked++
	}
	c.persistLocked()
}

// RecordApprovalDecision updates the approve/deny counters.
func (c *Counters) RecordApprovalDecision(approved bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if approved {
		c.snap.ApprovalsApproved++
	} else {
		c.snap.ApprovalsDenied++
	}
	c.persistLocked()
}

// RecordExecutionError counts a guarded action that failed after approval.
func (c *Counters) RecordExecutionError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.ExecutionErrors++
	c.persistLocked()
}

// Load restores a persisted snapshot. Missing or malformed files are
// treated as empty.
func (c *Counters) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read metrics snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	return nil
}

func (c *Counters) persistLocked() {
	c.snap.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(c.snap, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return
	}
	_ = os.WriteFile(c.path, data, 0644)
}

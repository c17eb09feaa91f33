package approval

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MEKXH/aegis/internal/safety"
)

const (
	// DefaultTTL is how long a pending request waits for a human decision.
	DefaultTTL = 15 * time.Minute
	// DefaultSweepInterval drives the background expiry/eviction loop.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultRetention evicts requests from the registry regardless of state.
	DefaultRetention = 24 * time.Hour
)

// Registry owns the in-memory approval requests and their waiters. All
// status transitions happen inside a single critical section, so two racing
// approve/deny calls on the same request cannot both win.
type Registry struct {
	ttl           time.Duration
	sweepInterval time.Duration
	retention     time.Duration
	now           func() time.Time

	mu       sync.Mutex
	requests map[string]*Request
	waiters  map[string][]chan bool

	stopCh  chan struct{}
	stopped chan struct{}
	running bool
}

// NewRegistry creates an empty registry with default TTL, sweep interval
// and retention.
func NewRegistry() *Registry {
	return NewRegistryWithConfig(DefaultTTL, DefaultSweepInterval, DefaultRetention)
}

// NewRegistryWithConfig creates a registry with explicit timing. Zero or
// negative values fall back to the defaults.
func NewRegistryWithConfig(ttl, sweepInterval, retention time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		ttl:           ttl,
		sweepInterval: sweepInterval,
		retention:     retention,
		now:           time.Now,
		requests:      make(map[string]*Request),
		waiters:       make(map[string][]chan bool),
	}
}

// Submit registers a new pending request for the given check and returns it.
func (r *Registry) Submit(actionCtx safety.ActionContext, result safety.CheckResult) Request {
	now := r.now().UTC()
	req := Request{
		ID:          uuid.NewString(),
		Context:     actionCtx,
		Result:      result,
		RequestedAt: now,
		ExpiresAt:   now.Add(r.ttl),
		Status:      StatusPending,
	}

	r.mu.Lock()
	r.requests[req.ID] = &req
	r.mu.Unlock()
	return req
}

// Get returns a copy of the request with the given id.
func (r *Registry) Get(id string) (Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, false
	}
	return *req, true
}

// Pending returns all pending requests, oldest first.
func (r *Registry) Pending() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Request, 0, len(r.requests))
	for _, req := range r.requests {
		if req.Status == StatusPending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// Approve resolves a pending request in the caller's favor. The status
// check and mutation are one atomic step.
func (r *Registry) Approve(id, approver string) (Request, Outcome) {
	return r.resolve(id, StatusApproved, approver, "")
}

// Deny resolves a pending request against the caller.
func (r *Registry) Deny(id, denier, reason string) (Request, Outcome) {
	return r.resolve(id, StatusDenied, denier, reason)
}

func (r *Registry) resolve(id string, status Status, actor, reason string) (Request, Outcome) {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return Request{}, failOutcome(OutcomeNotFound, "approval request not found: "+id)
	}
	if req.Status != StatusPending {
		return *req, failOutcome(OutcomeAlreadyResolved, "approval request already "+string(req.Status))
	}
	if now.After(req.ExpiresAt) {
		req.Status = StatusExpired
		r.fireWaitersLocked(id, false)
		return *req, failOutcome(OutcomeExpired, "approval request expired")
	}

	req.Status = status
	req.Approver = actor
	req.ApprovedAt = now
	req.Reason = reason
	r.fireWaitersLocked(id, status == StatusApproved)

	return *req, okOutcome("approval request " + string(status))
}

// Wait blocks until the request reaches a terminal state or the timeout
// lapses. It returns true only on approval; denial, expiry and timeout all
// return false. A timeout marks a still-pending request expired.
func (r *Registry) Wait(ctx context.Context, id string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = r.ttl
	}

	r.mu.Lock()
	req, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if req.Status != StatusPending {
		status := req.Status
		r.mu.Unlock()
		return status == StatusApproved
	}
	ch := make(chan bool, 1)
	r.waiters[id] = append(r.waiters[id], ch)
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case approved := <-ch:
		return approved
	case <-timer.C:
	case <-ctx.Done():
	}

	// Timed out or cancelled: clear this waiter and expire the request if it
	// is still pending. A resolution that raced the timer still counts.
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeWaiterLocked(id, ch)
	if req, ok := r.requests[id]; ok {
		if req.Status == StatusPending {
			req.Status = StatusExpired
			r.fireWaitersLocked(id, false)
		}
		return req.Status == StatusApproved
	}
	return false
}

// fireWaitersLocked resolves every one-shot waiter registered for id.
// Callers must hold r.mu.
func (r *Registry) fireWaitersLocked(id string, approved bool) {
	for _, ch := range r.waiters[id] {
		ch <- approved
	}
	delete(r.waiters, id)
}

// removeWaiterLocked drops one waiter channel without disturbing the rest.
// Callers must hold r.mu.
func (r *Registry) removeWaiterLocked(id string, ch chan bool) {
	chans := r.waiters[id]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(r.waiters, id)
		return
	}
	r.waiters[id] = chans
}

// Start launches the periodic sweep loop.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.stopCh = make(chan struct{})
	r.stopped = make(chan struct{})
	r.running = true
	go r.loop(r.stopCh, r.stopped)
	slog.Info("approval sweep started", "interval", r.sweepInterval.String())
}

// Stop halts the sweep loop and waits for it to exit.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	stopped := r.stopped
	r.running = false
	r.stopCh = nil
	r.stopped = nil
	r.mu.Unlock()

	close(stopCh)
	<-stopped
}

func (r *Registry) loop(stopCh <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			expired, evicted := r.SweepOnce()
			if expired > 0 || evicted > 0 {
				slog.Info("approval sweep", "expired", expired, "evicted", evicted)
			}
		}
	}
}

// SweepOnce expires pending requests past their deadline, firing their
// waiters with false, and evicts requests older than the retention window
// regardless of state. Returns the counts.
func (r *Registry) SweepOnce() (expired, evicted int) {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, req := range r.requests {
		if req.Status == StatusPending && now.After(req.ExpiresAt) {
			req.Status = StatusExpired
			r.fireWaitersLocked(id, false)
			expired++
		}
		if now.Sub(req.RequestedAt) > r.retention {
			delete(r.requests, id)
			delete(r.waiters, id)
			evicted++
		}
	}
	return expired, evicted
}

package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MEKXH/aegis/internal/safety"
)

func testAction() safety.ActionContext {
	return safety.ActionContext{
		Action:        "delete_database",
		Resource:      "user_data",
		UserID:        "agent-1",
		Authenticated: true,
	}
}

func testResult() safety.CheckResult {
	return safety.CheckResult{
		RiskScore:        0.57,
		RiskLevel:        safety.RiskMedium,
		RequiresApproval: true,
	}
}

// fixedClock lets tests move registry time by hand.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(clock *fixedClock) *Registry {
	r := NewRegistry()
	if clock != nil {
		r.now = clock.now
	}
	return r
}

func TestSubmitAndGet(t *testing.T) {
	r := newTestRegistry(nil)

	req := r.Submit(testAction(), testResult())
	if req.ID == "" {
		t.Fatal("expected generated id")
	}
	if req.Status != StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if !req.ExpiresAt.Equal(req.RequestedAt.Add(DefaultTTL)) {
		t.Fatalf("expected deadline at requested+ttl, got %v", req.ExpiresAt)
	}

	got, ok := r.Get(req.ID)
	if !ok {
		t.Fatal("expected to find the request")
	}
	if got.Context.Action != "delete_database" {
		t.Fatalf("context lost: %+v", got.Context)
	}

	if _, ok := r.Get("missing"); ok {
		t.Fatal("unexpected hit for unknown id")
	}
}

func TestPending_SortedOldestFirst(t *testing.T) {
	clock := &fixedClock{t: time.Now()}
	r := newTestRegistry(clock)

	first := r.Submit(testAction(), testResult())
	clock.advance(time.Minute)
	second := r.Submit(testAction(), testResult())

	pending := r.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatal("expected oldest-first ordering")
	}
}

func TestApprove(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	resolved, outcome := r.Approve(req.ID, "operator-1")
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if resolved.Status != StatusApproved || resolved.Approver != "operator-1" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
	if resolved.ApprovedAt.IsZero() {
		t.Fatal("expected resolution timestamp")
	}
}

func TestDeny(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	resolved, outcome := r.Deny(req.ID, "operator-2", "too risky")
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if resolved.Status != StatusDenied || resolved.Reason != "too risky" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := newTestRegistry(nil)

	_, outcome := r.Approve("missing", "operator-1")
	if outcome.Success || outcome.Code != OutcomeNotFound {
		t.Fatalf("expected not_found, got %+v", outcome)
	}
}

func TestResolve_ExactlyOnce(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	if _, outcome := r.Approve(req.ID, "operator-1"); !outcome.Success {
		t.Fatalf("first resolution failed: %+v", outcome)
	}
	if _, outcome := r.Deny(req.ID, "operator-2", "no"); outcome.Success || outcome.Code != OutcomeAlreadyResolved {
		t.Fatalf("expected already_resolved, got %+v", outcome)
	}

	got, _ := r.Get(req.ID)
	if got.Status != StatusApproved {
		t.Fatalf("losing call must not change the status, got %s", got.Status)
	}
}

func TestResolve_ConcurrentRace(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	var wg sync.WaitGroup
	wins := make(chan Status, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, outcome := r.Approve(req.ID, "a"); outcome.Success {
			wins <- StatusApproved
		}
	}()
	go func() {
		defer wg.Done()
		if _, outcome := r.Deny(req.ID, "b", ""); outcome.Success {
			wins <- StatusDenied
		}
	}()
	wg.Wait()
	close(wins)

	var winners []Status
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}

	got, _ := r.Get(req.ID)
	if got.Status != winners[0] {
		t.Fatalf("status %s does not match winner %s", got.Status, winners[0])
	}
}

func TestResolve_LazyExpiry(t *testing.T) {
	clock := &fixedClock{t: time.Now()}
	r := newTestRegistry(clock)
	req := r.Submit(testAction(), testResult())

	clock.advance(DefaultTTL + time.Minute)

	_, outcome := r.Approve(req.ID, "operator-1")
	if outcome.Success || outcome.Code != OutcomeExpired {
		t.Fatalf("expected expired, got %+v", outcome)
	}
	got, _ := r.Get(req.ID)
	if got.Status != StatusExpired {
		t.Fatalf("expected expired status, got %s", got.Status)
	}
}

func TestWait_Approved(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	done := make(chan bool, 1)
	go func() {
		done <- r.Wait(context.Background(), req.ID, 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	r.Approve(req.ID, "operator-1")

	select {
	case approved := <-done:
		if !approved {
			t.Fatal("expected true on approval")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestWait_Denied(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	done := make(chan bool, 1)
	go func() {
		done <- r.Wait(context.Background(), req.ID, 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	r.Deny(req.ID, "operator-1", "no")

	select {
	case approved := <-done:
		if approved {
			t.Fatal("expected false on denial")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestWait_MultipleWaitersAllResolve(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	done := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- r.Wait(context.Background(), req.ID, 5*time.Second)
		}()
	}

	// Both waiters must be registered before resolution fires them.
	deadline := time.Now().Add(time.Second)
	for {
		r.mu.Lock()
		n := len(r.waiters[req.ID])
		r.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("waiters never registered")
		}
		time.Sleep(time.Millisecond)
	}

	r.Approve(req.ID, "operator-1")

	for i := 0; i < 2; i++ {
		select {
		case approved := <-done:
			if !approved {
				t.Fatal("every waiter must observe the approval")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("a waiter never returned")
		}
	}
}

func TestWait_TimedOutWaiterLeavesOthersRegistered(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	short := make(chan bool, 1)
	go func() {
		short <- r.Wait(context.Background(), req.ID, 10*time.Millisecond)
	}()
	long := make(chan bool, 1)
	go func() {
		long <- r.Wait(context.Background(), req.ID, 5*time.Second)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		r.mu.Lock()
		n := len(r.waiters[req.ID])
		r.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("waiters never registered")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case approved := <-short:
		if approved {
			t.Fatal("short waiter should time out false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("short waiter never returned")
	}

	// The short waiter's timeout expired the pending request; the long
	// waiter must have been woken rather than left dangling.
	select {
	case approved := <-long:
		if approved {
			t.Fatal("expired request must resolve false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("long waiter never returned")
	}
}

func TestWait_AlreadyResolved(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())
	r.Approve(req.ID, "operator-1")

	if !r.Wait(context.Background(), req.ID, time.Second) {
		t.Fatal("expected immediate true for an approved request")
	}
}

func TestWait_TimeoutExpiresRequest(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	if r.Wait(context.Background(), req.ID, 20*time.Millisecond) {
		t.Fatal("expected false on timeout")
	}
	got, _ := r.Get(req.ID)
	if got.Status != StatusExpired {
		t.Fatalf("timeout must expire the request, got %s", got.Status)
	}
}

func TestWait_UnknownID(t *testing.T) {
	r := newTestRegistry(nil)
	if r.Wait(context.Background(), "missing", time.Second) {
		t.Fatal("expected false for unknown id")
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	r := newTestRegistry(nil)
	req := r.Submit(testAction(), testResult())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		done <- r.Wait(ctx, req.ID, time.Minute)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case approved := <-done:
		if approved {
			t.Fatal("expected false on cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestSweepOnce_ExpiresAndEvicts(t *testing.T) {
	clock := &fixedClock{t: time.Now()}
	r := newTestRegistry(clock)

	stale := r.Submit(testAction(), testResult())
	resolved := r.Submit(testAction(), testResult())
	r.Approve(resolved.ID, "operator-1")

	clock.advance(DefaultTTL + time.Minute)
	fresh := r.Submit(testAction(), testResult())

	expired, evicted := r.SweepOnce()
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}
	if evicted != 0 {
		t.Fatalf("expected no evictions yet, got %d", evicted)
	}

	got, _ := r.Get(stale.ID)
	if got.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	if got, _ := r.Get(fresh.ID); got.Status != StatusPending {
		t.Fatalf("fresh request must stay pending, got %s", got.Status)
	}

	// Past the retention window everything old disappears, whatever state.
	clock.advance(DefaultRetention)
	_, evicted = r.SweepOnce()
	if evicted != 2 {
		t.Fatalf("expected 2 evicted, got %d", evicted)
	}
	if _, ok := r.Get(stale.ID); ok {
		t.Fatal("expected stale request evicted")
	}
}

func TestSweepOnce_FiresWaiters(t *testing.T) {
	clock := &fixedClock{t: time.Now()}
	r := newTestRegistry(clock)
	req := r.Submit(testAction(), testResult())

	done := make(chan bool, 1)
	go func() {
		done <- r.Wait(context.Background(), req.ID, time.Minute)
	}()
	time.Sleep(20 * time.Millisecond)

	clock.advance(DefaultTTL + time.Minute)
	r.SweepOnce()

	select {
	case approved := <-done:
		if approved {
			t.Fatal("expired requests resolve waiters with false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never fired")
	}
}

func TestStartStop(t *testing.T) {
	r := NewRegistryWithConfig(time.Minute, 10*time.Millisecond, time.Hour)
	r.Start()
	r.Start() // idempotent
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	r.Stop() // idempotent
}

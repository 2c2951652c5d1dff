package circuitbreaker

import (
	"sync"
	"testing"
	"time"
)

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if !b.Allow("reputation") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	// 2 failures = still closed
	b.RecordFailure("reputation")
	b.RecordFailure("reputation")
	if !b.Allow("reputation") {
		t.Fatal("should still allow before threshold")
	}

	// 3rd failure = open
	b.RecordFailure("reputation")
	if b.Allow("reputation") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("reputation") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("reputation"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("mixer")
	b.RecordFailure("mixer")
	if b.Allow("mixer") {
		t.Fatal("should be open")
	}

	// Wait for open duration.
	time.Sleep(60 * time.Millisecond)

	// Should transition to half-open and allow one probe.
	if !b.Allow("mixer") {
		t.Fatal("should allow probe in half-open")
	}
	if b.State("mixer") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("mixer"))
	}

	// Second request while half-open should be rejected.
	if b.Allow("mixer") {
		t.Fatal("should reject second request in half-open")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("contract")
	b.RecordFailure("contract")
	time.Sleep(60 * time.Millisecond)
	b.Allow("contract") // Transitions to half-open

	b.RecordSuccess("contract")
	if b.State("contract") != StateClosed {
		t.Fatalf("expected StateClosed after success, got %v", b.State("contract"))
	}
	if !b.Allow("contract") {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("contract")
	b.RecordFailure("contract")
	time.Sleep(60 * time.Millisecond)
	b.Allow("contract") // Transitions to half-open

	b.RecordFailure("contract")
	if b.State("contract") != StateOpen {
		t.Fatalf("expected StateOpen after half-open failure, got %v", b.State("contract"))
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("approvals")
	b.RecordFailure("approvals")
	b.RecordSuccess("approvals")

	// Should not trip with only 1 more failure (counter was reset).
	b.RecordFailure("approvals")
	if !b.Allow("approvals") {
		t.Fatal("should still be closed after reset")
	}
}

func TestBreaker_IndependentProviders(t *testing.T) {
	b := New(2, 100*time.Millisecond)

	b.RecordFailure("reputation")
	b.RecordFailure("reputation")

	// reputation is open, mixer should be unaffected.
	if b.Allow("reputation") {
		t.Fatal("reputation should be open")
	}
	if !b.Allow("mixer") {
		t.Fatal("mixer should be closed")
	}
}

func TestBreaker_UnknownProviderIsClosed(t *testing.T) {
	b := New(2, 100*time.Millisecond)
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown provider, got %v", b.State("unknown"))
	}
}

func TestBreaker_OnTransitionCallback(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	var mu sync.Mutex
	var transitions []struct{ from, to State }
	b.OnTransition(func(provider string, from, to State) {
		mu.Lock()
		transitions = append(transitions, struct{ from, to State }{from, to})
		mu.Unlock()
	})

	b.RecordFailure("reputation")
	b.RecordFailure("reputation") // Should trigger closed→open.

	// Give goroutine time to run.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != StateClosed || transitions[0].to != StateOpen {
		t.Fatalf("expected closed→open, got %v→%v", transitions[0].from, transitions[0].to)
	}
	mu.Unlock()
}

func TestBreaker_Snapshot(t *testing.T) {
	b := New(2, 100*time.Millisecond)

	b.RecordFailure("reputation")
	b.RecordFailure("reputation")
	b.RecordFailure("mixer")

	statuses := b.Snapshot()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 providers in snapshot, got %d", len(statuses))
	}

	byProvider := make(map[string]Status)
	for _, st := range statuses {
		byProvider[st.Provider] = st
	}

	rep := byProvider["reputation"]
	if rep.State != "open" || rep.ConsecutiveFailures != 2 {
		t.Fatalf("unexpected reputation status: %+v", rep)
	}
	if rep.OpenedAt == nil {
		t.Fatal("expected openedAt for open circuit")
	}

	mix := byProvider["mixer"]
	if mix.State != "closed" || mix.ConsecutiveFailures != 1 {
		t.Fatalf("unexpected mixer status: %+v", mix)
	}
	if mix.OpenedAt != nil {
		t.Fatal("closed circuit should have no openedAt")
	}
}

func TestBreaker_SnapshotIncludesHealthyProviders(t *testing.T) {
	b := New(2, 100*time.Millisecond)

	b.RecordSuccess("approvals")
	b.RecordFailure("reputation")
	b.RecordFailure("reputation")

	statuses := b.Snapshot()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 providers in snapshot, got %d", len(statuses))
	}

	byProvider := make(map[string]Status)
	for _, st := range statuses {
		byProvider[st.Provider] = st
	}

	app, ok := byProvider["approvals"]
	if !ok {
		t.Fatal("provider with only successes missing from snapshot")
	}
	if app.State != "closed" || app.ConsecutiveFailures != 0 {
		t.Fatalf("unexpected approvals status: %+v", app)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.s, got, tt.want)
		}
	}
}

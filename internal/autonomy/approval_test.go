package autonomy

import (
	"context"
	"testing"
	"time"
)

func TestApprovalGate_RequestAndResolve(t *testing.T) {
	gate := NewApprovalGate(nil)
	req := gate.Request("session-1", "dangerous_tool", "risk too high", 8, nil)

	resultCh := make(chan ApprovalDecision, 1)
	go func() {
		decision, err := gate.Wait(context.Background(), req.ID, time.Second)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		resultCh <- decision
	}()

	// Give Wait a chance to register before resolving.
	time.Sleep(10 * time.Millisecond)
	if ok := gate.Resolve(req.ID, ApprovalApproved); !ok {
		t.Fatal("expected Resolve to succeed for a pending request")
	}

	select {
	case decision := <-resultCh:
		if decision != ApprovalApproved {
			t.Errorf("decision = %v, want approved", decision)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Wait to return")
	}
}

func TestApprovalGate_Timeout_FailsClosed(t *testing.T) {
	gate := NewApprovalGate(nil)
	req := gate.Request("session-1", "tool", "reason", 5, nil)

	decision, err := gate.Wait(context.Background(), req.ID, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if decision != ApprovalDenied {
		t.Errorf("decision on timeout = %v, want denied", decision)
	}
}

func TestApprovalGate_ContextCancel_FailsClosed(t *testing.T) {
	gate := NewApprovalGate(nil)
	req := gate.Request("session-1", "tool", "reason", 5, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	decision, err := gate.Wait(ctx, req.ID, time.Second)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
	if decision != ApprovalDenied {
		t.Errorf("decision on cancellation = %v, want denied", decision)
	}
}

func TestApprovalGate_ResolveIsIdempotent(t *testing.T) {
	gate := NewApprovalGate(nil)
	req := gate.Request("session-1", "tool", "reason", 5, nil)

	if ok := gate.Resolve(req.ID, ApprovalApproved); !ok {
		t.Fatal("first resolve should succeed")
	}
	if ok := gate.Resolve(req.ID, ApprovalApproved); ok {
		t.Error("second resolve of the same request should be a no-op, not succeed again")
	}
}

func TestApprovalGate_ResolveUnknownRequest(t *testing.T) {
	gate := NewApprovalGate(nil)
	if ok := gate.Resolve("does-not-exist", ApprovalApproved); ok {
		t.Error("resolving an unknown request should report false, not panic or succeed")
	}
}

func TestApprovalGate_Pending(t *testing.T) {
	gate := NewApprovalGate(nil)
	gate.Request("session-1", "tool-a", "reason", 1, nil)
	gate.Request("session-1", "tool-b", "reason", 2, nil)

	pending := gate.Pending()
	if len(pending) != 2 {
		t.Fatalf("len(Pending()) = %d, want 2", len(pending))
	}
}

func TestApprovalGate_Close_FailsAllPendingClosed(t *testing.T) {
	gate := NewApprovalGate(nil)
	req := gate.Request("session-1", "tool", "reason", 5, nil)

	resultCh := make(chan ApprovalDecision, 1)
	go func() {
		decision, _ := gate.Wait(context.Background(), req.ID, time.Minute)
		resultCh <- decision
	}()

	time.Sleep(10 * time.Millisecond)
	gate.Close()

	select {
	case decision := <-resultCh:
		if decision != ApprovalDenied {
			t.Errorf("decision after Close = %v, want denied", decision)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Wait to return after Close")
	}
}

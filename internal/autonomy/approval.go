package autonomy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ApprovalDecision is the human's resolution of a pending approval request.
type ApprovalDecision int

const (
	ApprovalPending ApprovalDecision = iota
	ApprovalApproved
	ApprovalDenied
)

func (d ApprovalDecision) String() string {
	switch d {
	case ApprovalPending:
		return "pending"
	case ApprovalApproved:
		return "approved"
	case ApprovalDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// ApprovalRequest describes one escalated tool call awaiting a human decision.
type ApprovalRequest struct {
	ID         string
	SessionID  string
	ToolName   string
	Reason     string
	RiskLevel  int
	Args       map[string]any
	RequestedAt time.Time
}

// HumanApprovalRequiredError signals that a tool call is waiting on a human
// decision. Callers propagate it up to the stream event layer, which emits
// an ApprovalRequired event and suspends the loop iteration.
type HumanApprovalRequiredError struct {
	RequestID string
}

func (e *HumanApprovalRequiredError) Error() string {
	return fmt.Sprintf("tool call requires human approval: request %s", e.RequestID)
}

// pendingApproval is the completion slot for one in-flight request: a
// single-use buffered channel the resolver writes to and the waiter reads
// from, instead of the polling loop the reference implementation used.
type pendingApproval struct {
	request ApprovalRequest
	done    chan ApprovalDecision
}

// ApprovalGate manages the lifecycle of human-in-the-loop approval requests.
// Unlike a polling wait loop, each request gets its own single-slot
// completion channel so Resolve and Wait rendezvous directly; Wait still
// accepts a context/timeout so a caller is never stuck if nobody ever
// responds.
type ApprovalGate struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
	store   Store
}

// NewApprovalGate constructs an empty gate. store may be nil, in which case
// pending requests do not survive a process restart.
func NewApprovalGate(store Store) *ApprovalGate {
	return &ApprovalGate{
		pending: make(map[string]*pendingApproval),
		store:   store,
	}
}

// Request registers a new approval request and returns its ID immediately;
// the caller should then block on Wait (or return control to its own
// caller and resume later via WaitByID) until the request resolves.
func (g *ApprovalGate) Request(sessionID, toolName, reason string, riskLevel int, args map[string]any) ApprovalRequest {
	req := ApprovalRequest{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		ToolName:    toolName,
		Reason:      reason,
		RiskLevel:   riskLevel,
		Args:        args,
		RequestedAt: time.Now().UTC(),
	}

	g.mu.Lock()
	g.pending[req.ID] = &pendingApproval{
		request: req,
		done:    make(chan ApprovalDecision, 1),
	}
	g.mu.Unlock()

	return req
}

// Wait blocks until the request identified by id resolves, the context is
// canceled, or timeout elapses — whichever comes first. An ambiguous
// outcome (timeout, context cancellation, or a gate Close) fails closed:
// it returns ApprovalDenied, never ApprovalApproved.
func (g *ApprovalGate) Wait(ctx context.Context, id string, timeout time.Duration) (ApprovalDecision, error) {
	g.mu.Lock()
	p, ok := g.pending[id]
	g.mu.Unlock()
	if !ok {
		return ApprovalDenied, fmt.Errorf("no pending approval request %s", id)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case decision, ok := <-p.done:
		if !ok {
			return ApprovalDenied, nil
		}
		return decision, nil
	case <-timeoutCh:
		g.expire(id)
		return ApprovalDenied, fmt.Errorf("approval request %s timed out", id)
	case <-ctx.Done():
		g.expire(id)
		return ApprovalDenied, ctx.Err()
	}
}

// Resolve records a human decision for a pending request. It is idempotent:
// resolving an already-resolved or unknown request is a no-op that returns
// false rather than an error, since the approver's own retry or a duplicate
// webhook delivery should never panic the caller.
func (g *ApprovalGate) Resolve(id string, decision ApprovalDecision) bool {
	g.mu.Lock()
	p, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case p.done <- decision:
	default:
	}
	close(p.done)
	return true
}

// expire removes a request from the pending map without signaling a
// decision, used when Wait gives up on its own (timeout/cancellation).
func (g *ApprovalGate) expire(id string) {
	g.mu.Lock()
	p, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()
	if ok {
		close(p.done)
	}
}

// Pending returns a snapshot of all currently outstanding requests, for
// presentation to an approver (e.g. over the websocket transport).
func (g *ApprovalGate) Pending() []ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ApprovalRequest, 0, len(g.pending))
	for _, p := range g.pending {
		out = append(out, p.request)
	}
	return out
}

// Close fails closed on every outstanding request: each Wait call in
// progress returns ApprovalDenied rather than blocking forever.
func (g *ApprovalGate) Close() {
	g.mu.Lock()
	pending := g.pending
	g.pending = make(map[string]*pendingApproval)
	g.mu.Unlock()

	for _, p := range pending {
		close(p.done)
	}
}

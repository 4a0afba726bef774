package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/agarc/internal/autonomy"
	"github.com/haasonsaas/agarc/pkg/models"
)

type riskyTool struct {
	name        string
	risk        int
	destructive bool
}

func (t *riskyTool) Name() string            { return t.name }
func (t *riskyTool) Description() string     { return "test tool" }
func (t *riskyTool) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (t *riskyTool) RiskLevel() int          { return t.risk }
func (t *riskyTool) Destructive() bool       { return t.destructive }
func (t *riskyTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: "ok"}, nil
}

func TestGovernanceHooks_ApprovesLowRisk(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&riskyTool{name: "safe_tool", risk: 1})

	hooks := NewGovernanceHooks(autonomy.Assisted, autonomy.NewGuardrailEngine(), nil, nil, registry.Get)

	_, _, _, blocked, _, _ := hooks.Evaluate(context.Background(), &models.Session{ID: "s1"}, models.ToolCall{ID: "c1", Name: "safe_tool"})
	if blocked {
		t.Error("expected low-risk tool to not be blocked")
	}
}

func TestGovernanceHooks_DeniesOverBudget(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&riskyTool{name: "safe_tool", risk: 1})
	budget := autonomy.NewBudgetTracker("test", 100.0, 0, nil, nil) // max 0 tool calls per loop

	hooks := NewGovernanceHooks(autonomy.FullAuto, autonomy.NewGuardrailEngine(), budget, nil, registry.Get)

	res, stage, _, blocked, haltIteration, step := hooks.Evaluate(context.Background(), &models.Session{ID: "s1"}, models.ToolCall{ID: "c1", Name: "safe_tool"})
	if !blocked {
		t.Fatal("expected tool call over budget to be blocked")
	}
	if !haltIteration {
		t.Error("expected budget rejection to halt iteration, unlike a guard-step denial")
	}
	if step != StepAdmit {
		t.Errorf("step = %v, want admit", step)
	}
	if stage != models.ToolEventDenied {
		t.Errorf("stage = %v, want denied", stage)
	}
	if !res.IsError {
		t.Error("expected IsError result")
	}
}

func TestGovernanceHooks_EscalatesAndWaitsForApproval(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&riskyTool{name: "risky_tool", risk: 9})
	gate := autonomy.NewApprovalGate(nil)

	hooks := NewGovernanceHooks(autonomy.Manual, autonomy.NewGuardrailEngine(), nil, gate, registry.Get)
	hooks.ApprovalTimeout = time.Second

	go func() {
		time.Sleep(10 * time.Millisecond)
		pending := gate.Pending()
		for _, p := range pending {
			gate.Resolve(p.ID, autonomy.ApprovalApproved)
		}
	}()

	_, _, _, blocked, _, _ := hooks.Evaluate(context.Background(), &models.Session{ID: "s1"}, models.ToolCall{ID: "c1", Name: "risky_tool"})
	if blocked {
		t.Error("expected escalated call to proceed once approved")
	}
}

func TestGovernanceHooks_EscalatesAndDeniesOnTimeout(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&riskyTool{name: "risky_tool", risk: 9})
	gate := autonomy.NewApprovalGate(nil)

	hooks := NewGovernanceHooks(autonomy.Manual, autonomy.NewGuardrailEngine(), nil, gate, registry.Get)
	hooks.ApprovalTimeout = 20 * time.Millisecond

	res, stage, _, blocked, _, _ := hooks.Evaluate(context.Background(), &models.Session{ID: "s1"}, models.ToolCall{ID: "c1", Name: "risky_tool"})
	if !blocked {
		t.Fatal("expected escalated call with no response to be blocked (fail closed)")
	}
	if stage != models.ToolEventDenied {
		t.Errorf("stage = %v, want denied", stage)
	}
	if !res.IsError {
		t.Error("expected IsError result")
	}
}

func TestGovernanceHooks_DenylistBlocks(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&riskyTool{name: "forbidden_tool", risk: 0})
	guardrail := autonomy.NewGuardrailEngine()
	guardrail.DenyTool("forbidden_tool", "explicitly banned")

	hooks := NewGovernanceHooks(autonomy.FullAuto, guardrail, nil, nil, registry.Get)

	_, _, _, blocked, haltIteration, step := hooks.Evaluate(context.Background(), &models.Session{ID: "s1"}, models.ToolCall{ID: "c1", Name: "forbidden_tool"})
	if !blocked {
		t.Error("expected denylisted tool to be blocked regardless of autonomy level")
	}
	if haltIteration {
		t.Error("expected a guard-step denial to only skip this call, not halt remaining tool calls")
	}
	if step != StepGuard {
		t.Errorf("step = %v, want guard", step)
	}
}

func TestGovernanceHooks_NilGuardrailNoOp(t *testing.T) {
	hooks := NewGovernanceHooks(autonomy.FullAuto, nil, nil, nil, nil)

	_, _, _, blocked, _, _ := hooks.Evaluate(context.Background(), &models.Session{ID: "s1"}, models.ToolCall{ID: "c1", Name: "anything"})
	if blocked {
		t.Error("expected nil guardrail to be a no-op")
	}
}

package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/agarc/internal/autonomy"
	"github.com/haasonsaas/agarc/pkg/models"
)

// RiskDescriptor is implemented by tools that carry autonomy metadata beyond
// the base Tool interface: a risk level (0-10) the guardrail engine weighs
// against the current autonomy level, and whether the action is inherently
// destructive. Tools that don't implement this are treated as RiskLevel 0,
// non-destructive — the guardrail's own name-based and argument-based checks
// still apply regardless.
type RiskDescriptor interface {
	RiskLevel() int
	Destructive() bool
}

func describeRisk(tool Tool) (int, bool) {
	rd, ok := tool.(RiskDescriptor)
	if !ok {
		return 0, false
	}
	return rd.RiskLevel(), rd.Destructive()
}

// GovernanceHooks wires the autonomy package's guardrail engine, budget
// tracker, and approval gate into the agentic loop's tool execution phase.
// A loop with Governance set runs every pending tool call through it before
// falling through to the loop's own allowlist/ApprovalChecker path.
type GovernanceHooks struct {
	Level     autonomy.Level
	Guardrail *autonomy.GuardrailEngine
	Budget    *autonomy.BudgetTracker
	Approval  *autonomy.ApprovalGate

	// ApprovalTimeout bounds how long Evaluate blocks waiting for a human
	// decision on an escalated call. Zero means wait on ctx alone.
	ApprovalTimeout time.Duration

	lookupTool func(name string) (Tool, bool)
}

// NewGovernanceHooks constructs hooks at the given autonomy level. lookupTool
// resolves a tool by name for risk-metadata inspection; pass the registry's
// Get method.
func NewGovernanceHooks(level autonomy.Level, guardrail *autonomy.GuardrailEngine, budget *autonomy.BudgetTracker, approval *autonomy.ApprovalGate, lookupTool func(name string) (Tool, bool)) *GovernanceHooks {
	return &GovernanceHooks{
		Level:           level,
		Guardrail:       guardrail,
		Budget:          budget,
		Approval:        approval,
		ApprovalTimeout: 5 * time.Minute,
		lookupTool:      lookupTool,
	}
}

// Evaluate runs one tool call through the Guard step (guardrail pipeline,
// escalating to the approval gate as needed) and, once guarded, the Admit
// step (budget admission). blocked is true when the call must not proceed
// to execution; res/stage/reason describe why. haltIteration is true only
// when the block came from the Admit step — a budget rejection ends tool
// processing for the rest of this iteration, whereas a Guard-step denial
// or escalation-timeout only skips this one call. step identifies which
// of the two steps produced the outcome, for callers that log or trace
// per-step decisions (StepAct once both steps clear).
func (g *GovernanceHooks) Evaluate(ctx context.Context, session *models.Session, tc models.ToolCall) (res models.ToolResult, stage models.ToolEventStage, reason string, blocked bool, haltIteration bool, step LoopStep) {
	var riskLevel int
	var destructive bool
	if g.lookupTool != nil {
		if tool, ok := g.lookupTool(tc.Name); ok {
			riskLevel, destructive = describeRisk(tool)
		}
	}

	var args map[string]any
	_ = json.Unmarshal(tc.Input, &args)

	if g.Guardrail != nil {
		decision := g.Guardrail.Evaluate(g.Level, autonomy.ToolRequest{
			ToolName:    tc.Name,
			RiskLevel:   riskLevel,
			Destructive: destructive,
			Args:        args,
		})

		switch decision.Verdict {
		case autonomy.VerdictApprove:
			// fall through to Admit

		case autonomy.VerdictDeny:
			return models.ToolResult{ToolCallID: tc.ID, Content: "tool denied: " + decision.Reason, IsError: true},
				models.ToolEventDenied, decision.Reason, true, false, StepGuard

		case autonomy.VerdictEscalate:
			if g.Approval == nil {
				return models.ToolResult{ToolCallID: tc.ID, Content: "tool escalated but no approval gate configured: " + decision.Reason, IsError: true},
					models.ToolEventDenied, decision.Reason, true, false, StepGuard
			}

			sessionID := ""
			if session != nil {
				sessionID = session.ID
			}

			req := g.Approval.Request(sessionID, tc.Name, decision.Reason, riskLevel, args)
			approvalDecision, err := g.Approval.Wait(ctx, req.ID, g.ApprovalTimeout)
			if err != nil || approvalDecision != autonomy.ApprovalApproved {
				content := "tool denied by approval gate: " + decision.Reason
				if err != nil {
					content = "tool denied by approval gate (" + err.Error() + "): " + decision.Reason
				}
				return models.ToolResult{ToolCallID: tc.ID, Content: content, IsError: true},
					models.ToolEventDenied, decision.Reason, true, false, StepGuard
			}
			// approved, fall through to Admit

		default:
			return models.ToolResult{ToolCallID: tc.ID, Content: "unknown guardrail verdict", IsError: true},
				models.ToolEventDenied, "unknown verdict", true, false, StepGuard
		}
	}

	if g.Budget != nil {
		if err := g.Budget.RecordToolCall(); err != nil {
			return models.ToolResult{ToolCallID: tc.ID, Content: "tool call denied: " + err.Error(), IsError: true},
				models.ToolEventDenied, err.Error(), true, true, StepAdmit
		}
	}

	return models.ToolResult{}, "", "", false, false, StepAct
}

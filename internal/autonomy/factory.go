package autonomy

import (
	"log/slog"

	"github.com/haasonsaas/agarc/internal/config"
)

// Stack bundles the four pieces of the risk-governance layer as constructed
// from configuration, ready to be wired into agent.GovernanceHooks.
type Stack struct {
	Level     Level
	Guardrail *GuardrailEngine
	Budget    *BudgetTracker
	Approval  *ApprovalGate
	Store     *SQLiteStore
}

// NewFromConfig builds a governance Stack from an AutonomyConfig, opening
// the configured sqlite store (or an in-memory one) for budget/approval
// persistence. scope identifies the budget's accounting bucket, typically
// an agent ID.
func NewFromConfig(cfg config.AutonomyConfig, scope string, log *slog.Logger) (*Stack, error) {
	store, err := NewSQLiteStore(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	guardrail := NewGuardrailEngine()
	for name, reason := range cfg.Guardrail.Denylist {
		guardrail.DenyTool(name, reason)
	}
	if len(cfg.Guardrail.Allowlist) > 0 {
		guardrail.AllowOnly(cfg.Guardrail.Allowlist...)
	}
	if cfg.Guardrail.MaxDeletes > 0 {
		guardrail.SetMaxDeletes(cfg.Guardrail.MaxDeletes)
	}

	budget := NewBudgetTracker(scope, cfg.Budget.DailyLimitUSD, cfg.Budget.MaxToolCallsPerLoop, store, log)

	return &Stack{
		Level:     LevelFromString(cfg.Level),
		Guardrail: guardrail,
		Budget:    budget,
		Approval:  NewApprovalGate(store),
		Store:     store,
	}, nil
}

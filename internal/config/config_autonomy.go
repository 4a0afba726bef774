package config

import "time"

// AutonomyConfig configures the risk-governance layer that sits in front of
// tool execution: the default autonomy level, guardrail rules, budget
// limits, and how long the loop waits on a human decision once a call has
// been escalated.
type AutonomyConfig struct {
	// Level is the default autonomy level for new sessions: "manual",
	// "assisted", "supervised", "autonomous", or "full_auto". Default:
	// "supervised".
	Level string `yaml:"level"`

	// Guardrail configures the denylist/allowlist/network-block rules
	// evaluated before a tool call is admitted.
	Guardrail GuardrailConfig `yaml:"guardrail"`

	// Budget configures per-scope daily spend and per-loop tool-call caps.
	Budget BudgetConfig `yaml:"budget"`

	// ApprovalTimeout bounds how long an escalated tool call waits for a
	// human decision before failing closed. Default: 5m.
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`

	// StorePath is the sqlite file budget state and approval history are
	// persisted to. Empty means in-memory only (":memory:").
	StorePath string `yaml:"store_path"`
}

// GuardrailConfig seeds a GuardrailEngine with denylisted tools, an
// allowlist, and the destructive-action mass-delete threshold.
type GuardrailConfig struct {
	// Denylist maps tool name to a human-readable reason it's always denied.
	Denylist map[string]string `yaml:"denylist"`

	// Allowlist, if non-empty, restricts tool calls to exactly these names.
	Allowlist []string `yaml:"allowlist"`

	// MaxDeletes caps how many paths a single destructive call may carry
	// before the mass-delete rule denies it outright. Zero uses the
	// guardrail engine's default of 5.
	MaxDeletes int `yaml:"max_deletes"`
}

// BudgetConfig configures a BudgetTracker.
type BudgetConfig struct {
	// DailyLimitUSD is the maximum spend per UTC day before RecordSpend
	// starts returning BudgetExceededError. Zero disables the limit.
	DailyLimitUSD float64 `yaml:"daily_limit_usd"`

	// MaxToolCallsPerLoop caps tool calls within a single agentic loop
	// iteration. Zero disables the limit.
	MaxToolCallsPerLoop int `yaml:"max_tool_calls_per_loop"`
}

func applyAutonomyDefaults(cfg *AutonomyConfig) {
	if cfg.Level == "" {
		cfg.Level = "supervised"
	}
	if cfg.ApprovalTimeout == 0 {
		cfg.ApprovalTimeout = 5 * time.Minute
	}
	if cfg.StorePath == "" {
		cfg.StorePath = ":memory:"
	}
}

func validAutonomyLevel(level string) bool {
	switch level {
	case "manual", "assisted", "supervised", "autonomous", "full_auto":
		return true
	default:
		return false
	}
}

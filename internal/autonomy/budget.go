package autonomy

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BudgetExceededError reports that an admit pushed a counter past its limit.
// The increment is still applied before this error is returned — see
// BudgetTracker.RecordSpend for the rationale.
type BudgetExceededError struct {
	Resource string
	Used     float64
	Limit    float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s: used %v, limit %v", e.Resource, e.Used, e.Limit)
}

// BudgetState is a point-in-time snapshot of a BudgetTracker's counters.
type BudgetState struct {
	CurrentDay          string
	DailySpendUSD       float64
	DailyLimitUSD       float64
	LoopToolCalls       int
	MaxToolCallsPerLoop int
	TotalSpendUSD       float64
	TotalToolCalls      int64
}

// Store persists BudgetState across process restarts so a crash mid-day
// doesn't silently reset the daily spend counter to zero.
type Store interface {
	SaveBudget(scope string, state BudgetState) error
	LoadBudget(scope string) (BudgetState, bool, error)
}

var (
	budgetSpendGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agarc",
		Subsystem: "budget",
		Name:      "daily_spend_usd",
		Help:      "Current daily spend in USD per budget scope.",
	}, []string{"scope"})

	budgetToolCallsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agarc",
		Subsystem: "budget",
		Name:      "tool_calls_total",
		Help:      "Total tool calls admitted per budget scope.",
	}, []string{"scope"})

	budgetExceededCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agarc",
		Subsystem: "budget",
		Name:      "exceeded_total",
		Help:      "Count of admits that crossed a budget limit, by resource.",
	}, []string{"scope", "resource"})
)

// MustRegisterMetrics registers the budget tracker's Prometheus collectors
// against the given registerer. Safe to call once per process.
func MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(budgetSpendGauge, budgetToolCallsCounter, budgetExceededCounter)
}

// BudgetTracker owns a single guarded BudgetState per scope (typically one
// scope per agent/tenant). All operations are short critical sections under
// a single mutex; Snapshot never blocks a mutator longer than a struct copy.
type BudgetTracker struct {
	mu    sync.Mutex
	scope string
	state BudgetState
	store Store
	log   *slog.Logger
}

// NewBudgetTracker creates a tracker for the given scope. If store is
// non-nil and already has a persisted state for this scope, it is loaded as
// the starting point (so a restart resumes the day's spend rather than
// zeroing it).
func NewBudgetTracker(scope string, dailyLimitUSD float64, maxToolCallsPerLoop int, store Store, log *slog.Logger) *BudgetTracker {
	if log == nil {
		log = slog.Default()
	}
	state := BudgetState{
		CurrentDay:          today(),
		DailyLimitUSD:       dailyLimitUSD,
		MaxToolCallsPerLoop: maxToolCallsPerLoop,
	}
	if store != nil {
		if loaded, ok, err := store.LoadBudget(scope); err == nil && ok {
			state = loaded
			state.DailyLimitUSD = dailyLimitUSD
			state.MaxToolCallsPerLoop = maxToolCallsPerLoop
		}
	}
	return &BudgetTracker{scope: scope, state: state, store: store, log: log}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// maybeRollover resets the daily counter when the UTC date has advanced.
// Must be called with mu held.
func (b *BudgetTracker) maybeRollover() {
	day := today()
	if b.state.CurrentDay != day {
		b.state.CurrentDay = day
		b.state.DailySpendUSD = 0
	}
}

func (b *BudgetTracker) persist() {
	if b.store == nil {
		return
	}
	if err := b.store.SaveBudget(b.scope, b.state); err != nil {
		b.log.Warn("failed to persist budget state", "scope", b.scope, "error", err)
	}
}

// RecordSpend adds usd to the daily and total spend counters. The increment
// is always applied — this is monotonic, record-then-error accounting, not
// check-then-admit: a caller that stops on error may still be over budget by
// exactly this increment. That is intentional; see DESIGN.md.
func (b *BudgetTracker) RecordSpend(usd float64) error {
	b.mu.Lock()
	b.maybeRollover()
	b.state.DailySpendUSD += usd
	b.state.TotalSpendUSD += usd
	exceeded := b.state.DailySpendUSD > b.state.DailyLimitUSD
	snapshot := b.state
	b.persist()
	b.mu.Unlock()

	budgetSpendGauge.WithLabelValues(b.scope).Set(snapshot.DailySpendUSD)

	if exceeded {
		budgetExceededCounter.WithLabelValues(b.scope, "daily_spend_usd").Inc()
		b.log.Warn("daily budget exceeded", "scope", b.scope, "spent", snapshot.DailySpendUSD, "limit", snapshot.DailyLimitUSD)
		return &BudgetExceededError{Resource: "daily_spend_usd", Used: snapshot.DailySpendUSD, Limit: snapshot.DailyLimitUSD}
	}
	return nil
}

// RecordToolCall increments the per-loop and total tool-call counters.
func (b *BudgetTracker) RecordToolCall() error {
	b.mu.Lock()
	b.state.LoopToolCalls++
	b.state.TotalToolCalls++
	exceeded := b.state.LoopToolCalls > b.state.MaxToolCallsPerLoop
	snapshot := b.state
	b.persist()
	b.mu.Unlock()

	budgetToolCallsCounter.WithLabelValues(b.scope).Inc()

	if exceeded {
		budgetExceededCounter.WithLabelValues(b.scope, "tool_calls_per_loop").Inc()
		return &BudgetExceededError{
			Resource: "tool_calls_per_loop",
			Used:     float64(snapshot.LoopToolCalls),
			Limit:    float64(snapshot.MaxToolCallsPerLoop),
		}
	}
	return nil
}

// ResetLoop zeroes the per-loop tool-call counter. Called exactly once at
// the start of each agent turn's iteration.
func (b *BudgetTracker) ResetLoop() {
	b.mu.Lock()
	b.state.LoopToolCalls = 0
	b.persist()
	b.mu.Unlock()
}

// Check reports whether the tracker is currently within its daily limit,
// without recording a new spend.
func (b *BudgetTracker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRollover()
	if b.state.DailySpendUSD >= b.state.DailyLimitUSD {
		return &BudgetExceededError{Resource: "daily_spend_usd", Used: b.state.DailySpendUSD, Limit: b.state.DailyLimitUSD}
	}
	return nil
}

// Snapshot returns a copy of the current budget state.
func (b *BudgetTracker) Snapshot() BudgetState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRollover()
	return b.state
}

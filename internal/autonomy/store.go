// Package autonomy's store.go persists BudgetState and resolved
// ApprovalRequest history to SQLite, following the same sql.Open /
// CREATE TABLE IF NOT EXISTS / prepared-statement conventions used
// elsewhere in this module's memory backends.
package autonomy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore is a Store implementation backed by a local SQLite file. It
// also records resolved approval requests for audit/replay purposes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures its schema exists. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open autonomy store: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS budget_state (
			scope                  TEXT PRIMARY KEY,
			current_day            TEXT NOT NULL,
			daily_spend_usd        REAL NOT NULL,
			daily_limit_usd        REAL NOT NULL,
			loop_tool_calls        INTEGER NOT NULL,
			max_tool_calls_per_loop INTEGER NOT NULL,
			total_spend_usd        REAL NOT NULL,
			total_tool_calls       INTEGER NOT NULL,
			updated_at             DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create budget_state table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS approval_history (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			tool_name   TEXT NOT NULL,
			reason      TEXT,
			risk_level  INTEGER NOT NULL,
			args_json   TEXT,
			decision    TEXT NOT NULL,
			requested_at DATETIME NOT NULL,
			resolved_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create approval_history table: %w", err)
	}

	_, err = s.db.Exec("CREATE INDEX IF NOT EXISTS idx_approval_history_session ON approval_history(session_id)")
	if err != nil {
		return fmt.Errorf("create approval_history index: %w", err)
	}

	return nil
}

// SaveBudget upserts the state for scope.
func (s *SQLiteStore) SaveBudget(scope string, state BudgetState) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO budget_state
			(scope, current_day, daily_spend_usd, daily_limit_usd, loop_tool_calls, max_tool_calls_per_loop, total_spend_usd, total_tool_calls, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		scope, state.CurrentDay, state.DailySpendUSD, state.DailyLimitUSD,
		state.LoopToolCalls, state.MaxToolCallsPerLoop, state.TotalSpendUSD, state.TotalToolCalls,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save budget state for scope %s: %w", scope, err)
	}
	return nil
}

// LoadBudget fetches the persisted state for scope, if any.
func (s *SQLiteStore) LoadBudget(scope string) (BudgetState, bool, error) {
	var state BudgetState
	row := s.db.QueryRow(`
		SELECT current_day, daily_spend_usd, daily_limit_usd, loop_tool_calls, max_tool_calls_per_loop, total_spend_usd, total_tool_calls
		FROM budget_state WHERE scope = ?
	`, scope)

	err := row.Scan(&state.CurrentDay, &state.DailySpendUSD, &state.DailyLimitUSD,
		&state.LoopToolCalls, &state.MaxToolCallsPerLoop, &state.TotalSpendUSD, &state.TotalToolCalls)
	if err == sql.ErrNoRows {
		return BudgetState{}, false, nil
	}
	if err != nil {
		return BudgetState{}, false, fmt.Errorf("load budget state for scope %s: %w", scope, err)
	}
	return state, true, nil
}

// RecordApprovalResolution appends a resolved request to the audit history.
func (s *SQLiteStore) RecordApprovalResolution(ctx context.Context, req ApprovalRequest, decision ApprovalDecision) error {
	argsJSON, err := json.Marshal(req.Args)
	if err != nil {
		return fmt.Errorf("marshal approval args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO approval_history
			(id, session_id, tool_name, reason, risk_level, args_json, decision, requested_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID, req.SessionID, req.ToolName, req.Reason, req.RiskLevel,
		string(argsJSON), decision.String(), req.RequestedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record approval resolution %s: %w", req.ID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

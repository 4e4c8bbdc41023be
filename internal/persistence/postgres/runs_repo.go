package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quantpulse/stratrun/internal/persistence"
)

// runsRepo implements RunsRepo for PostgreSQL
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a PostgreSQL runs repository
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunsRepo {
	return &runsRepo{
		db:      db,
		timeout: timeout,
	}
}

const runColumns = `
	run_id, status, seed, days,
	initial_balance, risk_per_trade, confidence_threshold,
	bars_processed, final_equity, total_return,
	sharpe_ratio, win_rate, max_drawdown,
	composite_score, grade, trade_count,
	started_at, finished_at, created_at`

// Insert adds a finished run. Re-inserting the same run id yields
// persistence.ErrDuplicateRun.
func (r *runsRepo) Insert(ctx context.Context, run persistence.RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO runs (
			run_id, status, seed, days,
			initial_balance, risk_per_trade, confidence_threshold,
			bars_processed, final_equity, total_return,
			sharpe_ratio, win_rate, max_drawdown,
			composite_score, grade, trade_count,
			started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.ExecContext(ctx, query,
		run.RunID, run.Status, run.Seed, run.Days,
		run.InitialBalance, run.RiskPerTrade, run.ConfidenceThreshold,
		run.BarsProcessed, run.FinalEquity, run.TotalReturn,
		run.SharpeRatio, run.WinRate, run.MaxDrawdown,
		run.CompositeScore, run.Grade, run.TradeCount,
		run.StartedAt, run.FinishedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", persistence.ErrDuplicateRun, run.RunID)
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get retrieves one run by id, nil when absent
func (r *runsRepo) Get(ctx context.Context, runID string) (*persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM runs WHERE run_id = $1`

	var run persistence.RunRecord
	err := r.db.GetContext(ctx, &run, query, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRecent retrieves the most recently finished runs
func (r *runsRepo) ListRecent(ctx context.Context, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY finished_at DESC LIMIT $1`

	var runs []persistence.RunRecord
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", err)
	}
	return runs, nil
}

// ListByStatus retrieves runs with the given terminal status
func (r *runsRepo) ListByStatus(ctx context.Context, status string, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM runs WHERE status = $1 ORDER BY finished_at DESC LIMIT $2`

	var runs []persistence.RunRecord
	if err := r.db.SelectContext(ctx, &runs, query, status, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs by status: %w", err)
	}
	return runs, nil
}

// ListRange retrieves runs finished inside the window, newest first
func (r *runsRepo) ListRange(ctx context.Context, tr persistence.TimeRange, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM runs
		WHERE finished_at >= $1 AND finished_at <= $2
		ORDER BY finished_at DESC LIMIT $3`

	var runs []persistence.RunRecord
	if err := r.db.SelectContext(ctx, &runs, query, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs in range: %w", err)
	}
	return runs, nil
}

// BestByScore retrieves the top runs by composite score
func (r *runsRepo) BestByScore(ctx context.Context, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY composite_score DESC, finished_at DESC LIMIT $1`

	var runs []persistence.RunRecord
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list best runs: %w", err)
	}
	return runs, nil
}

// CountByStatus returns run counts grouped by terminal status
func (r *runsRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT status, COUNT(*) FROM runs GROUP BY status ORDER BY status`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

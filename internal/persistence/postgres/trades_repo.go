package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quantpulse/stratrun/internal/persistence"
)

// tradesRepo implements TradesRepo for PostgreSQL
type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates a PostgreSQL trades repository
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) persistence.TradesRepo {
	return &tradesRepo{
		db:      db,
		timeout: timeout,
	}
}

// InsertBatch writes a run's complete trade log in one transaction
func (r *tradesRepo) InsertBatch(ctx context.Context, trades []persistence.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(trades)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (
			run_id, position_id,
			entry_index, entry_time, entry_price,
			exit_index, exit_time, exit_price,
			units, notional, pnl, return_pct,
			confidence, exit_reason, hold_bars)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, tr := range trades {
		_, err = stmt.ExecContext(ctx,
			tr.RunID, tr.PositionID,
			tr.EntryIndex, tr.EntryTime, tr.EntryPrice,
			tr.ExitIndex, tr.ExitTime, tr.ExitPrice,
			tr.Units, tr.Notional, tr.PnL, tr.ReturnPct,
			tr.Confidence, tr.ExitReason, tr.HoldBars)
		if err != nil {
			return fmt.Errorf("failed to insert trade %s in batch: %w", tr.PositionID, err)
		}
	}

	return tx.Commit()
}

// ListByRun retrieves a run's trades in entry order
func (r *tradesRepo) ListByRun(ctx context.Context, runID string) ([]persistence.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, run_id, position_id,
		       entry_index, entry_time, entry_price,
		       exit_index, exit_time, exit_price,
		       units, notional, pnl, return_pct,
		       confidence, exit_reason, hold_bars
		FROM run_trades
		WHERE run_id = $1
		ORDER BY entry_index ASC, id ASC`

	var trades []persistence.TradeRecord
	if err := r.db.SelectContext(ctx, &trades, query, runID); err != nil {
		return nil, fmt.Errorf("failed to query trades by run: %w", err)
	}
	return trades, nil
}

// CountByExitReason returns trade counts per exit reason for a run
func (r *tradesRepo) CountByExitReason(ctx context.Context, runID string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT exit_reason, COUNT(*)
		FROM run_trades
		WHERE run_id = $1
		GROUP BY exit_reason
		ORDER BY exit_reason`

	rows, err := r.db.QueryxContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count trades by exit reason: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var reason string
		var count int64
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("failed to scan exit reason count: %w", err)
		}
		counts[reason] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

// Package postgres is the PostgreSQL backend of the persistence layer
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/stratrun/internal/persistence"
)

const defaultTimeout = 5 * time.Second

// schema is applied on connect; idempotent by construction
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id               TEXT PRIMARY KEY,
	status               TEXT NOT NULL,
	seed                 BIGINT NOT NULL,
	days                 INT NOT NULL,
	initial_balance      DOUBLE PRECISION NOT NULL,
	risk_per_trade       DOUBLE PRECISION NOT NULL,
	confidence_threshold DOUBLE PRECISION NOT NULL,
	bars_processed       INT NOT NULL,
	final_equity         DOUBLE PRECISION NOT NULL,
	total_return         DOUBLE PRECISION NOT NULL,
	sharpe_ratio         DOUBLE PRECISION NOT NULL,
	win_rate             DOUBLE PRECISION NOT NULL,
	max_drawdown         DOUBLE PRECISION NOT NULL,
	composite_score      DOUBLE PRECISION NOT NULL,
	grade                TEXT NOT NULL,
	trade_count          INT NOT NULL,
	started_at           TIMESTAMPTZ NOT NULL,
	finished_at          TIMESTAMPTZ NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_trades (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	position_id TEXT NOT NULL,
	entry_index INT NOT NULL,
	entry_time  TIMESTAMPTZ NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	exit_index  INT NOT NULL,
	exit_time   TIMESTAMPTZ NOT NULL,
	exit_price  DOUBLE PRECISION NOT NULL,
	units       DOUBLE PRECISION NOT NULL,
	notional    DOUBLE PRECISION NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	return_pct  DOUBLE PRECISION NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	exit_reason TEXT NOT NULL,
	hold_bars   INT NOT NULL,
	UNIQUE (run_id, position_id)
);

CREATE INDEX IF NOT EXISTS idx_run_trades_run ON run_trades (run_id);
`

// Store owns the database handle and hands out repositories
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// New connects to PostgreSQL and applies the schema
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, timeout: defaultTimeout}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Msg("Postgres store ready")
	return s, nil
}

// NewWithDB wraps an existing handle; the schema is assumed present
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, timeout: defaultTimeout}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Repository returns the repo aggregate backed by this store
func (s *Store) Repository() *persistence.Repository {
	return &persistence.Repository{
		Runs:   NewRunsRepo(s.db, s.timeout),
		Trades: NewTradesRepo(s.db, s.timeout),
	}
}

// Ping tests connectivity
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Health reports connectivity and round-trip time
func (s *Store) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()
	check := persistence.HealthCheck{LastCheck: start}

	if err := s.Ping(ctx); err != nil {
		check.Errors = append(check.Errors, err.Error())
	} else {
		check.Healthy = true
	}
	check.ResponseTimeMS = time.Since(start).Milliseconds()
	return check
}

// SaveRun persists a run summary and its trade log together
func (s *Store) SaveRun(ctx context.Context, run persistence.RunRecord, trades []persistence.TradeRecord) error {
	repo := s.Repository()
	if err := repo.Runs.Insert(ctx, run); err != nil {
		return err
	}
	if err := repo.Trades.InsertBatch(ctx, trades); err != nil {
		return fmt.Errorf("run %s saved but trade log failed: %w", run.RunID, err)
	}
	return nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

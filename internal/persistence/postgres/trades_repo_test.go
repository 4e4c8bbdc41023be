package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/stratrun/internal/persistence"
)

var tradeCols = []string{
	"id", "run_id", "position_id",
	"entry_index", "entry_time", "entry_price",
	"exit_index", "exit_time", "exit_price",
	"units", "notional", "pnl", "return_pct",
	"confidence", "exit_reason", "hold_bars",
}

func tradeRow(id int64, tr persistence.TradeRecord) []driver.Value {
	return []driver.Value{
		id, tr.RunID, tr.PositionID,
		tr.EntryIndex, tr.EntryTime, tr.EntryPrice,
		tr.ExitIndex, tr.ExitTime, tr.ExitPrice,
		tr.Units, tr.Notional, tr.PnL, tr.ReturnPct,
		tr.Confidence, tr.ExitReason, tr.HoldBars,
	}
}

func TestTradesRepoInsertBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradesRepo(db, time.Second)

	trades := sampleTrades("a1b2c3d4", 3)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO run_trades")
	for _, tr := range trades {
		expectTradeExec(prep, tr)
	}
	mock.ExpectCommit()

	err := repo.InsertBatch(context.Background(), trades)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepoInsertBatchEmptyIsNoOp(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradesRepo(db, time.Second)

	err := repo.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepoInsertBatchRollsBackOnFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradesRepo(db, time.Second)

	trades := sampleTrades("a1b2c3d4", 2)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO run_trades")
	expectTradeExec(prep, trades[0])
	prep.ExpectExec().WillReturnError(errors.New("value out of range"))
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), trades)
	require.Error(t, err)
	assert.Contains(t, err.Error(), trades[1].PositionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepoListByRun(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradesRepo(db, time.Second)

	trades := sampleTrades("a1b2c3d4", 2)
	mock.ExpectQuery("FROM run_trades WHERE run_id").
		WithArgs("a1b2c3d4").
		WillReturnRows(sqlmock.NewRows(tradeCols).
			AddRow(tradeRow(1, trades[0])...).
			AddRow(tradeRow(2, trades[1])...))

	got, err := repo.ListByRun(context.Background(), "a1b2c3d4")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "pos-0001", got[0].PositionID)
	assert.Equal(t, "take_profit", got[0].ExitReason)
	assert.InDelta(t, 0.06, got[1].ReturnPct, 1e-12)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesRepoCountByExitReason(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradesRepo(db, time.Second)

	mock.ExpectQuery("GROUP BY exit_reason").
		WithArgs("a1b2c3d4").
		WillReturnRows(sqlmock.NewRows([]string{"exit_reason", "count"}).
			AddRow("stop_loss", int64(3)).
			AddRow("take_profit", int64(5)))

	counts, err := repo.CountByExitReason(context.Background(), "a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"stop_loss": 3, "take_profit": 5}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

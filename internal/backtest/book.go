package backtest

import (
	"fmt"
	"time"
)

// Book holds the open position set and enforces the entry cap and exit
// rules. Exits are evaluated against the bar close only; intrabar highs and
// lows never trigger a stop or target.
type Book struct {
	maxPositions int
	stopLossPct  float64
	takeProfPct  float64

	open []*Position
	seq  int
}

func NewBook(maxPositions int, stopLossPct, takeProfitPct float64) *Book {
	return &Book{
		maxPositions: maxPositions,
		stopLossPct:  stopLossPct,
		takeProfPct:  takeProfitPct,
	}
}

func (b *Book) OpenCount() int { return len(b.open) }

// MarkValue is the close-price value of every open position
func (b *Book) MarkValue(close float64) float64 {
	var v float64
	for _, p := range b.open {
		v += p.Units * close
	}
	return v
}

// Open admits a new long sized at notional, or reports false when the
// position cap is already reached. Stop and target prices are fixed at
// entry and never trail.
func (b *Book) Open(index int, ts time.Time, price, notional, confidence float64) (*Position, bool) {
	if len(b.open) >= b.maxPositions {
		return nil, false
	}
	b.seq++
	p := &Position{
		ID:              fmt.Sprintf("pos-%04d", b.seq),
		EntryIndex:      index,
		EntryTime:       ts,
		EntryPrice:      price,
		Units:           notional / price,
		Notional:        notional,
		Confidence:      confidence,
		StopPrice:       price * (1 - b.stopLossPct),
		TakeProfitPrice: price * (1 + b.takeProfPct),
	}
	b.open = append(b.open, p)
	return p, true
}

// CheckExits books an exit for every position whose stop or target is
// breached by the bar close. The fill is at the trigger price, not the
// close, and the stop wins when one bar breaches both levels. Runs before
// any new entry each step.
func (b *Book) CheckExits(index int, ts time.Time, close float64) []Trade {
	var trades []Trade
	remaining := b.open[:0]
	for _, p := range b.open {
		var (
			reason ExitReason
			fill   float64
		)
		switch {
		case close <= p.StopPrice:
			reason, fill = ExitStopLoss, p.StopPrice
		case close >= p.TakeProfitPrice:
			reason, fill = ExitTakeProfit, p.TakeProfitPrice
		default:
			remaining = append(remaining, p)
			continue
		}
		t, err := p.close(index, ts, fill, reason)
		if err != nil {
			// unreachable unless the book itself is corrupted
			panic(err)
		}
		trades = append(trades, t)
	}
	b.open = remaining
	return trades
}

// CloseAll exits every open position at price with the given reason, in
// entry order. Used for sell decisions and the forced close at horizon.
func (b *Book) CloseAll(index int, ts time.Time, price float64, reason ExitReason) []Trade {
	trades := make([]Trade, 0, len(b.open))
	for _, p := range b.open {
		t, err := p.close(index, ts, price, reason)
		if err != nil {
			panic(err)
		}
		trades = append(trades, t)
	}
	b.open = b.open[:0]
	return trades
}

package backtest

import "time"

// Accountant tracks cash, realizes PnL as positions close, and owns the
// trade log and equity curve. Equity is always cash plus the marked value
// of the open book.
type Accountant struct {
	initial float64
	cash    float64
	peak    float64
	trades  []Trade
	curve   []EquityPoint
}

func NewAccountant(initialBalance float64) *Accountant {
	return &Accountant{
		initial: initialBalance,
		cash:    initialBalance,
		peak:    initialBalance,
	}
}

func (a *Accountant) Initial() float64 { return a.initial }
func (a *Accountant) Cash() float64    { return a.cash }

func (a *Accountant) Trades() []Trade      { return a.trades }
func (a *Accountant) Curve() []EquityPoint { return a.curve }

// OnOpen reserves the position's notional out of cash
func (a *Accountant) OnOpen(p *Position) {
	a.cash -= p.Notional
}

// OnClose returns the notional plus realized PnL to cash and appends the
// trade to the log
func (a *Accountant) OnClose(t Trade) {
	a.cash += t.Notional + t.PnL
	a.trades = append(a.trades, t)
}

// EquityAt is the account value given the book's current mark
func (a *Accountant) EquityAt(markValue float64) float64 {
	return a.cash + markValue
}

// MarkToMarket appends one point to the equity curve and advances the peak.
// Drawdown is relative to the running peak, which never starts below the
// initial balance, so the divisor is always positive.
func (a *Accountant) MarkToMarket(index int, ts time.Time, markValue float64, openPositions int) EquityPoint {
	equity := a.cash + markValue
	if equity > a.peak {
		a.peak = equity
	}
	pt := EquityPoint{
		Index:         index,
		Time:          ts,
		Equity:        equity,
		Peak:          a.peak,
		Drawdown:      (a.peak - equity) / a.peak,
		OpenPositions: openPositions,
	}
	a.curve = append(a.curve, pt)
	return pt
}

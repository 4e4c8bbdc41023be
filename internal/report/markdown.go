package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/quantpulse/stratrun/internal/backtest"
	"github.com/quantpulse/stratrun/internal/perf"
)

// renderMarkdown generates the complete markdown report for a run
func renderMarkdown(doc Document, paths *ArtifactPaths) string {
	var b strings.Builder
	run, m := doc.Run, doc.Metrics

	b.WriteString("# StratRun Backtest Report\n\n")
	b.WriteString(fmt.Sprintf("**Run**: %s\n", run.RunID))
	b.WriteString(fmt.Sprintf("**Status**: %s\n", run.Status))
	b.WriteString(fmt.Sprintf("**Finished**: %s\n", run.FinishedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("**Configuration**: seed=%d days=%d balance=%.0f risk=%.2f threshold=%.2f\n\n",
		run.Config.Seed, run.Config.Days, run.Config.InitialBalance,
		run.Config.RiskPerTrade, run.Config.ConfidenceThreshold))

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(fmt.Sprintf("- **Grade**: %s (score %.1f/100)\n", m.Grade, m.CompositeScore))
	b.WriteString(fmt.Sprintf("- **Total Return**: %.2f%% (%.2f to %.2f)\n",
		m.TotalReturn*100, m.InitialBalance, m.FinalEquity))
	b.WriteString(fmt.Sprintf("- **Trades**: %d (%d wins, %d losses, %.1f%% win rate)\n",
		m.TotalTrades, m.Wins, m.Losses, m.WinRate*100))
	b.WriteString(fmt.Sprintf("- **Bars Processed**: %d\n", run.BarsProcessed))
	if m.Note != "" {
		b.WriteString(fmt.Sprintf("\n> %s\n", m.Note))
	}
	b.WriteString("\n")

	if m.TotalTrades > 0 {
		b.WriteString("## Performance\n\n")
		b.WriteString("| Metric | Value |\n")
		b.WriteString("|--------|-------|\n")
		b.WriteString(fmt.Sprintf("| Sharpe Ratio | %.3f |\n", m.SharpeRatio))
		b.WriteString(fmt.Sprintf("| Profit Factor | %s |\n", formatProfitFactor(m.ProfitFactor)))
		b.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", m.MaxDrawdown*100))
		b.WriteString(fmt.Sprintf("| Volatility | %.4f |\n", m.Volatility))
		b.WriteString(fmt.Sprintf("| Avg Trade Return | %.3f%% |\n", m.AvgTradeReturn*100))
		b.WriteString(fmt.Sprintf("| Avg Win / Avg Loss | %.2f / %.2f |\n", m.AvgWin, m.AvgLoss))
		b.WriteString(fmt.Sprintf("| Best / Worst Trade | %.2f%% / %.2f%% |\n", m.BestTrade*100, m.WorstTrade*100))
		b.WriteString(fmt.Sprintf("| Avg Hold | %.1f bars |\n", m.AvgHoldBars))
		b.WriteString(fmt.Sprintf("| Confidence-Weighted Return | %.3f%% |\n", m.ConfWeightedReturn*100))
		b.WriteString(fmt.Sprintf("| Risk-Adjusted Return | %.3f |\n", m.RiskAdjustedReturn))
		b.WriteString("\n")

		b.WriteString("## Exit Reasons\n\n")
		b.WriteString("| Reason | Count | Share |\n")
		b.WriteString("|--------|------:|------:|\n")
		for _, reason := range sortedKeys(m.ByExitReason) {
			count := m.ByExitReason[reason]
			b.WriteString(fmt.Sprintf("| %s | %d | %.1f%% |\n",
				reason, count, float64(count)/float64(m.TotalTrades)*100))
		}
		b.WriteString("\n")

		b.WriteString("## Trade Timing\n\n")
		b.WriteString("Exits by hour of day (UTC):\n\n")
		hours := make([]int, 0, len(m.TradesByHour))
		for h := range m.TradesByHour {
			hours = append(hours, h)
		}
		sort.Ints(hours)
		for _, h := range hours {
			b.WriteString(fmt.Sprintf("- **%02d:00**: %d\n", h, m.TradesByHour[h]))
		}
		b.WriteString("\n")

		b.WriteString("## Signal Confidence\n\n")
		b.WriteString(fmt.Sprintf("- **Mean**: %.3f (min %.3f, max %.3f, std %.3f)\n",
			m.Confidence.Mean, m.Confidence.Min, m.Confidence.Max, m.Confidence.Std))
		b.WriteString(fmt.Sprintf("- **High conviction (>0.8)**: %d trades\n", m.Confidence.HighCount))
		b.WriteString(fmt.Sprintf("- **Low conviction (<0.5)**: %d trades\n\n", m.Confidence.LowCount))

		writeNotableTrades(&b, run.Trades)
	}

	if c := doc.Comparison; c != nil {
		b.WriteString("## Baseline Comparison\n\n")
		b.WriteString("| Metric | Run | Baseline | Improvement | Target | Met |\n")
		b.WriteString("|--------|----:|---------:|------------:|-------:|:---:|\n")
		b.WriteString(fmt.Sprintf("| Sharpe | %.3f | %.3f | %+.1f%% | %+.0f%% | %s |\n",
			m.SharpeRatio, c.Baseline.SharpeRatio, c.SharpeImprovement*100,
			c.Baseline.Targets.SharpeImprovement*100, metMark(c.SharpeTargetMet)))
		b.WriteString(fmt.Sprintf("| Win Rate | %.1f%% | %.1f%% | %+.1f%% | %+.0f%% | %s |\n",
			m.WinRate*100, c.Baseline.WinRate*100, c.WinRateImprovement*100,
			c.Baseline.Targets.WinRateImprovement*100, metMark(c.WinRateTargetMet)))
		b.WriteString(fmt.Sprintf("| Max Drawdown | %.1f%% | %.1f%% | %+.1f%% | %+.0f%% | %s |\n",
			m.MaxDrawdown*100, c.Baseline.MaxDrawdown*100, c.DrawdownImprovement*100,
			c.Baseline.Targets.DrawdownImprovement*100, metMark(c.DrawdownTargetMet)))
		b.WriteString(fmt.Sprintf("| Return | %.2f%% | %.2f%% | %+.1f%% | - | - |\n",
			m.TotalReturn*100, c.Baseline.TotalReturn*100, c.ReturnImprovement*100))
		b.WriteString(fmt.Sprintf("\n**Targets met**: %d/3\n\n", c.TargetsMet))
	}

	if len(run.Incidents) > 0 {
		b.WriteString("## Provider Incidents\n\n")
		b.WriteString(fmt.Sprintf("Total incidents: %d\n\n", len(run.Incidents)))
		byProvider := map[string]int{}
		for _, inc := range run.Incidents {
			byProvider[inc.Provider]++
		}
		b.WriteString("| Provider | Incidents |\n")
		b.WriteString("|----------|----------:|\n")
		for _, p := range sortedKeys(byProvider) {
			b.WriteString(fmt.Sprintf("| %s | %d |\n", p, byProvider[p]))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Artifact Paths\n\n")
	b.WriteString(fmt.Sprintf("- **Results JSON**: `%s`\n", paths.ResultsJSON))
	b.WriteString(fmt.Sprintf("- **Trade Log**: `%s`\n", paths.TradesJSONL))
	b.WriteString(fmt.Sprintf("- **Equity Curve**: `%s`\n", paths.EquityJSONL))
	b.WriteString(fmt.Sprintf("- **Report**: `%s`\n", paths.ReportMD))

	return b.String()
}

// writeNotableTrades renders the five best and five worst trades by return
func writeNotableTrades(b *strings.Builder, trades []backtest.Trade) {
	ranked := make([]backtest.Trade, len(trades))
	copy(ranked, trades)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].ReturnPct > ranked[j].ReturnPct })

	top := len(ranked)
	if top > 5 {
		top = 5
	}

	b.WriteString("## Notable Trades\n\n")
	b.WriteString("Best:\n\n")
	writeTradeTable(b, ranked[:top])

	b.WriteString("\nWorst:\n\n")
	worst := make([]backtest.Trade, 0, top)
	for i := len(ranked) - 1; i >= len(ranked)-top; i-- {
		worst = append(worst, ranked[i])
	}
	writeTradeTable(b, worst)
	b.WriteString("\n")
}

func writeTradeTable(b *strings.Builder, trades []backtest.Trade) {
	b.WriteString("| Position | Return | PnL | Exit Reason | Held |\n")
	b.WriteString("|----------|-------:|----:|-------------|-----:|\n")
	for _, tr := range trades {
		b.WriteString(fmt.Sprintf("| %s | %.2f%% | %.2f | %s | %d bars |\n",
			tr.PositionID, tr.ReturnPct*100, tr.PnL, tr.ExitReason, tr.HoldBars))
	}
}

func formatProfitFactor(pf perf.JSONFloat) string {
	v := float64(pf)
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

func metMark(met bool) string {
	if met {
		return "✅"
	}
	return "❌"
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

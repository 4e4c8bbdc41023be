package sweep

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Writer persists sweep artifacts under outputDir/<date>/sweep-<time>
type Writer struct {
	runDir string
}

func NewWriter(outputDir string) *Writer {
	now := time.Now()
	return &Writer{
		runDir: filepath.Join(outputDir, now.Format("2006-01-02"), "sweep-"+now.Format("150405")),
	}
}

func (w *Writer) Dir() string {
	return w.runDir
}

// WriteAll writes the summary JSON and the leaderboard markdown
func (w *Writer) WriteAll(summary *Summary) error {
	if err := w.WriteSummary(summary); err != nil {
		return err
	}
	return w.WriteLeaderboard(summary)
}

// WriteSummary writes sweep_summary.json
func (w *Writer) WriteSummary(summary *Summary) error {
	if err := os.MkdirAll(w.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create sweep directory: %w", err)
	}

	file, err := os.Create(filepath.Join(w.runDir, "sweep_summary.json"))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

// WriteLeaderboard writes leaderboard.md
func (w *Writer) WriteLeaderboard(summary *Summary) error {
	if err := os.MkdirAll(w.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create sweep directory: %w", err)
	}

	file, err := os.Create(filepath.Join(w.runDir, "leaderboard.md"))
	if err != nil {
		return fmt.Errorf("failed to create leaderboard file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(renderLeaderboard(summary)); err != nil {
		return fmt.Errorf("failed to write leaderboard: %w", err)
	}
	return nil
}

func renderLeaderboard(summary *Summary) string {
	var b strings.Builder

	b.WriteString("# StratRun Sweep Leaderboard\n\n")
	b.WriteString(fmt.Sprintf("**Finished**: %s\n", summary.FinishedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("**Grid**: %d combinations (%d completed, %d failed)\n\n",
		summary.Combinations, summary.Completed, summary.Failed))

	if best := summary.Best(); best != nil {
		b.WriteString(fmt.Sprintf("**Best**: `%s` with grade %s (score %.1f)\n\n",
			best.Label, best.Metrics.Grade, best.Metrics.CompositeScore))
	}

	b.WriteString("| Rank | Label | Grade | Score | Return | Sharpe | Win Rate | Max DD | Trades | Status |\n")
	b.WriteString("|-----:|-------|-------|------:|-------:|-------:|---------:|-------:|-------:|--------|\n")
	rank := 0
	for _, e := range summary.Leaderboard {
		if e.Error != "" {
			continue
		}
		rank++
		m := e.Metrics
		b.WriteString(fmt.Sprintf("| %d | %s | %s | %.1f | %.2f%% | %.3f | %.1f%% | %.1f%% | %d | %s |\n",
			rank, e.Label, m.Grade, m.CompositeScore,
			m.TotalReturn*100, m.SharpeRatio, m.WinRate*100, m.MaxDrawdown*100,
			m.TotalTrades, e.Status))
	}
	b.WriteString("\n")

	if summary.Failed > 0 {
		b.WriteString("## Failures\n\n")
		for _, e := range summary.Leaderboard {
			if e.Error != "" {
				b.WriteString(fmt.Sprintf("- `%s`: %s\n", e.Label, e.Error))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

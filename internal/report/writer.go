// Package report writes the artifacts of a finished run: the result
// document, the trade log, the equity curve, and a human-readable markdown
// report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantpulse/stratrun/internal/backtest"
	"github.com/quantpulse/stratrun/internal/perf"
)

// Document bundles everything the artifacts are rendered from
type Document struct {
	Run        *backtest.Result `json:"run"`
	Metrics    *perf.Metrics    `json:"metrics"`
	Comparison *perf.Comparison `json:"baseline_comparison,omitempty"`
}

// ArtifactPaths lists every file one run produces
type ArtifactPaths struct {
	ResultsJSON string `json:"results_json"`
	TradesJSONL string `json:"trades_jsonl"`
	EquityJSONL string `json:"equity_jsonl"`
	ReportMD    string `json:"report_md"`
	OutputDir   string `json:"output_dir"`
}

// Writer handles writing run artifacts to disk
type Writer struct {
	runDir string
}

// NewWriter creates a writer rooted at outputDir/<date>/<short run id>
func NewWriter(outputDir, runID string) *Writer {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return &Writer{
		runDir: filepath.Join(outputDir, time.Now().Format("2006-01-02"), short),
	}
}

// Dir returns the run's artifact directory
func (w *Writer) Dir() string {
	return w.runDir
}

// Paths returns where every artifact lives
func (w *Writer) Paths() *ArtifactPaths {
	return &ArtifactPaths{
		ResultsJSON: filepath.Join(w.runDir, "results.json"),
		TradesJSONL: filepath.Join(w.runDir, "trades.jsonl"),
		EquityJSONL: filepath.Join(w.runDir, "equity.jsonl"),
		ReportMD:    filepath.Join(w.runDir, "report.md"),
		OutputDir:   w.runDir,
	}
}

// WriteAll writes every artifact and returns their paths
func (w *Writer) WriteAll(doc Document) (*ArtifactPaths, error) {
	if err := w.WriteResultJSON(doc); err != nil {
		return nil, err
	}
	if err := w.WriteTrades(doc.Run.Trades); err != nil {
		return nil, err
	}
	if err := w.WriteEquity(doc.Run.EquityCurve); err != nil {
		return nil, err
	}
	if err := w.WriteReport(doc); err != nil {
		return nil, err
	}
	return w.Paths(), nil
}

// WriteResultJSON writes the combined result document
func (w *Writer) WriteResultJSON(doc Document) error {
	if err := os.MkdirAll(w.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filepath.Join(w.runDir, "results.json"))
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// WriteTrades writes the trade log, one JSON object per line. The log is
// the determinism surface: two runs with the same seed and config produce
// byte-identical files.
func (w *Writer) WriteTrades(trades []backtest.Trade) error {
	if err := os.MkdirAll(w.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filepath.Join(w.runDir, "trades.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to create trades file: %w", err)
	}
	defer file.Close()

	for _, tr := range trades {
		line, err := json.Marshal(tr)
		if err != nil {
			return fmt.Errorf("failed to marshal trade %s: %w", tr.PositionID, err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}
	return nil
}

// WriteEquity writes the equity curve, one JSON object per line
func (w *Writer) WriteEquity(curve []backtest.EquityPoint) error {
	if err := os.MkdirAll(w.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filepath.Join(w.runDir, "equity.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to create equity file: %w", err)
	}
	defer file.Close()

	for _, pt := range curve {
		line, err := json.Marshal(pt)
		if err != nil {
			return fmt.Errorf("failed to marshal equity point %d: %w", pt.Index, err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write equity point: %w", err)
		}
	}
	return nil
}

// WriteReport writes the markdown report
func (w *Writer) WriteReport(doc Document) error {
	if err := os.MkdirAll(w.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filepath.Join(w.runDir, "report.md"))
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(renderMarkdown(doc, w.Paths())); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Package sweep runs a grid of backtests across thresholds, risk levels and
// seeds on a worker pool, then ranks the grid points by composite score.
package sweep

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quantpulse/stratrun/internal/backtest"
	"github.com/quantpulse/stratrun/internal/config"
	"github.com/quantpulse/stratrun/internal/perf"
	"github.com/quantpulse/stratrun/internal/signal"
	"github.com/quantpulse/stratrun/internal/telemetry"
)

const defaultWorkers = 4

// Plan describes the sweep grid. Empty dimensions collapse onto the base
// config's value, so a zero plan runs the base config once.
type Plan struct {
	Base       *config.Config
	Thresholds []float64
	Risks      []float64
	Seeds      int // seeds per combination, derived base seed + offset
	Workers    int

	// Providers builds a fresh provider set per run so circuit breaker
	// state never leaks across grid points. Nil selects the defaults.
	Providers func() []signal.Provider

	// Metrics is shared across all grid runs; its active-runs gauge tracks
	// how many are in flight. Nil leaves the runs uninstrumented.
	Metrics *telemetry.Metrics
}

// Entry is one grid point with its outcome
type Entry struct {
	Label     string          `json:"label"`
	Seed      int64           `json:"seed"`
	Threshold float64         `json:"confidence_threshold"`
	Risk      float64         `json:"risk_per_trade"`
	Status    backtest.Status `json:"status,omitempty"`
	Metrics   *perf.Metrics   `json:"metrics,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Summary is the full sweep outcome with the ranked leaderboard
type Summary struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Combinations int       `json:"combinations"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Leaderboard  []Entry   `json:"leaderboard"`
}

// Best returns the top-ranked successful entry, or nil for an all-failed
// sweep
func (s *Summary) Best() *Entry {
	for i := range s.Leaderboard {
		if s.Leaderboard[i].Error == "" {
			return &s.Leaderboard[i]
		}
	}
	return nil
}

type job struct {
	index int
	entry Entry
	cfg   *config.Config
}

// Run executes the whole grid. Cancellation stops feeding new grid points;
// runs already in flight finish as canceled partials and the summary ranks
// whatever completed.
func Run(ctx context.Context, plan Plan) (*Summary, error) {
	if plan.Base == nil {
		return nil, fmt.Errorf("sweep: plan needs a base config")
	}
	if errs := plan.Base.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("sweep: invalid base config: %v", errs)
	}

	jobs := expand(plan)
	workers := plan.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	startedAt := time.Now()
	log.Info().
		Int("combinations", len(jobs)).
		Int("workers", workers).
		Msg("Sweep started")

	entries := make([]Entry, len(jobs))
	jobCh := make(chan job)
	var wg sync.WaitGroup
	var done atomic.Int64
	progress := rate.NewLimiter(rate.Every(2*time.Second), 1)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				entries[j.index] = runOne(ctx, plan, j)
				n := done.Add(1)
				if progress.Allow() {
					log.Info().
						Int64("completed", n).
						Int("total", len(jobs)).
						Msg("Sweep progress")
				}
			}
		}()
	}

feed:
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			log.Warn().Msg("Sweep canceled, draining in-flight runs")
			break feed
		case jobCh <- j:
		}
	}
	close(jobCh)
	wg.Wait()

	summary := &Summary{
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
		Combinations: len(jobs),
	}
	for _, e := range entries {
		if e.Label == "" {
			continue // never fed due to cancellation
		}
		if e.Error != "" {
			summary.Failed++
		} else {
			summary.Completed++
		}
		summary.Leaderboard = append(summary.Leaderboard, e)
	}
	rank(summary.Leaderboard)

	log.Info().
		Int("completed", summary.Completed).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Sweep finished")
	return summary, nil
}

func expand(plan Plan) []job {
	thresholds := plan.Thresholds
	if len(thresholds) == 0 {
		thresholds = []float64{plan.Base.ConfidenceThreshold}
	}
	risks := plan.Risks
	if len(risks) == 0 {
		risks = []float64{plan.Base.RiskPerTrade}
	}
	seeds := plan.Seeds
	if seeds <= 0 {
		seeds = 1
	}

	var jobs []job
	for _, th := range thresholds {
		for _, risk := range risks {
			for s := 0; s < seeds; s++ {
				cfg := *plan.Base
				cfg.Seed = plan.Base.Seed + int64(s)
				cfg.ConfidenceThreshold = th
				cfg.RiskPerTrade = risk

				jobs = append(jobs, job{
					index: len(jobs),
					cfg:   &cfg,
					entry: Entry{
						Label:     fmt.Sprintf("t%.2f-r%.3f-s%d", th, risk, cfg.Seed),
						Seed:      cfg.Seed,
						Threshold: th,
						Risk:      risk,
					},
				})
			}
		}
	}
	return jobs
}

func runOne(ctx context.Context, plan Plan, j job) Entry {
	entry := j.entry

	r := backtest.NewRunner(j.cfg)
	r.SetMetrics(plan.Metrics)
	if plan.Providers != nil {
		r.SetProviders(plan.Providers())
	}

	result, err := r.Run(ctx)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Status = result.Status
	entry.Metrics = perf.Summarize(result)
	return entry
}

// rank orders successes by composite score, ties broken by total return
// then label; failures sink to the bottom in label order
func rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.Error == "") != (b.Error == "") {
			return a.Error == ""
		}
		if a.Error != "" {
			return a.Label < b.Label
		}
		if a.Metrics.CompositeScore != b.Metrics.CompositeScore {
			return a.Metrics.CompositeScore > b.Metrics.CompositeScore
		}
		if a.Metrics.TotalReturn != b.Metrics.TotalReturn {
			return a.Metrics.TotalReturn > b.Metrics.TotalReturn
		}
		return a.Label < b.Label
	})
}

// Package log renders run progress for humans: a single redrawn line with a
// spinner on a TTY, periodic structured log lines when output is piped.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const barWidth = 20

// Progress tracks one long operation. Observe is safe to call from the
// simulation step hook; redraws are throttled so rendering never dominates
// a fast loop.
type Progress struct {
	mu      sync.Mutex
	label   string
	current int
	total   int
	equity  float64
	trades  int
	started time.Time
	frame   int
	tty     bool
	out     io.Writer
	redraw  *rate.Limiter
	logTick *rate.Limiter
	done    bool
}

// NewProgress creates a progress tracker writing to stderr, detecting
// whether it is a terminal.
func NewProgress(label string) *Progress {
	return NewProgressTo(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), label)
}

// NewProgressTo creates a progress tracker with an explicit sink and mode
func NewProgressTo(out io.Writer, tty bool, label string) *Progress {
	return &Progress{
		label:   label,
		started: time.Now(),
		tty:     tty,
		out:     out,
		redraw:  rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		logTick: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Observe records the latest state and repaints or logs when due
func (p *Progress) Observe(current, total int, equity float64, trades int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}
	p.current = current
	p.total = total
	p.equity = equity
	p.trades = trades

	if p.tty {
		if p.redraw.Allow() {
			p.paint()
		}
		return
	}
	if p.logTick.Allow() {
		log.Info().
			Str("op", p.label).
			Int("processed", current).
			Int("total", total).
			Float64("equity", equity).
			Int("trades", trades).
			Msg("Progress")
	}
}

// Finish clears the line and prints the closing summary exactly once
func (p *Progress) Finish(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}
	p.done = true
	elapsed := time.Since(p.started).Round(time.Millisecond)

	if p.tty {
		fmt.Fprintf(p.out, "\r\033[K✅ %s: %s (%v)\n", p.label, message, elapsed)
		return
	}
	log.Info().Str("op", p.label).Dur("elapsed", elapsed).Msg(message)
}

// Fail clears the line and prints the failure exactly once
func (p *Progress) Fail(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}
	p.done = true
	elapsed := time.Since(p.started).Round(time.Millisecond)

	if p.tty {
		fmt.Fprintf(p.out, "\r\033[K❌ %s failed: %s (%v)\n", p.label, reason, elapsed)
		return
	}
	log.Error().Str("op", p.label).Dur("elapsed", elapsed).Str("reason", reason).Msg("Failed")
}

// paint redraws the line; caller holds the lock
func (p *Progress) paint() {
	p.frame = (p.frame + 1) % len(spinnerFrames)

	var b strings.Builder
	b.WriteString("\r\033[K")
	b.WriteString(spinnerFrames[p.frame])
	b.WriteString(" ")
	b.WriteString(p.label)

	if p.total > 0 {
		filled := barWidth * p.current / p.total
		if filled > barWidth {
			filled = barWidth
		}
		b.WriteString(" [")
		b.WriteString(strings.Repeat("█", filled))
		b.WriteString(strings.Repeat("░", barWidth-filled))
		pct := 100 * float64(p.current) / float64(p.total)
		fmt.Fprintf(&b, "] %d/%d (%.1f%%)", p.current, p.total, pct)

		if p.current > 0 {
			elapsed := time.Since(p.started)
			eta := time.Duration(float64(elapsed) / float64(p.current) * float64(p.total-p.current))
			fmt.Fprintf(&b, " ETA %v", eta.Round(time.Second))
		}
	}

	if p.equity != 0 {
		fmt.Fprintf(&b, " equity %.2f", p.equity)
	}
	if p.trades > 0 {
		fmt.Fprintf(&b, " trades %d", p.trades)
	}

	fmt.Fprint(p.out, b.String())
}

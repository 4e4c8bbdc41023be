package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressPaintsBarOnTTY(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTo(&buf, true, "simulate")

	p.Observe(500, 1000, 100500.25, 3)

	out := buf.String()
	assert.Contains(t, out, "simulate")
	assert.Contains(t, out, "500/1000")
	assert.Contains(t, out, "(50.0%)")
	assert.Contains(t, out, "ETA")
	assert.Contains(t, out, "equity 100500.25")
	assert.Contains(t, out, "trades 3")
}

func TestProgressThrottlesRedraws(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTo(&buf, true, "simulate")

	for i := 1; i <= 100; i++ {
		p.Observe(i, 1000, 100000, 0)
	}

	// Burst of one; back-to-back observes inside the redraw window paint once.
	assert.Equal(t, 1, strings.Count(buf.String(), "\r"))
}

func TestProgressFinishSummarizesOnce(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTo(&buf, true, "simulate")

	p.Observe(1000, 1000, 104200.5, 7)
	p.Finish("grade B (68.4)")

	out := buf.String()
	assert.Contains(t, out, "✅ simulate: grade B (68.4)")

	before := buf.Len()
	p.Finish("again")
	p.Observe(1001, 1000, 0, 0)
	assert.Equal(t, before, buf.Len())
}

func TestProgressFailLatches(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTo(&buf, true, "sweep")

	p.Fail("canceled")
	p.Fail("canceled")

	assert.Equal(t, 1, strings.Count(buf.String(), "❌"))
}

func TestProgressNonTTYKeepsSinkClean(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTo(&buf, false, "simulate")

	p.Observe(10, 100, 100000, 0)
	p.Finish("done")

	assert.Zero(t, buf.Len())
}

package indicators

import "math"

// Rolling-window helpers. All of them propagate NaN: a window that contains
// any NaN (or has not filled yet) yields NaN, so warmup falls out naturally.

func rollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// rollingStd computes the sample standard deviation (ddof=1) over a window
func rollingStd(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if !valid {
			continue
		}
		mean := sum / float64(window)
		ss := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := values[j] - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// emaAdjusted computes an exponentially weighted mean in the adjusted form:
// ema_t = (x_t + (1-a)x_{t-1} + (1-a)^2 x_{t-2} + ...) / (1 + (1-a) + ...)
// with a = 2/(span+1). Values are valid from the first element.
func emaAdjusted(values []float64, span int) []float64 {
	out := nanSlice(len(values))
	if len(values) == 0 {
		return out
	}

	alpha := 2.0 / (float64(span) + 1.0)
	decay := 1.0 - alpha

	num, den := 0.0, 0.0
	for i, v := range values {
		if math.IsNaN(v) {
			// Warmup rows upstream: restart accumulation after them
			num, den = 0.0, 0.0
			continue
		}
		num = v + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// rollingPctRank ranks the last value of each window against the whole
// window, tie ranks averaged, expressed in (0, 1].
func rollingPctRank(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	for i := window - 1; i < len(values); i++ {
		current := values[i]
		if math.IsNaN(current) {
			continue
		}
		less, equal := 0, 0
		valid := true
		for j := i - window + 1; j <= i; j++ {
			v := values[j]
			if math.IsNaN(v) {
				valid = false
				break
			}
			switch {
			case v < current:
				less++
			case v == current:
				equal++
			}
		}
		if !valid {
			continue
		}
		avgRank := float64(less) + (float64(equal)+1.0)/2.0
		out[i] = avgRank / float64(window)
	}
	return out
}

// diff returns values[i] - values[i-1] with NaN at index 0
func diff(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

// pctChange returns the percent change over lag periods, NaN while unfilled
func pctChange(values []float64, lag int) []float64 {
	out := nanSlice(len(values))
	for i := lag; i < len(values); i++ {
		if values[i-lag] != 0 {
			out[i] = values[i]/values[i-lag] - 1
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

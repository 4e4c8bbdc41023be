package market

import (
	"fmt"
	"time"
)

// Regime labels the volatility environment a bar was generated under
type Regime string

const (
	RegimeNormal Regime = "normal"
	RegimeHigh   Regime = "high"
	RegimeLow    Regime = "low"
)

// Bar represents a single hourly OHLCV candle
type Bar struct {
	Time   time.Time `json:"time" csv:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Regime Regime    `json:"regime,omitempty"`
}

// Hour returns the bar's hour of day (0-23) in UTC
func (b Bar) Hour() int {
	return b.Time.UTC().Hour()
}

// Weekend reports whether the bar falls on a Saturday or Sunday (UTC)
func (b Bar) Weekend() bool {
	wd := b.Time.UTC().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Series is an ordered sequence of bars
type Series []Bar

// Len returns the number of bars in the series
func (s Series) Len() int {
	return len(s)
}

// Validate checks chronological order and price sanity. It runs once before
// any indicator or engine work so bad data fails fast.
func (s Series) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("series is empty")
	}

	for i, bar := range s {
		if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
			return fmt.Errorf("bar %d: non-positive price (O=%.4f H=%.4f L=%.4f C=%.4f)",
				i, bar.Open, bar.High, bar.Low, bar.Close)
		}
		if bar.High < bar.Open || bar.High < bar.Close {
			return fmt.Errorf("bar %d: high %.4f below open/close", i, bar.High)
		}
		if bar.Low > bar.Open || bar.Low > bar.Close {
			return fmt.Errorf("bar %d: low %.4f above open/close", i, bar.Low)
		}
		if bar.Volume < 0 {
			return fmt.Errorf("bar %d: negative volume %.4f", i, bar.Volume)
		}
		if i > 0 && !s[i-1].Time.Before(bar.Time) {
			return fmt.Errorf("bar %d: timestamp %s not after previous %s",
				i, bar.Time.Format(time.RFC3339), s[i-1].Time.Format(time.RFC3339))
		}
	}

	return nil
}

// Closes extracts the close column
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, bar := range s {
		out[i] = bar.Close
	}
	return out
}

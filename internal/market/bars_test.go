package market

import (
	"testing"
	"time"
)

func validBar(ts time.Time, price float64) Bar {
	return Bar{
		Time:   ts,
		Open:   price,
		High:   price * 1.01,
		Low:    price * 0.99,
		Close:  price,
		Volume: 1000,
	}
}

func TestSeriesValidate(t *testing.T) {
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	t.Run("valid series passes", func(t *testing.T) {
		s := Series{validBar(base, 100), validBar(base.Add(time.Hour), 101)}
		if err := s.Validate(); err != nil {
			t.Errorf("Expected valid, got %v", err)
		}
	})

	t.Run("empty series fails", func(t *testing.T) {
		if err := (Series{}).Validate(); err == nil {
			t.Error("Expected error for empty series")
		}
	})

	t.Run("non-positive price fails", func(t *testing.T) {
		bad := validBar(base, 100)
		bad.Close = 0
		if err := (Series{bad}).Validate(); err == nil {
			t.Error("Expected error for zero close")
		}
	})

	t.Run("high below close fails", func(t *testing.T) {
		bad := validBar(base, 100)
		bad.High = 99
		if err := (Series{bad}).Validate(); err == nil {
			t.Error("Expected error for high below close")
		}
	})

	t.Run("low above open fails", func(t *testing.T) {
		bad := validBar(base, 100)
		bad.Low = 101
		if err := (Series{bad}).Validate(); err == nil {
			t.Error("Expected error for low above open")
		}
	})

	t.Run("out of order timestamps fail", func(t *testing.T) {
		s := Series{validBar(base.Add(time.Hour), 100), validBar(base, 101)}
		if err := s.Validate(); err == nil {
			t.Error("Expected error for unsorted series")
		}
	})

	t.Run("duplicate timestamps fail", func(t *testing.T) {
		s := Series{validBar(base, 100), validBar(base, 101)}
		if err := s.Validate(); err == nil {
			t.Error("Expected error for duplicate timestamp")
		}
	})
}

func TestBarDerivedFields(t *testing.T) {
	// 2025-01-04 is a Saturday
	saturday := Bar{Time: time.Date(2025, 1, 4, 13, 0, 0, 0, time.UTC)}
	if !saturday.Weekend() {
		t.Error("Saturday should be a weekend")
	}
	if saturday.Hour() != 13 {
		t.Errorf("Expected hour 13, got %d", saturday.Hour())
	}

	monday := Bar{Time: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)}
	if monday.Weekend() {
		t.Error("Monday should not be a weekend")
	}
}

func TestSeriesCloses(t *testing.T) {
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	s := Series{validBar(base, 100), validBar(base.Add(time.Hour), 105)}

	closes := s.Closes()
	if len(closes) != 2 || closes[0] != 100 || closes[1] != 105 {
		t.Errorf("Unexpected closes: %v", closes)
	}
}

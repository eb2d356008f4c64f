package backoff_test

import (
	"testing"
	"time"

	"github.com/belsrc/squeue/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(500 * time.Millisecond)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 500*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 500*time.Millisecond)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},  // 1 * 2^0
		{2, 2 * time.Second},  // 1 * 2^1
		{3, 4 * time.Second},  // 1 * 2^2
		{4, 8 * time.Second},  // 1 * 2^3
		{5, 16 * time.Second}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(6); got != 10*time.Second {
		t.Errorf("Delay(6) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Delay(30); got != 10*time.Second {
		t.Errorf("Delay(30) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponentialWithJitter_StaysInRange(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 8*time.Second)

	for attempt := 1; attempt <= 10; attempt++ {
		ceiling := time.Duration(1<<uint(attempt-1)) * time.Second
		if ceiling > 8*time.Second {
			ceiling = 8 * time.Second
		}
		for range 50 {
			got := e.Delay(attempt)
			if got < 0 || got > ceiling {
				t.Fatalf("Delay(%d) = %v, want in [0, %v]", attempt, got, ceiling)
			}
		}
	}
}

func TestDefaultStrategy_BoundedDelays(t *testing.T) {
	s := backoff.DefaultStrategy()
	for attempt := 1; attempt <= 20; attempt++ {
		got := s.Delay(attempt)
		if got < 0 || got > 10*time.Second {
			t.Fatalf("Delay(%d) = %v, want in [0, 10s]", attempt, got)
		}
	}
}

package retry

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{4, 1600 * time.Millisecond},
		{-1, 100 * time.Millisecond},
		{40, MaxDelay},
		{200, MaxDelay},
	}

	for _, tt := range tests {
		if got := ExponentialBackoff(tt.attempt, base); got != tt.expected {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestBackoffCustomMax(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.expected {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestBackoffZeroBase(t *testing.T) {
	if got := (Backoff{}).Delay(3); got != 0 {
		t.Errorf("expected no delay without a base, got %v", got)
	}
}

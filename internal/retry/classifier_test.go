package retry

import (
	"errors"
	"testing"
	"time"
)

func TestIsNonRetryableMatchesExchangeRejections(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"Insufficient balance for requested action", true},
		{"insufficient balance", true},
		{"Invalid symbol NEWCOINUSDT", true},
		{"invalid symbol", true},
		{"Trading disabled for this pair", true},
		{"Filter failure: LOT_SIZE", true},
		{"Filter failure: MIN_NOTIONAL", true},
		{"Filter failure: PERCENT_PRICE", true},
		{"Order price out of range", true},
		{"api error 30004", true},
		{"connection reset by peer", false},
		{"context deadline exceeded", false},
		{"429 too many requests", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsNonRetryable(tc.message); got != tc.want {
			t.Errorf("IsNonRetryable(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

// Matching is deliberately case-sensitive: exchange rejections arrive with
// fixed casing, and an upper-cased message must not be treated as one.
func TestIsNonRetryableIsCaseSensitive(t *testing.T) {
	if !IsNonRetryable("invalid symbol") {
		t.Error("lowercase marker should be non-retryable")
	}
	if IsNonRetryable("INVALID SYMBOL") {
		t.Error("upper-cased message should stay retryable")
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(errors.New("Insufficient balance")); got != NonRetryable {
		t.Errorf("expected NonRetryable, got %s", got)
	}
	if got := Classify(errors.New("timeout")); got != Retryable {
		t.Errorf("expected Retryable, got %s", got)
	}
	if got := Classify(nil); got != Retryable {
		t.Errorf("nil error should classify Retryable, got %s", got)
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1000 * time.Millisecond},
		{2, 2000 * time.Millisecond},
		{3, 4000 * time.Millisecond},
		{4, 5000 * time.Millisecond}, // capped
		{10, 5000 * time.Millisecond},
	}

	for _, tc := range cases {
		if got := BackoffDelay(tc.attempt); got != tc.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffDelayNonPositiveAttempts(t *testing.T) {
	// The formula applies uniformly below 1: the exponent goes negative.
	if got := BackoffDelay(0); got != 500*time.Millisecond {
		t.Errorf("BackoffDelay(0) = %v, want 500ms", got)
	}
	if got := BackoffDelay(-1); got != 250*time.Millisecond {
		t.Errorf("BackoffDelay(-1) = %v, want 250ms", got)
	}
}

func TestBackoffDelayCustomCap(t *testing.T) {
	if got := BackoffDelayCapped(3, 3000*time.Millisecond); got != 3000*time.Millisecond {
		t.Errorf("BackoffDelayCapped(3, 3s) = %v, want 3s", got)
	}
}

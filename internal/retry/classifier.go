// Package retry provides error classification and backoff policy for the
// execution engine. Classification decides whether a failed order or job is
// retried; backoff decides when.
package retry

import (
	"strings"
	"time"
)

// Class is the retry classification of a failure.
type Class int

const (
	// Retryable failures are transient (network, timeout, rate limit) and
	// safe to attempt again.
	Retryable Class = iota

	// NonRetryable failures are business rejections that will fail the same
	// way every time. They terminate the job or target permanently.
	NonRetryable
)

func (c Class) String() string {
	switch c {
	case Retryable:
		return "RETRYABLE"
	case NonRetryable:
		return "NON_RETRYABLE"
	default:
		return "UNKNOWN"
	}
}

// nonRetryableMarkers are matched case-sensitively against error messages.
// Exchange rejections keep their original casing on the wire, so a
// case-sensitive match avoids false positives on symbols or user payloads
// that merely mention one of these phrases in caps.
var nonRetryableMarkers = []string{
	"Insufficient balance",
	"insufficient balance",
	"Invalid symbol",
	"invalid symbol",
	"Trading disabled",
	"trading disabled",
	"LOT_SIZE",
	"MIN_NOTIONAL",
	"PERCENT_PRICE",
	"Order price out of range",
	"30004", // MEXC: insufficient position/balance
}

// IsNonRetryable reports whether the message describes a permanent business
// rejection. Matching is a case-sensitive substring check against the known
// exchange rejection markers; anything unrecognized is treated as transient.
func IsNonRetryable(message string) bool {
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// Classify classifies an error value. A nil error is Retryable by convention;
// callers only classify failures.
func Classify(err error) Class {
	if err == nil {
		return Retryable
	}
	if IsNonRetryable(err.Error()) {
		return NonRetryable
	}
	return Retryable
}

const (
	baseDelay = 1000 * time.Millisecond
	maxDelay  = 5000 * time.Millisecond
)

// BackoffDelay returns the delay before retry number attempt, doubling from
// 1s and capped at 5s: min(1000ms * 2^(attempt-1), 5000ms).
//
// The formula is applied uniformly for all inputs, including attempt <= 0,
// where the exponent goes negative and the result shrinks below the base.
func BackoffDelay(attempt int) time.Duration {
	return BackoffDelayCapped(attempt, maxDelay)
}

// BackoffDelayCapped is BackoffDelay with an explicit ceiling.
func BackoffDelayCapped(attempt int, maxDelay time.Duration) time.Duration {
	delay := baseDelay
	if attempt > 1 {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= maxDelay {
				return maxDelay
			}
		}
	} else if attempt < 1 {
		for i := attempt; i < 1; i++ {
			delay /= 2
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

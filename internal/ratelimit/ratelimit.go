package ratelimit

import (
	"time"
)

// DefaultWindow is how long a failed portal lookup blocks another attempt for the same reference
const DefaultWindow = 5 * time.Minute

// Config interface for rate limiting configuration
type Config interface {
	GetDisableRateLimit() bool
	GetRateLimitWindow() time.Duration
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	ShouldBlock   bool
	RemainingTime time.Duration
	Reason        string
}

// CheckLookupRateLimit decides whether a portal lookup for a reference should be skipped
// because the previous lookup for it failed recently
func CheckLookupRateLimit(cfg Config, lastFailedLookup *time.Time, isForced bool) RateLimitResult {
	if cfg.GetDisableRateLimit() {
		return RateLimitResult{
			ShouldBlock: false,
			Reason:      "rate_limiting_disabled",
		}
	}

	if isForced {
		return RateLimitResult{
			ShouldBlock: false,
			Reason:      "forced_lookup",
		}
	}

	if lastFailedLookup == nil {
		return RateLimitResult{
			ShouldBlock: false,
			Reason:      "no_previous_failure",
		}
	}

	window := GetRateLimitDuration(cfg)
	sinceFailure := time.Since(*lastFailedLookup)

	if sinceFailure < window {
		return RateLimitResult{
			ShouldBlock:   true,
			RemainingTime: window - sinceFailure,
			Reason:        "rate_limit_active",
		}
	}

	return RateLimitResult{
		ShouldBlock: false,
		Reason:      "rate_limit_passed",
	}
}

// GetRateLimitDuration returns the configured window, or DefaultWindow when unset
func GetRateLimitDuration(cfg Config) time.Duration {
	if window := cfg.GetRateLimitWindow(); window > 0 {
		return window
	}
	return DefaultWindow
}

// Package reliability classifies transient failures and computes retry
// backoff for the REST layer.
package reliability

import (
	"errors"
	"net"
	"time"
)

// IsRetryableHTTPStatus reports whether a response status is worth retrying.
// Only statuses the todo service emits for transient conditions qualify;
// 4xx validation and auth failures are final.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableNetError reports whether a transport-level error is transient.
// Context cancellation is never retryable.
func IsRetryableNetError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

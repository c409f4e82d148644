package reliability

import "time"

// IsRetryableCloseCode classifies websocket close codes where a fresh
// connect is worth attempting. The live client never reconnects on its
// own; callers consult this before retrying.
func IsRetryableCloseCode(code int) bool {
	switch code {
	case 1001, // going away
		1006, // abnormal closure
		1011, // internal server error
		1012, // service restart
		1013: // try again later
		return true
	default:
		return false
	}
}

// IsRetryableFrameError classifies decode-level error codes reported on
// an active session. None of these terminate the connection.
func IsRetryableFrameError(code string) bool {
	switch code {
	case "rate_limited", "resource_exhausted", "queue_overflow":
		return true
	default:
		return false
	}
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

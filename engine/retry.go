package engine

import "time"

// retryStatuses are the response codes worth retrying.
var retryStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// idempotentMethods may be retried without an Idempotency-Key.
var idempotentMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"PUT":     true,
	"DELETE":  true,
	"OPTIONS": true,
}

// RetryPolicy controls retry of failed requests.
type RetryPolicy struct {
	// MaxAttempts is the total attempt count, including the first.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// ForceRetry retries even non-idempotent methods.
	ForceRetry bool
}

// ShouldRetry reports whether attempt (0-indexed) should be followed by
// another. transportErr marks a connection-level failure; status is the
// response code otherwise.
func (p *RetryPolicy) ShouldRetry(attempt int, method string, status int, transportErr, hasIdempotencyKey bool) bool {
	if p == nil || attempt+1 >= p.MaxAttempts {
		return false
	}
	if !transportErr && !retryStatuses[status] {
		return false
	}
	return idempotentMethods[method] || hasIdempotencyKey || p.ForceRetry
}

// Delay returns the backoff before retrying attempt k (0-indexed):
// min(initial * 2^k, max). No jitter.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	d := p.InitialDelay << uint(attempt)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		return p.MaxDelay
	}
	return d
}

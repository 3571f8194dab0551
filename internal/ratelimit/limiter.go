// Package ratelimit implements the per-client fixed-window request limiter that
// guards every route. Two backends share the Limiter interface: an in-process
// bounded cache (default) and a ulule/limiter store, normally Redis, for
// deployments that run more than one replica.
package ratelimit

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultMax is the number of requests a client may make per window
	DefaultMax = 30
	// DefaultWindow is the length of a rate-limit window
	DefaultWindow = 60 * time.Second
	// DefaultMaxClients bounds the number of tracked clients in memory
	DefaultMaxClients = 10000
)

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the whole number of seconds until the window resets.
	// Only set when Allowed is false; always at least 1 in that case.
	RetryAfter int
}

// Limiter decides whether a client may proceed.
type Limiter interface {
	Check(ctx context.Context, clientID string) (Decision, error)
	Close() error
}

// retryAfterSeconds rounds the time left in the window up to whole seconds.
func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

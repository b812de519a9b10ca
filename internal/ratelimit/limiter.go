// Package ratelimit holds the login attempt limiters and the per-client request limiter.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one attempt against a window.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts attempts per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Reset(ctx context.Context, key string) error
}

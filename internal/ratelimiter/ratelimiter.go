// Package ratelimiter throttles how fast the socket adapter accepts new
// connections.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket over accepted connections.
//
// A nil *RateLimiter, or one built with a zero rate, never limits. All methods
// are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New returns a limiter admitting perSecond connections per second with bursts
// of up to burst. perSecond <= 0 disables limiting. A burst below one is raised
// to one so that a positive rate can make progress.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Enabled reports whether the limiter restricts anything.
func (r *RateLimiter) Enabled() bool {
	return r != nil && r.limiter.Limit() != rate.Inf
}

// Allow takes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	if !r.Enabled() {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if !r.Enabled() {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. perSecond <= 0 disables limiting.
func (r *RateLimiter) SetLimit(perSecond float64) {
	if perSecond <= 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	if r.limiter.Burst() < 1 {
		r.limiter.SetBurst(1)
	}
	r.limiter.SetLimit(rate.Limit(perSecond))
}

// Tokens returns the tokens currently in the bucket. Useful in logs only.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

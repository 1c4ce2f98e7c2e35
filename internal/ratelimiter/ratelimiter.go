package ratelimiter

import (
	"golang.org/x/time/rate"
)

// RateLimiter gates new connections with a token bucket.
//
// The limiter is only ever consulted with Allow: admission never waits for a
// token, a refused token is answered with 503 like a full server. A nil
// *RateLimiter allows everything.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter that admits perSecond connections on average with
// bursts of up to burst connections.
//
// perSecond == 0 disables limiting and New returns nil. A burst below 1 is
// raised to max(1, perSecond) so that a configured rate can ever succeed.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Allow reports whether a connection may be admitted now, consuming a token
// if so.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Tokens returns the tokens currently available (monitoring only).
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}

// Burst returns the bucket capacity.
func (r *RateLimiter) Burst() int {
	if r == nil {
		return 0
	}
	return r.limiter.Burst()
}

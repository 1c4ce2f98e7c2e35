package ratelimiter

import (
	"testing"
	"time"
)

// TestNew verifies limiter creation with different parameters.
func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		wantNil   bool
		wantBurst int
	}{
		{name: "standard rate", perSecond: 100, burst: 200, wantBurst: 200},
		{name: "burst defaults to rate", perSecond: 10, burst: 0, wantBurst: 10},
		{name: "fractional rate keeps a burst of one", perSecond: 0.5, burst: 0, wantBurst: 1},
		{name: "unlimited (zero rate)", perSecond: 0, burst: 5, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.perSecond, tt.burst)
			if tt.wantNil {
				if limiter != nil {
					t.Fatal("New() should return nil for an unlimited rate")
				}
				return
			}
			if limiter == nil {
				t.Fatal("New() returned nil")
			}
			if got := limiter.Burst(); got != tt.wantBurst {
				t.Fatalf("Burst() = %d, want %d", got, tt.wantBurst)
			}
		})
	}
}

// TestAllow verifies that Allow() enforces the burst and then refills.
func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		if !limiter.Allow() {
			t.Fatalf("connection %d should be allowed (within burst)", i)
		}
	}

	if limiter.Allow() {
		t.Fatal("connection should be refused after burst exhausted")
	}

	// 10 per second refills one token every 100ms
	time.Sleep(110 * time.Millisecond)

	if !limiter.Allow() {
		t.Fatal("connection should be allowed after token replenishment")
	}
}

// TestNilLimiterAllowsEverything verifies the unlimited configuration.
func TestNilLimiterAllowsEverything(t *testing.T) {
	var limiter *RateLimiter

	for i := 0; i < 1000; i++ {
		if !limiter.Allow() {
			t.Fatalf("unlimited limiter should allow connection %d", i)
		}
	}
	if limiter.Tokens() != 0 || limiter.Burst() != 0 {
		t.Fatal("nil limiter should report zero tokens and burst")
	}
}

// TestTokens verifies that Tokens() tracks consumption.
func TestTokens(t *testing.T) {
	limiter := New(10, 10)

	initial := limiter.Tokens()
	if initial < 9 || initial > 10 {
		t.Fatalf("initial tokens %f outside expected range 9-10", initial)
	}

	for i := 0; i < 5; i++ {
		limiter.Allow()
	}

	remaining := limiter.Tokens()
	if remaining < 4 || remaining > 6 {
		t.Fatalf("remaining tokens %f outside expected range 4-6", remaining)
	}
}

// BenchmarkAllow measures the admission fast path.
func BenchmarkAllow(b *testing.B) {
	limiter := New(1_000_000, 1_000_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}

// Per-sender-IP rate limiting for the settings control plane. Adapted from
// ratelimit.go's token-bucket RateLimiter and IPConnectionRateLimiter:
// same refill-on-demand token bucket, generalised from "connections per
// second per IP" to "settings commands per second per IP" so a misbehaving
// or malicious settings-port client (rapid subscribe/unsubscribe, ping
// floods) cannot starve the single settings listener goroutine.
package dispatch

import (
	"sync"
	"time"
)

// tokenBucket allows bursts up to its capacity, refilling at rate tokens
// per second.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(ratePerSecond int) *tokenBucket {
	if ratePerSecond <= 0 {
		return &tokenBucket{tokens: 1, maxTokens: 1, refillRate: 0, lastRefill: time.Now()}
	}
	return &tokenBucket{
		tokens:     float64(ratePerSecond),
		maxTokens:  float64(ratePerSecond),
		refillRate: float64(ratePerSecond),
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate == 0 {
		return true
	}
	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

func (b *tokenBucket) idleSince(now time.Time, d time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastRefill) > d
}

// settingsRateLimiter tracks one token bucket per sender IP for the
// settings control plane.
type settingsRateLimiter struct {
	rate int
	mu   sync.Mutex
	byIP map[string]*tokenBucket
}

func newSettingsRateLimiter(ratePerSecond int) *settingsRateLimiter {
	return &settingsRateLimiter{rate: ratePerSecond, byIP: make(map[string]*tokenBucket)}
}

func (r *settingsRateLimiter) allow(ip string) bool {
	if r.rate <= 0 {
		return true
	}
	r.mu.Lock()
	b, ok := r.byIP[ip]
	if !ok {
		b = newTokenBucket(r.rate)
		r.byIP[ip] = b
	}
	r.mu.Unlock()
	return b.allow()
}

// cleanup drops buckets idle for longer than d, preventing unbounded growth
// as transient subscribers come and go.
func (r *settingsRateLimiter) cleanup(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for ip, b := range r.byIP {
		if b.idleSince(now, d) {
			delete(r.byIP, ip)
		}
	}
}

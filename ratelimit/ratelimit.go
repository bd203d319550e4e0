// Package ratelimit implements token-bucket admission control for inbound
// webhook sources and outbound calls. Buckets live in process memory and
// are lazily created per (identifier, limit, window) triple; an hourly
// sweep drops idle buckets to bound memory. The limiter is local: behind a
// load balancer each instance counts independently.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	sweepInterval = time.Hour
	idleExpiry    = time.Hour
)

// Result is the admission decision for one call.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	limit      int
	window     time.Duration
}

// Limiter owns every bucket. All mutation happens under one mutex so two
// concurrent callers cannot both observe a token that only one may spend.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stop    chan struct{}
}

func NewLimiter() *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Check refills the bucket proportionally to elapsed time, capped at limit,
// and consumes one token when available. A fresh identifier starts with a
// full bucket. On denial RetryAfter is proportional to the fractional
// token deficit.
func (l *Limiter) Check(identifier string, limit int, window time.Duration) Result {
	if limit <= 0 || window <= 0 {
		return Result{Allowed: true, Remaining: 0, ResetAt: l.now()}
	}

	key := fmt.Sprintf("%s|%d|%d", identifier, limit, window.Milliseconds())

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(limit), lastRefill: now, limit: limit, window: window}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastRefill)
		if elapsed > 0 {
			b.tokens += float64(elapsed) / float64(window) * float64(limit)
			if b.tokens > float64(limit) {
				b.tokens = float64(limit)
			}
			b.lastRefill = now
		}
	}

	perToken := window / time.Duration(limit)

	if b.tokens >= 1 {
		b.tokens--
		deficit := float64(limit) - b.tokens
		return Result{
			Allowed:   true,
			Remaining: int(b.tokens),
			ResetAt:   now.Add(time.Duration(deficit * float64(perToken))),
		}
	}

	retryAfter := time.Duration((1 - b.tokens) * float64(perToken))
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return Result{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    now.Add(time.Duration((float64(limit) - b.tokens) * float64(perToken))),
		RetryAfter: retryAfter,
	}
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) > idleExpiry {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) Stop() {
	close(l.stop)
}

package ratelimit

import (
	"testing"
	"time"
)

// frozenLimiter returns a limiter whose clock only moves when the test
// advances it, so refill math is exact.
func frozenLimiter(start time.Time) (*Limiter, *time.Time) {
	now := start
	l := NewLimiter()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheckExhaustsBucket(t *testing.T) {
	l, _ := frozenLimiter(time.Unix(1_700_000_000, 0))
	defer l.Stop()

	const limit = 5
	window := time.Minute

	for i := 0; i < limit; i++ {
		res := l.Check("webhook:kiwify", limit, window)
		if !res.Allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
		if res.Remaining != limit-i-1 {
			t.Errorf("call %d: expected %d remaining, got %d", i+1, limit-i-1, res.Remaining)
		}
	}

	res := l.Check("webhook:kiwify", limit, window)
	if res.Allowed {
		t.Fatal("call limit+1 should be denied")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("denial must carry a positive retry-after, got %s", res.RetryAfter)
	}
}

func TestCheckRefillsOverTime(t *testing.T) {
	l, now := frozenLimiter(time.Unix(1_700_000_000, 0))
	defer l.Stop()

	window := time.Minute
	for i := 0; i < 2; i++ {
		l.Check("ip:1.2.3.4", 2, window)
	}
	if res := l.Check("ip:1.2.3.4", 2, window); res.Allowed {
		t.Fatal("bucket should be empty")
	}

	// Half a window restores one token out of two.
	*now = now.Add(30 * time.Second)
	if res := l.Check("ip:1.2.3.4", 2, window); !res.Allowed {
		t.Fatal("expected one token after half a window")
	}
	if res := l.Check("ip:1.2.3.4", 2, window); res.Allowed {
		t.Fatal("second token should not exist yet")
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l, _ := frozenLimiter(time.Unix(1_700_000_000, 0))
	defer l.Stop()

	l.Check("a", 1, time.Minute)
	if res := l.Check("a", 1, time.Minute); res.Allowed {
		t.Fatal("a should be exhausted")
	}
	if res := l.Check("b", 1, time.Minute); !res.Allowed {
		t.Fatal("b must not share a's bucket")
	}
	// Same identifier under a different policy is a separate bucket too.
	if res := l.Check("a", 3, time.Minute); !res.Allowed {
		t.Fatal("different (limit, window) must use a separate bucket")
	}
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	l, now := frozenLimiter(time.Unix(1_700_000_000, 0))
	defer l.Stop()

	l.Check("stale", 5, time.Minute)
	l.Check("fresh", 5, time.Minute)

	*now = now.Add(2 * time.Hour)
	l.Check("fresh", 5, time.Minute)
	l.sweep()

	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("expected 1 bucket after sweep, got %d", n)
	}
}

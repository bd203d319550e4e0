package dedup

import (
	"context"
	"testing"
	"time"
)

func frozenStore(ttl time.Duration) (*MemoryStore, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore(ttl)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCheckAndMark(t *testing.T) {
	ctx := context.Background()

	t.Run("first sight then duplicate", func(t *testing.T) {
		s, _ := frozenStore(time.Hour)
		defer s.Close()

		dup, err := s.CheckAndMark(ctx, "txn-1")
		if err != nil || dup {
			t.Fatalf("first sight: dup=%v err=%v", dup, err)
		}
		dup, err = s.CheckAndMark(ctx, "txn-1")
		if err != nil || !dup {
			t.Fatalf("second sight: dup=%v err=%v", dup, err)
		}
	})

	t.Run("window elapses", func(t *testing.T) {
		s, now := frozenStore(time.Hour)
		defer s.Close()

		s.CheckAndMark(ctx, "txn-2")
		*now = now.Add(time.Hour + time.Second)
		dup, _ := s.CheckAndMark(ctx, "txn-2")
		if dup {
			t.Fatal("identity should be forgotten after the retention window")
		}
	})

	t.Run("success is final within the window", func(t *testing.T) {
		s, _ := frozenStore(time.Hour)
		defer s.Close()

		s.CheckAndMark(ctx, "txn-3")
		s.MarkOutcome(ctx, "txn-3", OutcomeSuccess)
		dup, _ := s.CheckAndMark(ctx, "txn-3")
		if !dup {
			t.Fatal("a delivered identity must stay duplicate")
		}
	})

	t.Run("failure unblocks a retry", func(t *testing.T) {
		s, _ := frozenStore(time.Hour)
		defer s.Close()

		s.CheckAndMark(ctx, "txn-4")
		s.MarkOutcome(ctx, "txn-4", OutcomeFailure)
		dup, _ := s.CheckAndMark(ctx, "txn-4")
		if dup {
			t.Fatal("a failed identity must allow a retry")
		}
		// The retry holds the identity again.
		dup, _ = s.CheckAndMark(ctx, "txn-4")
		if !dup {
			t.Fatal("retry in flight should read as duplicate")
		}
	})
}

func TestSweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	s, now := frozenStore(time.Minute)
	defer s.Close()

	s.CheckAndMark(ctx, "old")
	*now = now.Add(2 * time.Minute)
	s.CheckAndMark(ctx, "new")
	s.sweep()

	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	if n != 1 {
		t.Errorf("expected 1 entry after sweep, got %d", n)
	}
}

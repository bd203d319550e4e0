// Package dedup is the time-bounded idempotency ledger guarding
// at-most-one successful delivery per event identity. Identities move
// through unseen → pending → {success, failure}; a failure unblocks a
// retry, a success is final until the retention window elapses.
package dedup

import (
	"context"
	"sync"
	"time"
)

type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Store is the check-and-mark contract. Implementations must serialize the
// read-check-write sequence per identity so two concurrent callers cannot
// both observe "unseen".
type Store interface {
	// CheckAndMark returns true when the identity was already seen (and not
	// in a retryable failure state) within the retention window. A false
	// return transitions the identity to pending.
	CheckAndMark(ctx context.Context, identity string) (bool, error)

	// MarkOutcome records the final per-identity outcome of an attempt.
	MarkOutcome(ctx context.Context, identity string, outcome Outcome) error

	Close() error
}

type entry struct {
	firstSeen time.Time
	outcome   Outcome
}

// MemoryStore is the in-process implementation. Entries expire lazily on
// read and via a periodic sweep. It does not survive restarts and does not
// coordinate across instances; use the redis store behind a load balancer.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) CheckAndMark(_ context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[identity]
	if ok && now.Sub(e.firstSeen) >= s.ttl {
		delete(s.entries, identity)
		ok = false
	}

	if ok {
		if e.outcome == OutcomeFailure {
			// Failed attempts may be retried; re-enter pending.
			e.outcome = OutcomePending
			e.firstSeen = now
			return false, nil
		}
		return true, nil
	}

	s.entries[identity] = &entry{firstSeen: now, outcome: OutcomePending}
	return false, nil
}

func (s *MemoryStore) MarkOutcome(_ context.Context, identity string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[identity]
	if !ok || s.now().Sub(e.firstSeen) >= s.ttl {
		return nil
	}
	e.outcome = outcome
	return nil
}

func (s *MemoryStore) sweepLoop() {
	interval := s.ttl
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for identity, e := range s.entries {
		if now.Sub(e.firstSeen) >= s.ttl {
			delete(s.entries, identity)
		}
	}
}

func (s *MemoryStore) Close() error {
	close(s.stop)
	return nil
}

var _ Store = (*MemoryStore)(nil)

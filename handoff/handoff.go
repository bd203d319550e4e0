// Package handoff is the short-lived store that lets a value produced in
// one execution context (a browser page load) be read by a different, later
// one (a webhook handler) without a synchronous round trip. Unlike the
// dedup ledger, reads do not consume the entry: it is a repeatable-read
// cache, not a single-use mailbox. Expiry is checked lazily at read time;
// removal is left to the periodic sweep so InfoFor can still report the
// expired state.
package handoff

import (
	"sync"
	"time"
)

// Info describes the state of one key without returning its payload.
type Info struct {
	HasData bool  `json:"hasData"`
	AgeMs   int64 `json:"ageMs"`
	Expired bool  `json:"isExpired"`
}

type record struct {
	payload   any
	createdAt time.Time
	ttl       time.Duration
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]*record
	now     func() time.Time
	stop    chan struct{}
}

func NewCache() *Cache {
	c := &Cache{
		entries: make(map[string]*record),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Put stores payload under key for ttl. A second Put overwrites.
func (c *Cache) Put(key string, payload any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &record{payload: payload, createdAt: c.now(), ttl: ttl}
}

// Get returns the payload while it is fresh. Reading does not invalidate;
// an expired entry reads as absent but stays until the sweep removes it,
// so InfoFor keeps answering truthfully after a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[key]
	if !ok || c.now().Sub(r.createdAt) >= r.ttl {
		return nil, false
	}
	return r.payload, true
}

// InfoFor reports presence, age and expiry for key without clearing it.
func (c *Cache) InfoFor(key string) Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[key]
	if !ok {
		return Info{}
	}
	age := c.now().Sub(r.createdAt)
	return Info{
		HasData: true,
		AgeMs:   age.Milliseconds(),
		Expired: age >= r.ttl,
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, r := range c.entries {
		if now.Sub(r.createdAt) >= r.ttl {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) Stop() {
	close(c.stop)
}

// Package geo resolves visitor IPs to partial location records through a
// cascading chain of providers. Earlier providers win every field they
// populate; later ones only fill gaps. The chain never returns an error:
// when every provider fails it degrades to a static default.
package geo

import (
	"context"
	"log"
	"sync"
	"time"

	"convtrack/api/models"
)

// Resolver runs the fallback chain and caches successful resolutions per
// IP for a short TTL so one visitor's session does not trigger repeated
// outbound lookups. The steps are deliberately sequential: each provider is
// consulted only when the previous ones left a critical field empty.
type Resolver struct {
	providers []Provider
	cacheTTL  time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	record   models.GeoRecord
	cachedAt time.Time
}

func NewResolver(cacheTTL time.Duration, providers ...Provider) *Resolver {
	return &Resolver{
		providers: providers,
		cacheTTL:  cacheTTL,
		cache:     make(map[string]cacheEntry),
		now:       time.Now,
	}
}

// DefaultRecord is what the chain degrades to when every provider is
// exhausted: fixed country and timezone, everything else empty.
func DefaultRecord() models.GeoRecord {
	return models.GeoRecord{
		Country:     "Brazil",
		CountryCode: "BR",
		Timezone:    "America/Sao_Paulo",
	}
}

// Resolve walks the provider chain for ip. Provider errors and non-success
// responses are absorbed per step and treated as "fields still missing".
func (r *Resolver) Resolve(ctx context.Context, ip string) models.GeoRecord {
	if ip == "" {
		return DefaultRecord()
	}

	if rec, ok := r.cached(ip); ok {
		return rec
	}

	var acc models.GeoRecord
	anyHit := false

	for _, p := range r.providers {
		if !missingCritical(acc) && anyHit {
			break
		}
		rec, err := p.Lookup(ctx, ip)
		if err != nil {
			log.Printf("geo: provider %s failed for %s: %v", p.Name(), ip, err)
			continue
		}
		anyHit = true
		acc = MergeFillMissing(acc, rec)
	}

	if !anyHit {
		log.Printf("geo: all providers exhausted for %s, using default location", ip)
		return DefaultRecord()
	}

	// Providers answered but gaps may remain; fill them from the default.
	acc = MergeFillMissing(acc, DefaultRecord())
	r.store(ip, acc)
	return acc
}

// missingCritical reports whether the two most frequently absent fields
// still need a fallback lookup.
func missingCritical(rec models.GeoRecord) bool {
	return rec.Region == "" || rec.PostalCode == ""
}

func (r *Resolver) cached(ip string) (models.GeoRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache[ip]
	if !ok {
		return models.GeoRecord{}, false
	}
	if r.now().Sub(e.cachedAt) >= r.cacheTTL {
		delete(r.cache, ip)
		return models.GeoRecord{}, false
	}
	return e.record, true
}

func (r *Resolver) store(ip string, rec models.GeoRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[ip] = cacheEntry{record: rec, cachedAt: r.now()}
}

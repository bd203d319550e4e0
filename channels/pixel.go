package channels

import (
	"context"
	"time"

	"convtrack/api/handoff"
	"convtrack/api/models"
)

// PixelRelay stages the event in the hand-off cache under its event id so
// the browser pixel can replay the same conversion client-side. Firing both
// copies with one event id lets the downstream system deduplicate them.
type PixelRelay struct {
	cache *handoff.Cache
	ttl   time.Duration
}

func NewPixelRelay(cache *handoff.Cache, ttl time.Duration) *PixelRelay {
	return &PixelRelay{cache: cache, ttl: ttl}
}

func (p *PixelRelay) Name() string { return "pixel" }

func (p *PixelRelay) Send(_ context.Context, event *models.CanonicalEvent) error {
	p.cache.Put("pixel:"+event.EventID, event, p.ttl)
	return nil
}

var _ Channel = (*PixelRelay)(nil)

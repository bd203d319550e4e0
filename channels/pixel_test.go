package channels

import (
	"context"
	"testing"
	"time"

	"convtrack/api/handoff"
	"convtrack/api/models"
)

func TestPixelRelayStagesEvent(t *testing.T) {
	cache := handoff.NewCache()
	defer cache.Stop()

	relay := NewPixelRelay(cache, time.Minute)
	event := &models.CanonicalEvent{
		EventName: "Purchase",
		EventID:   "evt-1",
		UserData:  map[string]string{"em": "digest"},
	}

	if err := relay.Send(context.Background(), event); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	staged, ok := cache.Get("pixel:evt-1")
	if !ok {
		t.Fatal("event not staged for the browser pixel")
	}
	if staged.(*models.CanonicalEvent).EventID != "evt-1" {
		t.Errorf("staged event id mismatch: %+v", staged)
	}
}

package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"convtrack/api/channels"
	"convtrack/api/dedup"
	"convtrack/api/models"
	"convtrack/api/normalize"
	"convtrack/api/ratelimit"
)

type fakeChannel struct {
	name  string
	err   error
	panic bool
	sent  atomic.Int64
	last  *models.CanonicalEvent
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, event *models.CanonicalEvent) error {
	f.sent.Add(1)
	f.last = event
	if f.panic {
		panic("channel blew up")
	}
	return f.err
}

func newTestDispatcher(chs ...channels.Channel) (*Dispatcher, func()) {
	ded := dedup.NewMemoryStore(time.Hour)
	limiter := ratelimit.NewLimiter()
	d := NewDispatcher(chs, ded, limiter)
	return d, func() {
		ded.Close()
		limiter.Stop()
	}
}

func validUserData() map[string]string {
	return map[string]string{"em": "user@example.com"}
}

func TestDispatchPartialChannelFailure(t *testing.T) {
	a := &fakeChannel{name: "capi"}
	b := &fakeChannel{name: "kafka", err: errors.New("broker down")}

	d, cleanup := newTestDispatcher(a, b)
	defer cleanup()

	res, err := d.Dispatch(context.Background(), Request{
		EventName: "Purchase",
		Source:    "web",
		UserData:  validUserData(),
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if !res.Success {
		t.Error("one succeeding channel must make the aggregate succeed")
	}
	if !res.Channels["capi"] || res.Channels["kafka"] {
		t.Errorf("unexpected channel results: %v", res.Channels)
	}
}

func TestDispatchChannelPanicIsIsolated(t *testing.T) {
	a := &fakeChannel{name: "capi", panic: true}
	b := &fakeChannel{name: "pixel"}

	d, cleanup := newTestDispatcher(a, b)
	defer cleanup()

	res, err := d.Dispatch(context.Background(), Request{
		EventName: "Lead",
		Source:    "web",
		UserData:  validUserData(),
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if res.Channels["capi"] {
		t.Error("panicking channel must report failure")
	}
	if !res.Channels["pixel"] {
		t.Error("sibling channel must still be attempted")
	}
}

func TestDispatchRejectsEventWithoutIdentifiers(t *testing.T) {
	a := &fakeChannel{name: "capi"}
	d, cleanup := newTestDispatcher(a)
	defer cleanup()

	_, err := d.Dispatch(context.Background(), Request{
		EventName: "PageView",
		Source:    "web",
		UserData:  map[string]string{"ct": "sao paulo", "em": "not-an-email"},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if a.sent.Load() != 0 {
		t.Error("no channel may be attempted for a rejected event")
	}
}

func TestDispatchSuppressesDuplicates(t *testing.T) {
	a := &fakeChannel{name: "capi"}
	d, cleanup := newTestDispatcher(a)
	defer cleanup()

	req := Request{
		EventName:     "Purchase",
		Source:        "webhook:kiwify",
		DedupIdentity: "txn-42",
		UserData:      validUserData(),
	}

	if _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	_, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
	if a.sent.Load() != 1 {
		t.Errorf("duplicate must not re-invoke channels, got %d sends", a.sent.Load())
	}
}

func TestDispatchDeduplicatesByEventID(t *testing.T) {
	a := &fakeChannel{name: "capi"}
	d, cleanup := newTestDispatcher(a)
	defer cleanup()

	// Without an explicit dedup identity the event id is the identity.
	req := Request{
		EventName: "Purchase",
		Source:    "web",
		EventID:   "evt-99",
		UserData:  validUserData(),
	}

	if _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), req); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent for the repeated event id, got %v", err)
	}
	if a.sent.Load() != 1 {
		t.Errorf("repeat must not re-invoke channels, got %d sends", a.sent.Load())
	}
}

func TestDispatchRetriesAfterTotalFailure(t *testing.T) {
	a := &fakeChannel{name: "capi", err: errors.New("down")}
	d, cleanup := newTestDispatcher(a)
	defer cleanup()

	req := Request{
		EventName:     "Purchase",
		Source:        "webhook:kiwify",
		DedupIdentity: "txn-43",
		UserData:      validUserData(),
	}

	res, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if res.Success {
		t.Fatal("all channels failed, aggregate must fail")
	}

	// A failed identity is retryable.
	if _, err := d.Dispatch(context.Background(), req); errors.Is(err, ErrDuplicateEvent) {
		t.Fatal("failed delivery must not block a retry")
	}
	if a.sent.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", a.sent.Load())
	}
}

func TestDispatchRateLimited(t *testing.T) {
	a := &fakeChannel{name: "capi"}
	d, cleanup := newTestDispatcher(a)
	defer cleanup()
	d.RateLimit = 1
	d.RateWindow = time.Minute

	first := Request{EventName: "Lead", Source: "web", UserData: validUserData()}
	if _, err := d.Dispatch(context.Background(), first); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}

	_, err := d.Dispatch(context.Background(), Request{
		EventName: "Lead", Source: "web", UserData: validUserData(),
	})
	var rerr *RateLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rerr.RetryAfter <= 0 {
		t.Error("rate limit denial must carry a retry-after hint")
	}
	if a.sent.Load() != 1 {
		t.Errorf("rate-limited dispatch must not reach channels, got %d sends", a.sent.Load())
	}
}

func TestDispatchHashesRawPII(t *testing.T) {
	a := &fakeChannel{name: "capi"}
	d, cleanup := newTestDispatcher(a)
	defer cleanup()

	res, err := d.Dispatch(context.Background(), Request{
		EventName: "Purchase",
		Source:    "web",
		UserData: map[string]string{
			"em":   "User@Example.com",
			"ph":   "(11) 99999-9999",
			"name": "João da Silva",
		},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if res.EventID == "" {
		t.Error("dispatcher must generate an event id when none is supplied")
	}

	sent := a.last
	if sent == nil {
		t.Fatal("channel received no event")
	}
	if !normalize.IsValidDigest(sent.UserData["em"]) {
		t.Errorf("em is not a sha256 digest: %q", sent.UserData["em"])
	}
	if sent.UserData["em"] != normalize.Hash("user@example.com") {
		t.Error("em must be the digest of the normalized address")
	}
	if sent.UserData["ph"] != normalize.Hash("11999999999") {
		t.Error("ph must be the digest of the normalized phone")
	}
	if sent.UserData["fn"] != normalize.Hash("joão") || sent.UserData["ln"] != normalize.Hash("da silva") {
		t.Error("combined name must be split before hashing")
	}
}

func TestDispatchDefaultsCountry(t *testing.T) {
	t.Run("omitted", func(t *testing.T) {
		a := &fakeChannel{name: "capi"}
		d, cleanup := newTestDispatcher(a)
		defer cleanup()

		if _, err := d.Dispatch(context.Background(), Request{
			EventName: "Purchase",
			Source:    "web",
			UserData:  validUserData(),
		}); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if a.last.UserData["country"] != normalize.Hash("br") {
			t.Errorf("omitted country must default to the br digest, got %q", a.last.UserData["country"])
		}
	})

	t.Run("supplied", func(t *testing.T) {
		a := &fakeChannel{name: "capi"}
		d, cleanup := newTestDispatcher(a)
		defer cleanup()

		if _, err := d.Dispatch(context.Background(), Request{
			EventName: "Purchase",
			Source:    "web",
			UserData:  map[string]string{"em": "user@example.com", "country": "US"},
		}); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if a.last.UserData["country"] != normalize.Hash("us") {
			t.Errorf("supplied country must be normalized and hashed, got %q", a.last.UserData["country"])
		}
	})
}

func TestDispatchAcceptsPreHashedIdentifier(t *testing.T) {
	a := &fakeChannel{name: "capi"}
	d, cleanup := newTestDispatcher(a)
	defer cleanup()

	digest := normalize.Hash("user@example.com")
	res, err := d.Dispatch(context.Background(), Request{
		EventName: "Purchase",
		Source:    "web",
		EventID:   "evt-supplied",
		UserData:  map[string]string{"em": digest},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if res.EventID != "evt-supplied" {
		t.Errorf("caller-supplied event id must be kept, got %q", res.EventID)
	}
	if a.last.UserData["em"] != digest {
		t.Error("pre-hashed field must not be re-hashed")
	}
}

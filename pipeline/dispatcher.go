// Package pipeline orchestrates the attribution event delivery flow:
// normalize and hash the PII, enforce the identifier invariant, run the
// dedup ledger and rate admission, then fan the event out to every
// configured delivery channel concurrently.
package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"convtrack/api/channels"
	"convtrack/api/dedup"
	"convtrack/api/geo"
	"convtrack/api/models"
	"convtrack/api/normalize"
	"convtrack/api/ratelimit"
	"convtrack/api/store"
)

// identifying fields: an event carrying none of these (after normalization)
// is rejected before dispatch.
var identifierKeys = []string{"em", "ph", "fn", "external_id"}

// Request is one inbound conversion signal. UserData carries raw values
// under the canonical short keys (em, ph, fn, ln, ct, st, zp, country,
// external_id) or a combined "name"; the HTTP layer is responsible for
// authentication and body parsing before this point.
type Request struct {
	EventName     string
	EventID       string // generated when empty
	Source        string // dedup/rate-limit scope, e.g. "web", "webhook:kiwify"
	DedupIdentity string // e.g. transaction id; defaults to the event id
	UserData      map[string]string
	CustomData    map[string]any
	ClientIP      string
}

// Dispatcher fans canonical events out to N delivery channels. Channel
// failures are isolated: the aggregate succeeds when any channel does.
type Dispatcher struct {
	Channels       []channels.Channel
	Dedup          dedup.Store
	Limiter        *ratelimit.Limiter
	Geo            *geo.Resolver        // optional
	Customers      *store.CustomerStore // optional
	Outcomes       *store.OutcomeStore  // optional
	RateLimit      int
	RateWindow     time.Duration
	ChannelTimeout time.Duration

	now func() time.Time
}

func NewDispatcher(chs []channels.Channel, ded dedup.Store, limiter *ratelimit.Limiter) *Dispatcher {
	return &Dispatcher{
		Channels:       chs,
		Dedup:          ded,
		Limiter:        limiter,
		RateLimit:      120,
		RateWindow:     time.Minute,
		ChannelTimeout: 10 * time.Second,
		now:            time.Now,
	}
}

// Dispatch runs the full pipeline for one signal. Error returns are limited
// to the hard stops: *ValidationError, *RateLimitError and
// ErrDuplicateEvent; provider and channel failures only show up in the
// per-channel results.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*models.DispatchResult, error) {
	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	raw := make(map[string]string, len(req.UserData))
	for k, v := range req.UserData {
		raw[k] = v
	}

	d.backfillFromCustomer(ctx, raw)

	userData := d.buildUserData(raw)
	if !hasIdentifier(userData) {
		return nil, &ValidationError{
			Field:   "userData",
			Message: "event carries no identifying field (em, ph, fn or external_id)",
		}
	}

	customData := d.enrichLocation(ctx, req)

	identity := req.DedupIdentity
	if identity == "" {
		identity = eventID
	}
	if req.Source != "" {
		identity = req.Source + ":" + identity
	}

	isDup, err := d.Dedup.CheckAndMark(ctx, identity)
	if err != nil {
		// A broken dedup backend must not drop the conversion signal.
		log.Printf("Dedup check failed for %s, proceeding without dedup: %v", identity, err)
	} else if isDup {
		log.Printf("Duplicate event suppressed: identity=%s eventId=%s", identity, eventID)
		return nil, ErrDuplicateEvent
	}

	if d.Limiter != nil {
		res := d.Limiter.Check("dispatch:"+req.Source, d.RateLimit, d.RateWindow)
		if !res.Allowed {
			// Release the identity so the backed-off caller can retry.
			d.markOutcome(identity, dedup.OutcomeFailure)
			return nil, &RateLimitError{Identifier: req.Source, RetryAfter: res.RetryAfter}
		}
	}

	event := &models.CanonicalEvent{
		EventName:  req.EventName,
		EventID:    eventID,
		EventTime:  d.now().Unix(),
		UserData:   userData,
		CustomData: customData,
	}

	results, durations := d.fanOut(ctx, event)

	success := false
	for _, ok := range results {
		if ok {
			success = true
			break
		}
	}

	if success {
		d.markOutcome(identity, dedup.OutcomeSuccess)
	} else {
		d.markOutcome(identity, dedup.OutcomeFailure)
	}

	log.Printf("Dispatched event %s (%s): success=%v channels=%v", eventID, req.EventName, success, results)
	d.recordOutcomes(event, req.Source, results, durations)

	return &models.DispatchResult{
		Success:  success,
		EventID:  eventID,
		Channels: results,
	}, nil
}

// fanOut attempts every channel concurrently and waits for all of them to
// settle. A panicking or failing channel never prevents its siblings from
// being attempted.
func (d *Dispatcher) fanOut(ctx context.Context, event *models.CanonicalEvent) (map[string]bool, map[string]int64) {
	results := make(map[string]bool, len(d.Channels))
	durations := make(map[string]int64, len(d.Channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ch := range d.Channels {
		wg.Add(1)
		go func(ch channels.Channel) {
			defer wg.Done()
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Channel %s panicked for event %s: %v", ch.Name(), event.EventID, r)
					mu.Lock()
					results[ch.Name()] = false
					durations[ch.Name()] = time.Since(start).Milliseconds()
					mu.Unlock()
				}
			}()

			sendCtx, cancel := context.WithTimeout(ctx, d.ChannelTimeout)
			defer cancel()

			err := ch.Send(sendCtx, event)
			if err != nil {
				log.Printf("Channel %s failed for event %s: %v", ch.Name(), event.EventID,
					&ProviderError{Provider: ch.Name(), Err: err})
			}

			mu.Lock()
			results[ch.Name()] = err == nil
			durations[ch.Name()] = time.Since(start).Milliseconds()
			mu.Unlock()
		}(ch)
	}

	wg.Wait()
	return results, durations
}

// buildUserData normalizes and hashes every raw field. Values that already
// match the digest shape pass through; a combined "name" is split into
// fn/ln when those are absent.
func (d *Dispatcher) buildUserData(raw map[string]string) map[string]string {
	normalized := make(map[string]string)

	if name, ok := raw["name"]; ok && raw["fn"] == "" && raw["ln"] == "" {
		first, last := normalize.Name(name)
		raw["fn"], raw["ln"] = first, last
	}

	for key, value := range raw {
		if key == "name" {
			continue
		}
		if normalize.IsValidDigest(value) {
			normalized[key] = value
			continue
		}
		switch key {
		case "em":
			normalized[key] = normalize.Email(value)
		case "ph":
			normalized[key] = normalize.Phone(value, false)
		case "fn", "ln":
			first, rest := normalize.Name(value)
			v := first
			if rest != "" {
				v = first + " " + rest
			}
			normalized[key] = v
		case "ct":
			normalized[key] = normalize.City(value)
		case "st":
			normalized[key] = normalize.State(value)
		case "zp":
			normalized[key] = normalize.Zip(value)
		case "country":
			normalized[key] = normalize.Country(value)
		default:
			normalized[key] = value
		}
	}

	// Country defaults to "br" when the caller omits it.
	if normalized["country"] == "" {
		normalized["country"] = normalize.Country("")
	}

	hashed := normalize.HashFields(normalized)
	for k, v := range hashed {
		if v == "" {
			delete(hashed, k)
		}
	}
	return hashed
}

// backfillFromCustomer fills missing raw fields from the known-customer
// store before normalization. Lookup failure means no supplemental data.
func (d *Dispatcher) backfillFromCustomer(ctx context.Context, raw map[string]string) {
	if d.Customers == nil {
		return
	}
	needsBackfill := raw["fn"] == "" || raw["ct"] == "" || raw["st"] == "" || raw["zp"] == ""
	if !needsBackfill || (raw["em"] == "" && raw["ph"] == "") {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	customer, err := d.Customers.FindByIdentity(lookupCtx, raw["em"], raw["ph"])
	if err != nil {
		log.Printf("Customer lookup failed, continuing without backfill: %v", err)
		return
	}
	if customer == nil {
		return
	}

	fill := func(key, value string) {
		if raw[key] == "" && value != "" {
			raw[key] = value
		}
	}
	fill("em", customer.Email)
	fill("ph", customer.Phone)
	fill("fn", customer.FirstName)
	fill("ln", customer.LastName)
	fill("ct", customer.City)
	fill("st", customer.State)
	fill("zp", customer.ZipCode)
}

// enrichLocation attaches the resolved location to customData when the
// caller did not already provide one. The geo chain never fails; at worst
// it contributes the static default.
func (d *Dispatcher) enrichLocation(ctx context.Context, req Request) map[string]any {
	customData := make(map[string]any, len(req.CustomData)+1)
	for k, v := range req.CustomData {
		customData[k] = v
	}

	if d.Geo != nil && req.ClientIP != "" {
		if _, ok := customData["location"]; !ok {
			customData["location"] = d.Geo.Resolve(ctx, req.ClientIP)
		}
	}

	if len(customData) == 0 {
		return nil
	}
	return customData
}

func (d *Dispatcher) markOutcome(identity string, outcome dedup.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.Dedup.MarkOutcome(ctx, identity, outcome); err != nil {
		log.Printf("Failed to mark outcome %s for %s: %v", outcome, identity, err)
	}
}

func (d *Dispatcher) recordOutcomes(event *models.CanonicalEvent, source string, results map[string]bool, durations map[string]int64) {
	if d.Outcomes == nil {
		return
	}

	now := d.now()
	outcomes := make([]models.DeliveryOutcome, 0, len(results))
	for channel, ok := range results {
		outcomes = append(outcomes, models.DeliveryOutcome{
			EventID:    event.EventID,
			EventName:  event.EventName,
			Source:     source,
			Channel:    channel,
			Success:    ok,
			DurationMs: durations[channel],
			Timestamp:  now,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.Outcomes.InsertOutcomes(ctx, outcomes); err != nil {
		log.Printf("Error inserting delivery outcomes for event %s: %v", event.EventID, err)
	}
}

func hasIdentifier(userData map[string]string) bool {
	for _, key := range identifierKeys {
		if userData[key] != "" {
			return true
		}
	}
	return false
}

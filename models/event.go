// api/models/event.go
package models

import (
	"encoding/json"
	"time"
)

// CanonicalEvent is the unit that flows through the delivery pipeline.
// It is constructed once per inbound signal and never mutated afterwards.
// UserData carries normalized-then-hashed PII only; a missing key means
// the field was absent or failed normalization.
type CanonicalEvent struct {
	EventName  string            `json:"eventName"`
	EventID    string            `json:"eventId"`
	EventTime  int64             `json:"eventTime"` // unix seconds
	UserData   map[string]string `json:"userData"`
	CustomData map[string]any    `json:"customData,omitempty"`
}

// DispatchResult is the aggregate outcome of fanning one event out to
// every configured delivery channel.
type DispatchResult struct {
	Success  bool            `json:"success"`
	EventID  string          `json:"eventId"`
	Channels map[string]bool `json:"channels"`
}

// GeoRecord holds partial location attributes for one IP. Any field may be
// empty; records from different providers are merged field-by-field without
// ever overwriting a field that is already filled.
type GeoRecord struct {
	City        string   `json:"city,omitempty"`
	Region      string   `json:"region,omitempty"`
	RegionCode  string   `json:"regionCode,omitempty"`
	Country     string   `json:"country,omitempty"`
	CountryCode string   `json:"countryCode,omitempty"`
	PostalCode  string   `json:"postalCode,omitempty"`
	Timezone    string   `json:"timezone,omitempty"`
	ISP         string   `json:"isp,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}

// DeliveryOutcome is one channel attempt for one event, persisted to the
// outcome ledger for observability queries.
type DeliveryOutcome struct {
	EventID    string    `json:"eventId"`
	EventName  string    `json:"eventName"`
	Source     string    `json:"source"`
	Channel    string    `json:"channel"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// ClientEventRequest is the body accepted on POST /api/events.
// UserData carries raw (unhashed) fields under the canonical short keys
// (em, ph, fn, ln, ct, st, zp, country, external_id) or a combined "name";
// callers may also submit already-hashed values, which pass through when
// they match the digest shape.
type ClientEventRequest struct {
	EventName  string            `json:"eventName" binding:"required"`
	EventID    string            `json:"eventId"`
	UserData   map[string]string `json:"userData"`
	CustomData map[string]any    `json:"customData"`
}

// WebhookRequest is the parsed body of a payment-processor webhook. The
// handler is invoked only after upstream signature verification; field
// extraction from processor-specific shapes happens before this point.
type WebhookRequest struct {
	TransactionID string          `json:"transactionId" binding:"required"`
	EventName     string          `json:"eventName"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Name          string          `json:"name"`
	City          string          `json:"city"`
	State         string          `json:"state"`
	ZipCode       string          `json:"zipCode"`
	Country       string          `json:"country"`
	Value         float64         `json:"value"`
	Currency      string          `json:"currency"`
	ClientIP      string          `json:"clientIp"`
	Extra         json.RawMessage `json:"extra,omitempty"`
}

// HandoffPutRequest stages browser-prepared data for a later server-side
// consumer (e.g. a webhook handler that has no access to browser state).
type HandoffPutRequest struct {
	Key        string         `json:"key"`
	Payload    map[string]any `json:"payload" binding:"required"`
	TTLSeconds int            `json:"ttlSeconds"`
}

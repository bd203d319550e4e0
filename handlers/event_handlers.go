// api/handlers/event_handlers.go
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"convtrack/api/geo"
	"convtrack/api/handoff"
	"convtrack/api/models"
	"convtrack/api/pipeline"
	"convtrack/api/utils"
)

// EventHandlers exposes the pipeline over HTTP: client event capture,
// processor webhooks, the browser↔server hand-off and geo resolution.
type EventHandlers struct {
	WebDispatcher     *pipeline.Dispatcher
	WebhookDispatcher *pipeline.Dispatcher
	Handoff           *handoff.Cache
	Geo               *geo.Resolver
	HandoffTTL        time.Duration
}

func NewEventHandlers(web, webhook *pipeline.Dispatcher, cache *handoff.Cache, resolver *geo.Resolver, handoffTTL time.Duration) *EventHandlers {
	return &EventHandlers{
		WebDispatcher:     web,
		WebhookDispatcher: webhook,
		Handoff:           cache,
		Geo:               resolver,
		HandoffTTL:        handoffTTL,
	}
}

// CaptureEvent handles POST /api/events.
func (h *EventHandlers) CaptureEvent(c *gin.Context) {
	var req models.ClientEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Error binding incoming event JSON: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.WebDispatcher.Dispatch(c.Request.Context(), pipeline.Request{
		EventName:  req.EventName,
		EventID:    req.EventID,
		Source:     "web",
		UserData:   req.UserData,
		CustomData: req.CustomData,
		ClientIP:   c.ClientIP(),
	})
	h.respond(c, result, err)
}

// ProcessWebhook handles POST /api/webhooks/:source. Signature checks
// happen upstream; the transaction id is the dedup identity.
func (h *EventHandlers) ProcessWebhook(c *gin.Context) {
	source := c.Param("source")

	var req models.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Error binding webhook JSON from %s: %v", source, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	eventName := req.EventName
	if eventName == "" {
		eventName = "Purchase"
	}

	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = c.ClientIP()
	}

	userData := map[string]string{
		"em":      req.Email,
		"ph":      req.Phone,
		"name":    req.Name,
		"ct":      req.City,
		"st":      req.State,
		"zp":      req.ZipCode,
		"country": req.Country,
	}

	customData := map[string]any{}
	if req.Value != 0 {
		customData["value"] = req.Value
	}
	if req.Currency != "" {
		customData["currency"] = req.Currency
	}
	if len(req.Extra) > 0 {
		customData["extra"] = req.Extra
	}

	result, err := h.WebhookDispatcher.Dispatch(c.Request.Context(), pipeline.Request{
		EventName:     eventName,
		Source:        "webhook:" + source,
		DedupIdentity: req.TransactionID,
		UserData:      userData,
		CustomData:    customData,
		ClientIP:      clientIP,
	})
	h.respond(c, result, err)
}

// respond maps the pipeline's error taxonomy onto HTTP. A duplicate is a
// normal outcome: the processor gets a 200 so it stops retrying.
func (h *EventHandlers) respond(c *gin.Context, result *models.DispatchResult, err error) {
	if err == nil {
		c.JSON(http.StatusOK, result)
		return
	}

	var verr *pipeline.ValidationError
	var rerr *pipeline.RateLimitError
	switch {
	case errors.Is(err, pipeline.ErrDuplicateEvent):
		c.JSON(http.StatusOK, gin.H{"status": "duplicate", "message": "Event already delivered"})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.As(err, &rerr):
		retryAfterSec := int(rerr.RetryAfter / time.Second)
		if retryAfterSec < 1 {
			retryAfterSec = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSec))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":        "Rate limit exceeded",
			"retryAfterMs": rerr.RetryAfter.Milliseconds(),
		})
	default:
		log.Printf("ERROR: Dispatch failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
	}
}

// CreateHandoff handles POST /api/handoff.
func (h *EventHandlers) CreateHandoff(c *gin.Context) {
	var req models.HandoffPutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	key := req.Key
	if key == "" {
		key = utils.GenerateHandoffKey()
	}

	ttl := h.HandoffTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	h.Handoff.Put(key, req.Payload, ttl)
	c.JSON(http.StatusOK, gin.H{"key": key, "ttlMs": ttl.Milliseconds()})
}

// GetHandoff handles GET /api/handoff/:key.
func (h *EventHandlers) GetHandoff(c *gin.Context) {
	key := c.Param("key")
	payload, ok := h.Handoff.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No data for key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "payload": payload})
}

// HandoffInfo handles GET /api/handoff/:key/info.
func (h *EventHandlers) HandoffInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.Handoff.InfoFor(c.Param("key")))
}

// ResolveGeo handles GET /api/geo: resolve the caller's IP through the
// chain so the browser side can enrich its pixel payloads.
func (h *EventHandlers) ResolveGeo(c *gin.Context) {
	ip := c.Query("ip")
	if ip == "" {
		ip = c.ClientIP()
	}
	c.JSON(http.StatusOK, h.Geo.Resolve(c.Request.Context(), ip))
}

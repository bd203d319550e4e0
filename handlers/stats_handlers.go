// api/handlers/stats_handlers.go
package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"convtrack/api/store"

	"github.com/gin-gonic/gin"
)

type StatsHandlers struct {
	OutcomeStore *store.OutcomeStore
}

func NewStatsHandlers(s *store.OutcomeStore) *StatsHandlers {
	return &StatsHandlers{OutcomeStore: s}
}

// parseTimeRange reads optional RFC3339 start/end query params, defaulting
// to the last 7 days.
func parseTimeRange(c *gin.Context) (start, end time.Time, ok bool) {
	var err error

	startParam := c.Query("start")
	if startParam != "" {
		start, err = time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		start = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}

	endParam := c.Query("end")
	if endParam != "" {
		end, err = time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		end = time.Now().UTC()
	}

	return start, end, true
}

func (h *StatsHandlers) GetDeliveriesOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	eventNameFilter := c.Query("eventName")

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.OutcomeStore.GetDeliveryCountsOverTime(ctx, interval, start, end, eventNameFilter)
	if err != nil {
		log.Printf("Error getting delivery counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve delivery statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetChannelSuccessRates(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.OutcomeStore.GetChannelSuccessRates(ctx, start, end)
	if err != nil {
		log.Printf("Error getting channel success rates: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve channel statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetTopEvents(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	limitParam := c.Query("limit")
	if limitParam != "" {
		parsedLimit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsedLimit == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsedLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.OutcomeStore.GetTopEventNames(ctx, start, end, limit)
	if err != nil {
		log.Printf("Error getting top event names: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top event statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

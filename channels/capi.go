package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"convtrack/api/models"
)

const capiTimeout = 10 * time.Second

// ConversionsAPI posts events to the server-side conversions endpoint.
// The dispatcher wraps every send in a context deadline; the client-level
// timeout keeps the adapter safe when used standalone.
type ConversionsAPI struct {
	Endpoint    string
	AccessToken string
	Client      *http.Client
}

func NewConversionsAPI(endpoint, accessToken string) *ConversionsAPI {
	return &ConversionsAPI{
		Endpoint:    endpoint,
		AccessToken: accessToken,
		Client:      &http.Client{Timeout: capiTimeout},
	}
}

func (c *ConversionsAPI) Name() string { return "capi" }

func (c *ConversionsAPI) Send(ctx context.Context, event *models.CanonicalEvent) error {
	userData := make(map[string]string, len(event.UserData))
	for k, v := range event.UserData {
		if v != "" {
			userData[k] = v
		}
	}

	payload := map[string]any{
		"data": []map[string]any{{
			"event_name":    event.EventName,
			"event_id":      event.EventID,
			"event_time":    event.EventTime,
			"action_source": "website",
			"user_data":     userData,
			"custom_data":   event.CustomData,
		}},
		"access_token": c.AccessToken,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal capi payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build capi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("capi request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("capi returned status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

var _ Channel = (*ConversionsAPI)(nil)

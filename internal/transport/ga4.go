package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"beacon/internal/config"
	"beacon/internal/models"
	"beacon/pkg/logger"
)

// fallbackEventName is used when an event hit carries an action that
// sanitizes down to nothing.
const fallbackEventName = "custom_event"

// Collector sends hits to a GA4 Measurement Protocol endpoint, one HTTPS
// POST per hit.
type Collector struct {
	endpoint      string
	measurementID string
	apiSecret     string
	client        *http.Client
	log           *logger.Logger
}

func NewCollector(collect config.CollectConfig, settings *config.TrackingSettings, log *logger.Logger) *Collector {
	return &Collector{
		endpoint:      collect.Endpoint,
		measurementID: settings.MeasurementID,
		apiSecret:     settings.APISecret,
		client:        &http.Client{Timeout: collect.Timeout},
		log:           log,
	}
}

type payload struct {
	ClientID string  `json:"client_id"`
	Events   []event `json:"events"`
}

type event struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Send transmits one hit. Hits without a client ID are skipped: the
// measurement endpoint has no way to attribute them.
func (c *Collector) Send(ctx context.Context, hit *models.Hit) error {
	if hit.ClientID == "" {
		c.log.Debug("Skipping hit with no client ID", map[string]any{
			"kind": string(hit.Kind),
			"path": hit.DocumentPath,
		})
		return nil
	}

	body, err := json.Marshal(payload{
		ClientID: hit.ClientID,
		Events:   []event{eventFromHit(hit)},
	})
	if err != nil {
		return fmt.Errorf("failed to encode hit: %w", err)
	}

	query := url.Values{}
	query.Set("measurement_id", c.measurementID)
	query.Set("api_secret", c.apiSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?"+query.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build collect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if hit.UserAgent != "" {
		req.Header.Set("User-Agent", hit.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("collect request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collect endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// eventFromHit maps a hit onto one measurement-protocol event.
func eventFromHit(hit *models.Hit) event {
	params := map[string]any{
		// Required for events to register against an active session.
		"engagement_time_msec": 100,
	}

	location := hit.DocumentPath
	if hit.DocumentHostName != "" {
		location = "https://" + hit.DocumentHostName + hit.DocumentPath
	}
	params["page_location"] = location

	if hit.DocumentReferrer != "" {
		params["page_referrer"] = hit.DocumentReferrer
	}
	if hit.Campaign.Source != "" {
		params["campaign_source"] = hit.Campaign.Source
	}
	if hit.Campaign.Medium != "" {
		params["campaign_medium"] = hit.Campaign.Medium
	}
	if hit.Campaign.Name != "" {
		params["campaign"] = hit.Campaign.Name
	}
	if hit.Campaign.Content != "" {
		params["campaign_content"] = hit.Campaign.Content
	}
	if hit.AdClickID != "" {
		params["gclid"] = hit.AdClickID
	}
	if hit.Affiliation != "" {
		params["affiliation"] = hit.Affiliation
	}

	if hit.Kind == models.HitPageView {
		if hit.DocumentTitle != "" {
			params["page_title"] = hit.DocumentTitle
		}
		return event{Name: "page_view", Params: params}
	}

	if hit.EventCategory != "" {
		params["event_category"] = hit.EventCategory
	}
	if hit.EventLabel != "" {
		params["event_label"] = hit.EventLabel
	}
	params["value"] = hit.EventValue

	return event{Name: eventName(hit.EventAction), Params: params}
}

// eventName sanitizes an event action into a measurement-protocol event
// name: letters, digits and underscores, 40 characters max.
func eventName(action string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(action)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune('_')
		}
	}

	name := b.String()
	if name == "" {
		return fallbackEventName
	}
	if len(name) > 40 {
		name = name[:40]
	}
	return name
}

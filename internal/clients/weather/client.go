// Package weather provides the fallback client against the upstream weather
// alert API. It is consulted only when the cloud alert service is
// unreachable; the severity of active alerts is derived locally by keyword
// analysis of alert titles.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/alert"
)

// ClientInterface defines what the fallback weather client must implement.
type ClientInterface interface {
	ActiveAlerts(ctx context.Context, lat, lon float64) ([]Feature, error)
}

// Feature is one active alert feature. Only the title (the "event" plus
// headline text) participates in severity analysis.
type Feature struct {
	Properties struct {
		Event    string `json:"event"`
		Headline string `json:"headline"`
	} `json:"properties"`
}

// Title returns the text used for keyword matching.
func (f Feature) Title() string {
	if f.Properties.Headline != "" {
		return f.Properties.Event + " " + f.Properties.Headline
	}
	return f.Properties.Event
}

type featureCollection struct {
	Features []Feature `json:"features"`
}

// Client fetches active alerts for a point.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ ClientInterface = (*Client)(nil)

// New creates a weather client. timeout bounds every call.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "weather_client").Logger(),
	}
}

// ActiveAlerts fetches the active alert features at the given coordinates.
func (c *Client) ActiveAlerts(ctx context.Context, lat, lon float64) ([]Feature, error) {
	url := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}

	var collection featureCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	return collection.Features, nil
}

// Keyword tables for local severity analysis. Danger keywords win over
// caution keywords when both match.
var (
	dangerKeywords = []string{
		"high surf warning",
		"rip current",
		"tsunami",
		"hurricane",
		"storm surge",
		"coastal flood warning",
	}
	cautionKeywords = []string{
		"beach hazards",
		"high surf",
		"small craft",
		"coastal flood",
		"gale",
		"wind advisory",
	}
)

// Severity maps active alert features to a canonical level. No features
// means SAFE. The result never exceeds DANGER and never reports DANGER
// without a matching keyword, so a noisy feed cannot escalate the display.
func Severity(features []Feature) alert.Level {
	level := alert.Safe
	for _, feature := range features {
		title := strings.ToLower(feature.Title())
		for _, keyword := range dangerKeywords {
			if strings.Contains(title, keyword) {
				return alert.Danger
			}
		}
		for _, keyword := range cautionKeywords {
			if strings.Contains(title, keyword) {
				level = alert.Caution
			}
		}
	}
	return level
}

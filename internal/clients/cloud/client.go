// Package cloud provides the client for the WaveAlert360 cloud alert service.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavealert/wavealert360/internal/alert"
	"github.com/wavealert/wavealert360/internal/identity"
)

// ClientInterface defines what a cloud alert client must implement.
type ClientInterface interface {
	GetAlert(ctx context.Context, device identity.DeviceID) (*AlertResponse, error)
}

// AlertResponse is the cloud service's answer for one device. Unknown fields
// are ignored; a missing alert_level normalizes to SAFE.
type AlertResponse struct {
	AlertLevel       string `json:"alert_level"`
	LEDColor         string `json:"led_color"`
	AudioURL         string `json:"audio_url"`
	DeviceMode       string `json:"device_mode"`
	DemoPauseSeconds int    `json:"demo_pause_seconds"`
	Timestamp        string `json:"timestamp"`
}

// Decision converts the raw response into a resolver decision. The level is
// normalized to the canonical set; TEST mode is recorded in the source so
// operators can tell a drill from a live alert.
func (r *AlertResponse) Decision(now time.Time) alert.Decision {
	source := alert.SourceLive
	mode := alert.DeviceMode(r.DeviceMode)
	switch mode {
	case alert.ModeTest:
		source = alert.SourceTest
	case alert.ModeLive, alert.ModeDemo:
	default:
		mode = alert.ModeLive
	}

	return alert.Decision{
		Level:            alert.Normalize(r.AlertLevel),
		AudioURL:         r.AudioURL,
		Source:           source,
		DeviceMode:       mode,
		DemoPauseSeconds: r.DemoPauseSeconds,
		ObtainedAt:       now,
	}
}

// Client talks to the cloud alert endpoint over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ ClientInterface = (*Client)(nil)

// New creates a cloud client. timeout bounds every call.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "cloud_client").Logger(),
	}
}

// GetAlert fetches the current alert for the device.
func (c *Client) GetAlert(ctx context.Context, device identity.DeviceID) (*AlertResponse, error) {
	url := fmt.Sprintf("%s/api/alert/%s", c.baseURL, device)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("alert request returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read alert response: %w", err)
	}

	var alertResp AlertResponse
	if err := json.Unmarshal(body, &alertResp); err != nil {
		c.log.Warn().Str("body", truncate(string(body), 256)).Msg("Malformed alert payload")
		return nil, fmt.Errorf("failed to decode alert response: %w", err)
	}

	return &alertResp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

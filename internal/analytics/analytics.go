// Package analytics captures product events in PostHog.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHost = "https://us.i.posthog.com"
	capturePath = "/capture/"
)

// Event names.
const (
	EventApplicationReceived = "application_received"
	EventApplicationRejected = "application_rejected"
	EventScreenStarted       = "phone_screen_started"
	EventScreenFinished      = "phone_screen_finished"
	EventQuestionsGenerated  = "questions_generated"
)

// Config is the PostHog project configuration. An empty APIKey disables capturing.
type Config struct {
	APIKey string `mapstructure:"api-key"`
	Host   string `mapstructure:"host"`
}

type Event struct {
	Name string
	// DistinctID groups events; the company id is used so events aggregate per tenant.
	DistinctID string
	Properties map[string]any
}

type Client struct {
	apiKey     string
	host       string
	logger     *zap.Logger
	now        func() time.Time
	HTTPClient *http.Client
}

func New(logger *zap.Logger, cfg Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = defaultHost
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		host:       host,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type capturePayload struct {
	APIKey     string         `json:"api_key"`
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Capture sends a single event. It is a no-op when the client is disabled.
func (c *Client) Capture(ctx context.Context, e Event) error {
	if !c.Enabled() {
		return nil
	}

	if e.Name == "" || e.DistinctID == "" {
		return fmt.Errorf("capture event: name and distinct id are required")
	}

	payload, err := json.Marshal(capturePayload{
		APIKey:     c.apiKey,
		Event:      e.Name,
		DistinctID: e.DistinctID,
		Properties: e.Properties,
		Timestamp:  c.now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+capturePath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("capture event %s: %w", e.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("capture event %s: status %d", e.Name, resp.StatusCode)
	}

	c.logger.Debug("event captured", zap.String("event", e.Name), zap.String("distinct_id", e.DistinctID))
	return nil
}

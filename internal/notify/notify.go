// Package notify sends recruiter emails through the Resend HTTP API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/utils"
)

const (
	apiURL       = "https://api.resend.com"
	emailsPath   = "/emails"
	maxErrorBody = 300
)

// Config is the email provider configuration. An empty APIKey disables sending.
type Config struct {
	APIKey string `mapstructure:"api-key"`
	From   string `mapstructure:"from"`
}

type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type Client struct {
	apiKey     string
	from       string
	logger     *zap.Logger
	HTTPClient *http.Client
	APIURL     string
}

func New(logger *zap.Logger, cfg Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey: strings.TrimSpace(cfg.APIKey),
		from:   strings.TrimSpace(cfg.From),
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		APIURL: apiURL,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send delivers msg and returns the provider message id. A disabled client drops the message.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if !c.Enabled() {
		c.logger.Debug("email disabled, message dropped", zap.String("subject", msg.Subject))
		return "", nil
	}

	if msg.From == "" {
		msg.From = c.from
	}
	if msg.From == "" {
		return "", errors.New("send email: sender address is required")
	}
	if len(msg.To) == 0 {
		return "", errors.New("send email: at least one recipient is required")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+emailsPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read email response: %w", err)
	}

	var out sendResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := out.Message
		if detail == "" {
			detail = utils.TruncateForLog(string(body), maxErrorBody)
		}
		return "", fmt.Errorf("send email: status %d: %s", resp.StatusCode, detail)
	}

	c.logger.Info("email sent", zap.String("email_id", out.ID), zap.Int("recipients", len(msg.To)))
	return out.ID, nil
}

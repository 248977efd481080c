package bland

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/utils"
)

const callsPath = "/v1/calls"

// CallSettings are the per-deployment call options.
type CallSettings struct {
	Voice              string `mapstructure:"voice"`
	Language           string `mapstructure:"language"`
	MaxDurationMinutes int    `mapstructure:"max-duration-minutes"`
	Record             bool   `mapstructure:"record"`
	WebhookURL         string `mapstructure:"webhook-url"`
}

// CallRequest describes one outbound screening call.
type CallRequest struct {
	PhoneNumber string            `json:"phone_number"`
	PathwayID   string            `json:"pathway_id"`
	Voice       string            `json:"voice,omitempty"`
	Language    string            `json:"language,omitempty"`
	MaxDuration int               `json:"max_duration,omitempty"`
	Record      bool              `json:"record"`
	Webhook     string            `json:"webhook,omitempty"`
	RequestData map[string]string `json:"request_data,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewCallRequest applies the deployment settings to a call towards phone on pathwayID.
func NewCallRequest(settings CallSettings, phone, pathwayID string) CallRequest {
	return CallRequest{
		PhoneNumber: phone,
		PathwayID:   pathwayID,
		Voice:       settings.Voice,
		Language:    settings.Language,
		MaxDuration: settings.MaxDurationMinutes,
		Record:      settings.Record,
		Webhook:     settings.WebhookURL,
		RequestData: map[string]string{},
		Metadata:    map[string]string{},
	}
}

type sendCallResponse struct {
	CallID string `json:"call_id"`
}

// SendCall places the call and returns the vendor call id.
func (c *Client) SendCall(ctx context.Context, call CallRequest) (string, error) {
	if strings.TrimSpace(call.PhoneNumber) == "" {
		return "", errors.New("send call: phone number is required")
	}
	if strings.TrimSpace(call.PathwayID) == "" {
		return "", errors.New("send call: pathway id is required")
	}

	var resp sendCallResponse
	if err := c.doJSON(ctx, http.MethodPost, callsPath, call, &resp); err != nil {
		return "", fmt.Errorf("send call: %w", err)
	}
	if strings.TrimSpace(resp.CallID) == "" {
		return "", errors.New("send call: vendor returned empty call id")
	}

	c.logger.Info("call placed",
		zap.String("call_id", resp.CallID),
		zap.String("pathway_id", call.PathwayID),
		zap.String("phone", utils.MaskPhone(call.PhoneNumber)),
	)
	return resp.CallID, nil
}

// GetCall fetches the current state of a call, including the transcript once it ended.
func (c *Client) GetCall(ctx context.Context, callID string) (*CallResult, error) {
	if strings.TrimSpace(callID) == "" {
		return nil, errors.New("get call: call id is required")
	}

	var raw map[string]any
	if err := c.doJSON(ctx, http.MethodGet, callsPath+"/"+callID, nil, &raw); err != nil {
		return nil, fmt.Errorf("get call %s: %w", callID, err)
	}

	return decodeCall(raw)
}

// ParseWebhook decodes the body the vendor posts when a call ends.
func ParseWebhook(body []byte) (*CallResult, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse call webhook: %w", err)
	}
	return decodeCall(raw)
}

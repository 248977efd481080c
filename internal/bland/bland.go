// Package bland talks to the conversational voice vendor: pathways, outbound calls and call webhooks.
package bland

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL = "https://api.bland.ai"
)

type Client struct {
	apiKey     string
	logger     *zap.Logger
	HTTPClient *http.Client
	APIURL     string
}

func New(logger *zap.Logger, apiKey string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey: strings.TrimSpace(apiKey),
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: logger,
	}
}

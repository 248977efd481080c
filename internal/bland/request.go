package bland

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/utils"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	maxErrorBody    = 300
)

// APIError is returned when the vendor answers with a non-2xx status or an error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bland api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("bland api: status %d: %s", e.StatusCode, e.Message)
}

// envelope carries the status fields every vendor response shares.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Errors  []any  `json:"errors"`
}

// doJSON sends body as JSON and decodes the response into target when it is not nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIURL+path, reader)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.request(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return err
	}

	var env envelope
	_ = json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = utils.TruncateForLog(string(data), maxErrorBody)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if strings.EqualFold(env.Status, "error") {
		msg := env.Message
		if msg == "" && len(env.Errors) > 0 {
			msg = fmt.Sprintf("%v", env.Errors[0])
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	// The vendor expects the raw key, without a Bearer prefix.
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	return io.ReadAll(reader)
}

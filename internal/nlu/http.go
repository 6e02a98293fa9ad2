package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPClient talks to an NLU inference endpoint over JSON.
type HTTPClient struct {
	name     string
	endpoint string
	apiKey   string
	model    string
	http     *retryablehttp.Client
}

// HTTPConfig configures an HTTP NLU provider.
type HTTPConfig struct {
	Name     string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewHTTPClient creates a provider client for the given endpoint.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	return &HTTPClient{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     rc,
	}
}

// Name returns the provider name.
func (c *HTTPClient) Name() string { return c.name }

type httpRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

type httpResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Execute posts the prompt and returns the provider's message.
func (c *HTTPClient) Execute(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(httpRequest{
		Model:       c.model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Message: err.Error(), Code: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider: c.name,
			Message:  fmt.Sprintf("unexpected status: %s", bytes.TrimSpace(data)),
			Code:     resp.StatusCode,
		}
	}

	var out httpResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &ProviderError{Provider: c.name, Message: "invalid response body: " + err.Error()}
	}
	if out.Error != "" {
		return nil, &ProviderError{Provider: c.name, Message: out.Error, Code: resp.StatusCode}
	}
	return &Response{Message: out.Message}, nil
}

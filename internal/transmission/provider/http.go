package provider

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
)

const (
	DefaultTimeout = 30 * time.Second

	// error bodies are truncated to this many bytes
	maxErrorBody = 512
)

// Credentials locate and authenticate an HTTP access point
type Credentials struct {
	BaseURL string
	APIKey  string
}

// Option configures an HTTP provider
type Option func(*clientConfig)

type clientConfig struct {
	timeout    time.Duration
	httpClient *http.Client
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// httpClient is shared by the network adapters
type httpClient struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPClient(name string, creds Credentials, opts ...Option) (*httpClient, error) {
	if creds.BaseURL == "" || creds.APIKey == "" {
		return nil, fmt.Errorf("%s requires a base URL and an API key", name)
	}

	cfg := &clientConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(cfg)
	}

	client := cfg.httpClient
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	return &httpClient{
		name:    name,
		baseURL: strings.TrimRight(creds.BaseURL, "/"),
		apiKey:  creds.APIKey,
		client:  client,
	}, nil
}

// do sends a request and returns the body of a response with one of the
// accepted status codes. Any other status is a *ProviderError.
func (c *httpClient) do(ctx context.Context, op, method, path string, body []byte, headers map[string]string, accept ...int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	for _, code := range accept {
		if resp.StatusCode == code {
			return data, nil
		}
	}

	text := string(data)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return nil, &ProviderError{Provider: c.name, Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(text)}
}

// documentResponse is the acknowledgement shape shared by both access points
type documentResponse struct {
	DocumentID string `json:"documentId"`
}

func (c *httpClient) receipt(op string, request, data []byte) (*Receipt, error) {
	var ack documentResponse
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, &ProviderError{Provider: c.name, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if ack.DocumentID == "" {
		return nil, &ProviderError{Provider: c.name, Op: op, Err: errors.New("response carries no document id")}
	}
	return &Receipt{MessageID: ack.DocumentID, Request: request, Response: json.RawMessage(data)}, nil
}

func (c *httpClient) statusReport(op, field string, data []byte) (*StatusReport, error) {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &ProviderError{Provider: c.name, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}

	status := StatusPending
	if s, ok := body[field].(string); ok && s != "" {
		status = strings.ToUpper(s)
	}
	return &StatusReport{Status: status, Details: json.RawMessage(data)}, nil
}

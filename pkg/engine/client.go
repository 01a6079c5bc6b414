package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls a remote Answer Engine API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("answer engine: %d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("answer engine: %d %s", e.StatusCode, e.Message)
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// NewClient creates a new Answer Engine client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8086"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Resolve answers a customer query remotely.
func (c *Client) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	var res Resolution
	if err := c.do(ctx, http.MethodPost, "/api/v1/resolve", req.TenantID, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpsertKnowledgeItem stores a curated question and answer for the tenant.
func (c *Client) UpsertKnowledgeItem(ctx context.Context, tenantID string, in KnowledgeInput) (*KnowledgeItem, error) {
	var item KnowledgeItem
	if err := c.do(ctx, http.MethodPut, "/api/v1/knowledge", tenantID, in, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// IndexWebsitePage indexes the extracted text of a crawled page.
func (c *Client) IndexWebsitePage(ctx context.Context, tenantID string, in PageInput) (*IndexResult, error) {
	var res IndexResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/pages", tenantID, in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpsertProduct stores a catalog product. p is updated with the stored record.
func (c *Client) UpsertProduct(ctx context.Context, p *Product) error {
	if p == nil {
		return fmt.Errorf("%w: product is required", ErrInvalidInput)
	}
	return c.do(ctx, http.MethodPut, "/api/v1/products", p.TenantID, p, p)
}

// Health checks the service health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var res HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path, tenantID string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

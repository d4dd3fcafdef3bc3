// Package fieldservice proxies record creation to a third-party
// field-service management API. The upstream is treated as an opaque CRUD
// boundary: payloads pass through unchanged and created-record IDs are
// pulled out of whatever response shape comes back.
package fieldservice

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

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Record is the normalized view of a created upstream record: the extracted
// ID plus the raw response body for callers that need more.
type Record struct {
	ID   string         `json:"id"`
	Body map[string]any `json:"body"`
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) CreateCustomer(ctx context.Context, payload map[string]any) (Record, error) {
	return c.create(ctx, "/customers", payload, "customerId", "customer_id")
}

func (c *Client) CreateProperty(ctx context.Context, payload map[string]any) (Record, error) {
	return c.create(ctx, "/properties", payload, "propertyId", "property_id")
}

func (c *Client) CreateAsset(ctx context.Context, payload map[string]any) (Record, error) {
	return c.create(ctx, "/assets", payload, "assetId", "asset_id")
}

func (c *Client) CreateJob(ctx context.Context, payload map[string]any) (Record, error) {
	return c.create(ctx, "/jobs", payload, "jobId", "job_id")
}

func (c *Client) create(ctx context.Context, path string, payload map[string]any, idKeys ...string) (Record, error) {
	if c.baseURL == "" {
		return Record{}, fmt.Errorf("field service base URL not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Record{}, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return Record{}, fmt.Errorf("field service request failed: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return Record{}, fmt.Errorf("read field service response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Record{}, fmt.Errorf("field service status %d: %s", response.StatusCode, excerpt(raw))
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Record{}, fmt.Errorf("decode field service response: %w", err)
	}
	return Record{
		ID:   ExtractID(decoded, idKeys...),
		Body: decoded,
	}, nil
}

// ExtractID hunts for a created-record identifier in a loosely specified
// response body. The resource-specific keys are tried first, then generic
// ones, at the top level and one level down inside common wrapper objects.
func ExtractID(body map[string]any, preferredKeys ...string) string {
	keys := append(append([]string{}, preferredKeys...), "id", "ID", "uuid", "_id")
	if id := idFromKeys(body, keys); id != "" {
		return id
	}
	for _, wrapper := range []string{"data", "result", "record"} {
		if nested, ok := body[wrapper].(map[string]any); ok {
			if id := idFromKeys(nested, keys); id != "" {
				return id
			}
		}
	}
	return ""
}

func idFromKeys(body map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := body[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func excerpt(body []byte) string {
	const limit = 256
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > limit {
		return trimmed[:limit] + "..."
	}
	return trimmed
}

package apiclient

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quarryfs/quarry/internal/cli/health"
	"github.com/quarryfs/quarry/pkg/index"
	"github.com/quarryfs/quarry/pkg/service"
)

// Health fetches GET /health. Unlike the other calls, the response body is
// decoded even on non-2xx status codes so that callers can report partial
// health information.
func (c *Client) Health(ctx context.Context) (*health.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var hr health.Response
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, err
	}
	return &hr, nil
}

// Stats fetches cache-wide counters from GET /stats.
func (c *Client) Stats(ctx context.Context) (*service.Stats, error) {
	var stats service.Stats
	if err := c.get(ctx, "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// objectList is the data payload of GET /objects.
type objectList struct {
	Count   int            `json:"count"`
	Objects []*index.Entry `json:"objects"`
}

// ListObjects fetches all indexed objects from GET /objects.
func (c *Client) ListObjects(ctx context.Context) ([]*index.Entry, error) {
	var list objectList
	if err := c.get(ctx, "/objects", &list); err != nil {
		return nil, err
	}
	return list.Objects, nil
}

// DescribeObject fetches index metadata for a single object.
func (c *Client) DescribeObject(ctx context.Context, key string) (*index.Entry, error) {
	var entry index.Entry
	if err := c.get(ctx, objectPath("/objects", key), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveObject evicts an object from the cache.
func (c *Client) RemoveObject(ctx context.Context, key string) error {
	return c.delete(ctx, objectPath("/objects", key), nil)
}

// InvalidateObject marks an object's cached data stale. The next read
// fetches fresh data from the origin.
func (c *Client) InvalidateObject(ctx context.Context, key string) error {
	return c.post(ctx, objectPath("/objects/invalidate", key), nil)
}

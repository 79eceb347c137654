package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/queue"
	"github.com/thelittleladyinc/empire-system/schedule"
	"github.com/thelittleladyinc/empire-system/stream"
)

// WorkflowCounts is the per-status workflow tally from Stats.
type WorkflowCounts struct {
	Pending   int64 `json:"pending"`
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// JobCounts is the per-status job tally from Stats.
type JobCounts struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats is the aggregate engine view returned by the server.
type Stats struct {
	Workflows WorkflowCounts      `json:"workflows"`
	Jobs      JobCounts           `json:"jobs"`
	Stream    *stream.BrokerStats `json:"stream,omitempty"`
}

// Health returns the server's health report. The server answers 503
// when the store or queue is unreachable; the report is still decoded
// and returned in that case, with Healthy false.
func (c *Client) Health(ctx context.Context) (*health.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return nil, fmt.Errorf("empire/client: build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("empire/client: GET /v1/health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, c.apiError(resp)
	}

	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("empire/client: decode health report: %w", err)
	}
	return &report, nil
}

// Alerts returns persisted health alerts, newest first. A non-positive
// limit uses the server default.
func (c *Client) Alerts(ctx context.Context, limit int) ([]*health.Alert, error) {
	path := "/v1/alerts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var alerts []*health.Alert
	if err := c.do(ctx, http.MethodGet, path, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// FailedMessages returns messages whose handlers failed, newest first.
// A non-positive limit uses the server default.
func (c *Client) FailedMessages(ctx context.Context, limit int) ([]queue.FailedMessage, error) {
	path := "/v1/queue/failed"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var msgs []queue.FailedMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Stats returns aggregate workflow, job, and stream counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Schedule returns the registered recurring workflow entries.
func (c *Client) Schedule(ctx context.Context) ([]schedule.Entry, error) {
	var entries []schedule.Entry
	if err := c.do(ctx, http.MethodGet, "/v1/schedule", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/thelittleladyinc/empire-system/stream"
)

// WatchOption scopes a Watch subscription.
type WatchOption func(url.Values)

// WatchWorkflow scopes the stream to a single workflow. Events for the
// workflow's jobs are included.
func WatchWorkflow(workflowID string) WatchOption {
	return func(q url.Values) { q.Set("workflow_id", workflowID) }
}

// WatchJob scopes the stream to a single job.
func WatchJob(jobID string) WatchOption {
	return func(q url.Values) { q.Set("job_id", jobID) }
}

// WatchTopic subscribes to a named topic such as "workflows", "jobs",
// "alerts", or "firehose".
func WatchTopic(topic string) WatchOption {
	return func(q url.Values) { q.Set("topic", topic) }
}

// Watch opens a websocket to the server's event stream and returns a
// channel of events. Without options the firehose is delivered. The
// channel is closed when the context is canceled or the connection
// drops.
func (c *Client) Watch(ctx context.Context, opts ...WatchOption) (<-chan stream.Event, error) {
	q := url.Values{}
	for _, opt := range opts {
		opt(q)
	}

	target := c.wsURL("/v1/stream")
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	conn, _, _, err := ws.Dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("empire/client: dial stream: %w", err)
	}

	events := make(chan stream.Event, 64)
	done := make(chan struct{})

	go func() {
		defer close(events)
		defer close(done)
		for {
			data, readErr := wsutil.ReadServerText(conn)
			if readErr != nil {
				if ctx.Err() == nil {
					c.logger.Debug("empire client: stream closed", slog.String("error", readErr.Error()))
				}
				return
			}

			var evt stream.Event
			if unmarshalErr := json.Unmarshal(data, &evt); unmarshalErr != nil {
				c.logger.Warn("empire client: invalid stream event", slog.String("error", unmarshalErr.Error()))
				continue
			}

			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Unblock the read loop when the context ends.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	return events, nil
}

// wsURL rewrites the base URL's scheme for a websocket dial.
func (c *Client) wsURL(path string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

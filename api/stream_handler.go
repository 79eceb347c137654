package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/labstack/echo/v4"

	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/stream"
)

// streamEvents upgrades the connection to a websocket and forwards
// broker events as JSON text frames. Query parameters scope the feed:
// workflow_id or job_id narrows it to one entity, topic selects a named
// topic, and the default is the firehose. A workflow-scoped feed also
// carries the events of that workflow's jobs.
func (a *API) streamEvents(c echo.Context) error {
	if a.broker == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event streaming is not enabled")
	}

	topics, err := streamTopics(c)
	if err != nil {
		return err
	}

	conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("websocket upgrade: %v", err))
	}

	subID := fmt.Sprintf("ws-%d", a.connSeq.Add(1))
	sub := a.broker.Subscribe(subID, topics...)
	a.logger.Info("stream subscriber connected",
		slog.String("subscriber", subID),
		slog.Int("topics", len(topics)),
	)

	go a.forwardEvents(conn, subID, sub)
	return nil
}

// forwardEvents pumps broker events to the websocket until either side
// goes away. The read loop exists only to notice client disconnects;
// inbound frames are discarded.
func (a *API) forwardEvents(conn net.Conn, subID string, sub *stream.Subscriber) {
	defer func() {
		a.broker.RemoveSubscriber(subID)
		//nolint:errcheck // connection teardown
		conn.Close()
		a.logger.Info("stream subscriber disconnected", slog.String("subscriber", subID))
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if writeErr := wsutil.WriteServerText(conn, data); writeErr != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// streamTopics derives the subscription set from query parameters.
func streamTopics(c echo.Context) ([]string, error) {
	if workflowID := c.QueryParam("workflow_id"); workflowID != "" {
		if _, err := id.ParseWorkflowID(workflowID); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid workflow ID: %v", err))
		}
		return []string{stream.WorkflowTopic(workflowID)}, nil
	}
	if jobID := c.QueryParam("job_id"); jobID != "" {
		if _, err := id.ParseJobID(jobID); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid job ID: %v", err))
		}
		return []string{stream.JobTopic(jobID)}, nil
	}
	if topic := c.QueryParam("topic"); topic != "" {
		if err := stream.ValidateTopic(topic); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return []string{topic}, nil
	}
	return []string{stream.TopicFirehose}, nil
}

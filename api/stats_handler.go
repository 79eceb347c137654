package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/stream"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// WorkflowCounts groups workflow totals by status.
type WorkflowCounts struct {
	Pending   int64 `json:"pending"`
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// JobCounts groups job totals by status.
type JobCounts struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// StatsResponse is the aggregate statistics payload.
type StatsResponse struct {
	Workflows WorkflowCounts      `json:"workflows"`
	Jobs      JobCounts           `json:"jobs"`
	Stream    *stream.BrokerStats `json:"stream,omitempty"`
}

func (a *API) stats(c echo.Context) error {
	ctx := c.Request().Context()
	st := a.eng.Store()

	var resp StatsResponse
	for _, status := range workflow.Statuses {
		count, err := st.CountWorkflows(ctx, status)
		if err != nil {
			return fmt.Errorf("count workflows (%s): %w", status, err)
		}
		switch status {
		case workflow.StatusPending:
			resp.Workflows.Pending = count
		case workflow.StatusQueued:
			resp.Workflows.Queued = count
		case workflow.StatusRunning:
			resp.Workflows.Running = count
		case workflow.StatusCompleted:
			resp.Workflows.Completed = count
		case workflow.StatusFailed:
			resp.Workflows.Failed = count
		}
	}

	for _, status := range job.Statuses {
		count, err := st.CountJobs(ctx, status)
		if err != nil {
			return fmt.Errorf("count jobs (%s): %w", status, err)
		}
		switch status {
		case job.StatusPending:
			resp.Jobs.Pending = count
		case job.StatusRunning:
			resp.Jobs.Running = count
		case job.StatusCompleted:
			resp.Jobs.Completed = count
		case job.StatusFailed:
			resp.Jobs.Failed = count
		}
	}

	if a.broker != nil {
		bs := a.broker.Stats()
		resp.Stream = &bs
	}

	return c.JSON(http.StatusOK, resp)
}

package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/thelittleladyinc/empire-system/engine"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// CreateWorkflowRequest is the body of POST /v1/workflows.
type CreateWorkflowRequest struct {
	PropertyID string            `json:"property_id"`
	Type       string            `json:"type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// createWorkflow creates a workflow for a property and queues it. The
// response is the workflow as it stands after queueing, jobs expanded
// and the first one dispatched.
func (a *API) createWorkflow(c echo.Context) error {
	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PropertyID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "property_id is required")
	}
	if req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "type is required")
	}

	var opts []engine.CreateOption
	if len(req.Metadata) > 0 {
		opts = append(opts, engine.WithMetadata(req.Metadata))
	}

	w, err := a.eng.CreateWorkflow(c.Request().Context(), req.PropertyID, req.Type, opts...)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (a *API) listWorkflows(c echo.Context) error {
	var status workflow.Status
	if s := c.QueryParam("status"); s != "" {
		status = workflow.Status(s)
		if !status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid status %q", s))
		}
	}

	workflows, err := a.eng.Store().ListWorkflows(c.Request().Context(), workflow.ListOpts{
		Limit:  defaultLimit(intQuery(c, "limit")),
		Offset: intQuery(c, "offset"),
		Status: status,
	})
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}
	return c.JSON(http.StatusOK, workflows)
}

// getWorkflow returns the workflow joined with its jobs in priority
// order.
func (a *API) getWorkflow(c echo.Context) error {
	workflowID, err := id.ParseWorkflowID(c.Param("workflowId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid workflow ID: %v", err))
	}

	status, err := a.eng.GetWorkflowStatus(c.Request().Context(), workflowID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, status)
}

// queueWorkflow queues a pending workflow. Workflows created through
// this API are queued on creation, so this responds 409 for them; it
// exists for workflows seeded into the store out of band.
func (a *API) queueWorkflow(c echo.Context) error {
	workflowID, err := id.ParseWorkflowID(c.Param("workflowId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid workflow ID: %v", err))
	}

	if err := a.eng.QueueWorkflow(c.Request().Context(), workflowID); err != nil {
		return mapStoreError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// WorkflowStatus is the joined view returned by GetStatus: the workflow
// record plus its jobs in execution order.
type WorkflowStatus struct {
	Workflow *workflow.Workflow `json:"workflow"`
	Jobs     []*job.Job         `json:"jobs"`
}

// CreateWorkflow submits a workflow for the given property and type
// label. The server expands it into jobs and queues it immediately.
func (c *Client) CreateWorkflow(ctx context.Context, propertyID, workflowType string, metadata map[string]string) (*workflow.Workflow, error) {
	req := struct {
		PropertyID string            `json:"property_id"`
		Type       string            `json:"type"`
		Metadata   map[string]string `json:"metadata,omitempty"`
	}{
		PropertyID: propertyID,
		Type:       workflowType,
		Metadata:   metadata,
	}

	var w workflow.Workflow
	if err := c.do(ctx, http.MethodPost, "/v1/workflows", req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetStatus retrieves a workflow together with its job sequence.
func (c *Client) GetStatus(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	var status WorkflowStatus
	if err := c.do(ctx, http.MethodGet, "/v1/workflows/"+url.PathEscape(workflowID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// QueueWorkflow queues a pending workflow. Workflows created through
// CreateWorkflow are queued already, so this returns a conflict for
// them; check with IsConflict.
func (c *Client) QueueWorkflow(ctx context.Context, workflowID string) error {
	return c.do(ctx, http.MethodPost, "/v1/workflows/"+url.PathEscape(workflowID)+"/queue", nil, nil)
}

// ListWorkflows returns workflows newest-first, honoring the list
// options. A zero Limit uses the server default.
func (c *Client) ListWorkflows(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Workflow, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}

	path := "/v1/workflows"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var workflows []*workflow.Workflow
	if err := c.do(ctx, http.MethodGet, path, nil, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

// GetJob retrieves a single job by ID.
func (c *Client) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

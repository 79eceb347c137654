package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/id"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// ── Workflow model ────────────────────────────────────────────────

type workflowModel struct {
	bun.BaseModel `bun:"table:empire_workflows"`

	ID          string            `bun:"id,pk"`
	Name        string            `bun:"name,notnull"`
	Status      string            `bun:"status,notnull,default:'pending'"`
	PropertyID  string            `bun:"property_id,notnull,default:''"`
	Metadata    map[string]string `bun:"metadata,type:jsonb"`
	CompletedAt *time.Time        `bun:"completed_at"`
	CreatedAt   time.Time         `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull,default:current_timestamp"`
}

func toWorkflowModel(w *workflow.Workflow) *workflowModel {
	metadata := w.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &workflowModel{
		ID:          w.ID.String(),
		Name:        w.Name,
		Status:      string(w.Status),
		PropertyID:  w.PropertyID,
		Metadata:    metadata,
		CompletedAt: w.CompletedAt,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func fromWorkflowModel(m *workflowModel) (*workflow.Workflow, error) {
	parsedID, err := id.ParseWorkflowID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: parse workflow id %q: %w", m.ID, err)
	}

	return &workflow.Workflow{
		Entity: empire.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Name:        m.Name,
		Status:      workflow.Status(m.Status),
		PropertyID:  m.PropertyID,
		Metadata:    m.Metadata,
		CompletedAt: m.CompletedAt,
	}, nil
}

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:empire_jobs"`

	ID          string     `bun:"id,pk"`
	WorkflowID  string     `bun:"workflow_id,notnull"`
	NodeName    string     `bun:"node_name,notnull"`
	Status      string     `bun:"status,notnull,default:'pending'"`
	Priority    int        `bun:"priority,notnull,default:0"`
	Result      []byte     `bun:"result,type:bytea"`
	Error       string     `bun:"error,notnull,default:''"`
	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:          j.ID.String(),
		WorkflowID:  j.WorkflowID.String(),
		NodeName:    j.NodeName,
		Status:      string(j.Status),
		Priority:    j.Priority,
		Result:      j.Result,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: parse job id %q: %w", m.ID, err)
	}

	parsedWorkflow, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: parse workflow id %q: %w", m.WorkflowID, err)
	}

	return &job.Job{
		Entity: empire.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		WorkflowID:  parsedWorkflow,
		NodeName:    m.NodeName,
		Status:      job.Status(m.Status),
		Priority:    m.Priority,
		Result:      m.Result,
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}, nil
}

// ── Alert model ───────────────────────────────────────────────────

type alertModel struct {
	bun.BaseModel `bun:"table:empire_alerts"`

	ID        string    `bun:"id,pk"`
	Kind      string    `bun:"kind,notnull"`
	Message   string    `bun:"message,notnull"`
	Value     float64   `bun:"value,notnull,default:0"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toAlertModel(a *health.Alert) *alertModel {
	return &alertModel{
		ID:        a.ID.String(),
		Kind:      string(a.Kind),
		Message:   a.Message,
		Value:     a.Value,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAlertModel(m *alertModel) (*health.Alert, error) {
	parsedID, err := id.ParseAlertID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: parse alert id %q: %w", m.ID, err)
	}

	return &health.Alert{
		Entity: empire.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      parsedID,
		Kind:    health.Kind(m.Kind),
		Message: m.Message,
		Value:   m.Value,
	}, nil
}

package health

import "context"

// DefaultListLimit caps ListAlerts when the caller passes no limit.
const DefaultListLimit = 100

// Store defines the persistence contract for health alerts.
type Store interface {
	// CreateAlert persists a new alert.
	CreateAlert(ctx context.Context, a *Alert) error

	// ListAlerts returns the most recent alerts, newest first. A zero or
	// negative limit applies DefaultListLimit.
	ListAlerts(ctx context.Context, limit int) ([]*Alert, error)
}

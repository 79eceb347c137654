package bunstore

import (
	"context"
	"fmt"

	"github.com/thelittleladyinc/empire-system/health"
)

// CreateAlert persists a health alert.
func (s *Store) CreateAlert(ctx context.Context, a *health.Alert) error {
	m := toAlertModel(a)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("empire/bun: create alert: %w", err)
	}
	return nil
}

// ListAlerts returns the most recent alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*health.Alert, error) {
	if limit <= 0 {
		limit = health.DefaultListLimit
	}

	var models []alertModel
	err := s.db.NewSelect().Model(&models).
		Order("created_at DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("empire/bun: list alerts: %w", err)
	}

	alerts := make([]*health.Alert, 0, len(models))
	for i := range models {
		a, convErr := fromAlertModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("empire/bun: list alerts convert: %w", convErr)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

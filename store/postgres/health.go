package postgres

import (
	"context"
	"fmt"

	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/id"
)

// CreateAlert persists a health alert.
func (s *Store) CreateAlert(ctx context.Context, a *health.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO empire_alerts (
			id, kind, message, value, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)`,
		a.ID.String(), string(a.Kind), a.Message, a.Value,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("empire/postgres: create alert: %w", err)
	}
	return nil
}

// ListAlerts returns the most recent alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*health.Alert, error) {
	if limit <= 0 {
		limit = health.DefaultListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, message, value, created_at, updated_at
		FROM empire_alerts
		ORDER BY created_at DESC, id DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("empire/postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*health.Alert
	for rows.Next() {
		var (
			a       health.Alert
			idStr   string
			kindStr string
		)
		if err := rows.Scan(&idStr, &kindStr, &a.Message, &a.Value, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("empire/postgres: scan alert row: %w", err)
		}

		a.Kind = health.Kind(kindStr)

		parsedID, parseErr := id.ParseAlertID(idStr)
		if parseErr != nil {
			return nil, fmt.Errorf("empire/postgres: parse alert id %q: %w", idStr, parseErr)
		}
		a.ID = parsedID

		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("empire/postgres: iterate alert rows: %w", err)
	}
	return alerts, nil
}

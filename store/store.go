// Package store defines the aggregate persistence interface. Each
// subsystem (workflow, job, health) defines its own store interface.
// The composite Store composes them all. Backends: Postgres, Bun, and
// Memory.
package store

import (
	"context"

	"github.com/thelittleladyinc/empire-system/health"
	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, bun, memory) implements all of them.
type Store interface {
	workflow.Store
	job.Store
	health.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/thelittleladyinc/empire-system/node"
	"github.com/thelittleladyinc/empire-system/plan"
)

// registerNodes installs a handler for every node named by a registered
// plan. They are placeholders: node execution is a capability behind the
// node.Handler seam, and deployments replace these with real
// integrations (MLS feeds, description generators, listing syndicators).
func registerNodes(reg *node.Registry, plans *plan.Resolver, logger *slog.Logger) {
	names := map[string]struct{}{}
	for _, steps := range plans.Plans() {
		for _, n := range steps {
			names[n] = struct{}{}
		}
	}

	for n := range names {
		reg.Register(n, placeholderHandler(n, logger))
	}
	logger.Info("node handlers registered", slog.Int("count", len(names)))
}

// placeholderHandler acknowledges the step and echoes its execution
// context as the job result.
func placeholderHandler(name string, logger *slog.Logger) node.Handler {
	return func(_ context.Context, req node.Request) ([]byte, error) {
		logger.Info("node executed",
			slog.String("node", name),
			slog.String("workflow_id", req.WorkflowID.String()),
			slog.String("job_id", req.JobID.String()),
			slog.String("property_id", req.PropertyID),
		)
		return json.Marshal(map[string]string{
			"node":        name,
			"property_id": req.PropertyID,
			"executed_at": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/thelittleladyinc/empire-system/node"
)

// Logging returns middleware that logs node start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *node.Request, next Handler) ([]byte, error) {
		logger.Info("node started",
			slog.String("node", req.Node),
			slog.String("job_id", req.JobID.String()),
			slog.String("workflow_id", req.WorkflowID.String()),
		)

		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("node failed",
				slog.String("node", req.Node),
				slog.String("job_id", req.JobID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("node completed",
				slog.String("node", req.Node),
				slog.String("job_id", req.JobID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return result, err
	}
}

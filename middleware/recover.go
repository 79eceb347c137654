package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/thelittleladyinc/empire-system/node"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *node.Request, next Handler) (result []byte, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("node handler panicked",
					slog.String("node", req.Node),
					slog.String("job_id", req.JobID.String()),
					slog.String("workflow_id", req.WorkflowID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				result = nil
				retErr = fmt.Errorf("panic in node %s: %v", req.Node, r)
			}
		}()
		return next(ctx)
	}
}

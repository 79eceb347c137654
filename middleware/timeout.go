package middleware

import (
	"context"
	"time"

	"github.com/thelittleladyinc/empire-system/node"
)

// Timeout returns middleware that enforces an execution deadline on node
// handlers. A context.WithTimeout wraps the handler call; when the
// deadline is exceeded the context is cancelled and the handler should
// return context.DeadlineExceeded. A zero or negative duration disables
// the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *node.Request, next Handler) ([]byte, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}

package node

import (
	"context"
	"encoding/json"
	"fmt"
)

// Definition is a typed node definition. T is the result type (must be
// JSON-serializable); it becomes the job's result payload.
type Definition[T any] struct {
	// Name is the unique identifier for this node.
	Name string

	// Handler produces the typed result for a request.
	Handler func(ctx context.Context, req Request) (T, error)
}

// NewDefinition creates a typed node definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, req Request) (T, error)) *Definition[T] {
	return &Definition[T]{Name: name, Handler: handler}
}

// RegisterDefinition registers a typed node definition. The generic
// handler is wrapped in a closure that JSON-marshals the typed result
// into the job's result payload.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, req Request) ([]byte, error) {
		result, err := def.Handler(ctx, req)
		if err != nil {
			return nil, err
		}
		payload, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal result for node %q: %w", def.Name, marshalErr)
		}
		return payload, nil
	}

	r.Register(def.Name, handler)
}

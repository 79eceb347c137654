// Package plan maps workflow-type labels to ordered execution plans.
//
// A plan is the ordered list of node names a workflow expands into.
// Resolution is total: unknown labels fall back to the test plan rather
// than failing, so the engine never branches on "plan not found".
package plan

import "sync"

// Well-known workflow type labels.
const (
	// TypeFullListing is the end-to-end property listing pipeline.
	TypeFullListing = "full_listing"
	// TypeTest is the single-node smoke plan and the fallback for
	// unrecognized labels.
	TypeTest = "test"
)

// FullListingPlan is the node sequence for a full listing workflow.
var FullListingPlan = []string{
	"collect_data",
	"generate_description",
	"publish_listing",
	"collect_analytics",
}

// TestPlan is the single-node smoke plan.
var TestPlan = []string{"test_node"}

// Resolver maps workflow-type labels to ordered node sequences.
// The zero value is not usable; create one with NewResolver.
type Resolver struct {
	mu    sync.RWMutex
	plans map[string][]string
}

// NewResolver creates a Resolver pre-populated with the built-in plans.
func NewResolver() *Resolver {
	r := &Resolver{plans: make(map[string][]string)}
	r.Register(TypeFullListing, FullListingPlan)
	r.Register(TypeTest, TestPlan)
	return r
}

// Register associates a workflow-type label with an ordered node
// sequence, replacing any existing plan for that label. The steps slice
// is copied.
func (r *Resolver) Register(label string, steps []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[label] = append([]string(nil), steps...)
}

// Resolve returns the ordered node sequence for the given label. Unknown
// labels resolve to the test plan. The returned slice is a copy and is
// always non-empty.
func (r *Resolver) Resolve(label string) []string {
	r.mu.RLock()
	steps, ok := r.plans[label]
	if !ok {
		steps = r.plans[TypeTest]
	}
	if len(steps) == 0 {
		steps = TestPlan
	}
	cp := append([]string(nil), steps...)
	r.mu.RUnlock()
	return cp
}

// Plans returns a snapshot of every registered plan keyed by label.
// Step slices are copies.
func (r *Resolver) Plans() map[string][]string {
	r.mu.RLock()
	out := make(map[string][]string, len(r.plans))
	for label, steps := range r.plans {
		out[label] = append([]string(nil), steps...)
	}
	r.mu.RUnlock()
	return out
}

// Known reports whether a plan is registered for the given label.
func (r *Resolver) Known(label string) bool {
	r.mu.RLock()
	_, ok := r.plans[label]
	r.mu.RUnlock()
	return ok
}

// Labels returns the registered workflow-type labels.
func (r *Resolver) Labels() []string {
	r.mu.RLock()
	labels := make([]string, 0, len(r.plans))
	for label := range r.plans {
		labels = append(labels, label)
	}
	r.mu.RUnlock()
	return labels
}

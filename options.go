package empire

import (
	"context"
	"log/slog"

	"github.com/thelittleladyinc/empire-system/node"
	"github.com/thelittleladyinc/empire-system/plan"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// Storer is the minimal store interface held by the Orchestrator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is asserted by engine.Build, which lives in a package
// that doesn't create import cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Queuer is the minimal queue interface held by the Orchestrator.
// The full interface (queue.Queue) is asserted by engine.Build.
type Queuer interface {
	Ping(ctx context.Context) error
	Close() error
}

// Orchestrator carries the configuration and collaborators from which
// engine.Build assembles a running engine. It holds subsystem references
// through minimal interfaces to avoid import cycles.
type Orchestrator struct {
	config Config
	logger *slog.Logger
	store  Storer
	queue  Queuer
	hooks  []any
	nodes  *node.Registry
	plans  *plan.Resolver
}

// New creates a new Orchestrator with the given options.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.nodes == nil {
		o.nodes = node.NewRegistry()
	}
	if o.plans == nil {
		o.plans = plan.NewResolver()
	}
	return o, nil
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Store returns the orchestrator's store.
func (o *Orchestrator) Store() Storer { return o.store }

// Queue returns the orchestrator's queue.
func (o *Orchestrator) Queue() Queuer { return o.queue }

// Config returns a copy of the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.config }

// Hooks returns the registered lifecycle hooks.
func (o *Orchestrator) Hooks() []any { return o.hooks }

// Nodes returns the node registry.
func (o *Orchestrator) Nodes() *node.Registry { return o.nodes }

// Plans returns the execution plan resolver.
func (o *Orchestrator) Plans() *plan.Resolver { return o.plans }

// WithConfig replaces the engine configuration.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) error {
		o.config = c
		return nil
	}
}

// WithLogger sets the structured logger for the orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the orchestrator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(o *Orchestrator) error {
		o.store = s
		return nil
	}
}

// WithQueue sets the work queue the orchestrator dispatches through.
// Typically a queue.Queue; engine.Build asserts the full interface.
func WithQueue(q Queuer) Option {
	return func(o *Orchestrator) error {
		o.queue = q
		return nil
	}
}

// WithHooks registers lifecycle hooks. Each hook is inspected for the
// hook interfaces it implements; see the hook package.
func WithHooks(hooks ...any) Option {
	return func(o *Orchestrator) error {
		o.hooks = append(o.hooks, hooks...)
		return nil
	}
}

// WithNodeRegistry sets a pre-populated node registry.
func WithNodeRegistry(r *node.Registry) Option {
	return func(o *Orchestrator) error {
		o.nodes = r
		return nil
	}
}

// WithPlanResolver sets a pre-populated execution plan resolver.
func WithPlanResolver(r *plan.Resolver) Option {
	return func(o *Orchestrator) error {
		o.plans = r
		return nil
	}
}

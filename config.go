package empire

import "time"

// Config holds configuration for the orchestration engine.
type Config struct {
	// QueueName is the logical name of the dispatch queue.
	QueueName string

	// NodeTimeout is the deadline applied to each node execution.
	// Zero disables the deadline.
	NodeTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// HealthInterval is how often the health monitor samples.
	HealthInterval time.Duration

	// MemoryThreshold is the memory usage ratio (0..1) above which the
	// health monitor raises an alert.
	MemoryThreshold float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueName:       "workflows",
		NodeTimeout:     5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		HealthInterval:  30 * time.Second,
		MemoryThreshold: 0.90,
	}
}

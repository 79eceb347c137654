// Package empire provides a multi-step workflow orchestration engine
// for property listing pipelines. A workflow is expanded into an ordered
// sequence of jobs, persisted, and driven to completion one job at a
// time through a work queue.
//
// Empire is designed as a library, not a service. Import it, configure a
// store and a queue, register node handlers, and build an engine.
//
// # Quick Start
//
//	o := empire.New(
//	    empire.WithStore(pgStore),
//	    empire.WithQueue(redisQueue),
//	)
//	eng, err := engine.Build(o)
//
// # Architecture
//
// Empire follows a composable store pattern where each subsystem
// (workflow, job, health) defines its own store interface. A single
// backend implements all of them. Step execution is pluggable: nodes are
// opaque handlers resolved by name from a registry, and the engine only
// sequences them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package empire

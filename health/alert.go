package health

import (
	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/id"
)

// Kind classifies what a health alert is about.
type Kind string

const (
	// KindStoreUnreachable means a store ping failed.
	KindStoreUnreachable Kind = "store_unreachable"
	// KindQueueUnreachable means a queue ping failed.
	KindQueueUnreachable Kind = "queue_unreachable"
	// KindMemoryPressure means the memory usage ratio crossed the
	// configured threshold.
	KindMemoryPressure Kind = "memory_pressure"
)

// Alert is one persisted health violation observed by the monitor.
// Value carries the measured quantity behind the alert: a memory ratio
// for memory_pressure, a ping latency in seconds for the unreachable
// kinds.
type Alert struct {
	empire.Entity

	ID      id.AlertID `json:"id"`
	Kind    Kind       `json:"kind"`
	Message string     `json:"message"`
	Value   float64    `json:"value"`
}

// NewAlert creates an alert with a freshly generated ID.
func NewAlert(kind Kind, message string, value float64) *Alert {
	return &Alert{
		Entity:  empire.NewEntity(),
		ID:      id.NewAlertID(),
		Kind:    kind,
		Message: message,
		Value:   value,
	}
}

package empire

import "time"

// Entity holds the timestamp fields shared by all persisted records.
// Embed it in entity structs; stores are responsible for round-tripping
// both fields.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity with both timestamps set to now (UTC).
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch updates UpdatedAt to now (UTC). Call before persisting a mutation.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

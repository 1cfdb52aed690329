package domain

// Change captures a single entity mutation applied within a transaction.
// Before/After hold entity snapshots where applicable.
type Change struct {
	Entity EntityType `json:"entity"`
	Action Action     `json:"action"`
	Before any        `json:"before,omitempty"`
	After  any        `json:"after,omitempty"`
}

// Action identifies the kind of mutation recorded in a Change.
type Action string

// Recognized change actions.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates an entity was deleted.
	ActionDelete Action = "delete"
)

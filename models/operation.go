package models

import "time"

type OperationOutcome string

const (
	OperationApplied  OperationOutcome = "applied"
	OperationNoop     OperationOutcome = "noop"
	OperationConflict OperationOutcome = "conflict"
	OperationRejected OperationOutcome = "rejected"
)

// ConcurrentOperation is the optimistic-concurrency stamp left by every guarded
// mutation. It is an audit record, not a lock.
type ConcurrentOperation struct {
	ID              string           `json:"id" db:"id"`
	EntityKind      string           `json:"entity_kind" db:"entity_kind"`
	EntityID        int              `json:"entity_id" db:"entity_id"`
	VersionObserved int              `json:"version_observed" db:"version_observed"`
	VersionStored   int              `json:"version_stored" db:"version_stored"`
	Actor           string           `json:"actor" db:"actor"`
	Operation       string           `json:"operation" db:"operation"`
	Outcome         OperationOutcome `json:"outcome" db:"outcome"`
	Detail          string           `json:"detail,omitempty" db:"detail"`
	Timestamp       time.Time        `json:"timestamp" db:"timestamp"`
}

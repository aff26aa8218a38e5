package domain

import "time"

// FieldValue is a captured value for one field of an instance. It is kept
// as an interface{} since the preserver does not know the static Go type of
// the guest language's field at compile time — it is driven by a per-type
// field descriptor computed via reflection once per redefinition.
type FieldValue = any

// StateSnapshot is an immutable, ordered capture of one instance's mutable,
// non-final, non-immutable-valued fields. Keys preserve declaration order so
// restoration and diagnostics are deterministic.
type StateSnapshot struct {
	TypeKey    string            `json:"type_key"`
	FieldOrder []string          `json:"field_order"`
	Fields     map[string]FieldValue `json:"fields"`
	CapturedAt time.Time         `json:"captured_at"`
}

// Get returns the captured value for a field and whether it was present.
func (s StateSnapshot) Get(field string) (FieldValue, bool) {
	v, ok := s.Fields[field]
	return v, ok
}

// ConflictResolution selects how rollback reconciles current instance state
// against a RollbackSnapshot when the two disagree.
type ConflictResolution string

const (
	ResolutionMerge         ConflictResolution = "merge"
	ResolutionPreferSnapshot ConflictResolution = "prefer-snapshot"
	ResolutionPreferCurrent ConflictResolution = "prefer-current"
	ResolutionAbort         ConflictResolution = "abort"
	ResolutionForceSnapshot ConflictResolution = "force-snapshot"
	ResolutionManual        ConflictResolution = "manual"
)

// RollbackSnapshot is a per-class tuple capturing everything needed to undo
// one hot-swap change: the previous bytecode (if any), the instance count at
// capture time, and the per-instance StateSnapshots taken at that same
// moment (see spec open question: state is captured at snapshot time, not
// reconstructed at rollback time, so conflict detection is meaningful).
type RollbackSnapshot struct {
	ID               string          `json:"id"`
	TypeKey          string          `json:"type_key"`
	InstanceCount    int             `json:"instance_count"`
	PreviousBytecode []byte          `json:"previous_bytecode,omitempty"`
	InstanceStates   []StateSnapshot `json:"instance_states"`
	CapturedAt       time.Time       `json:"captured_at"`
}

// RollbackStatus is the tag of a RollbackResult.
type RollbackStatus string

const (
	RollbackSucceeded RollbackStatus = "succeeded"
	RollbackFailed    RollbackStatus = "failed"
	RollbackTimeout   RollbackStatus = "timeout"
)

// RollbackResult is the outcome of rolling back a single snapshot.
type RollbackResult struct {
	SnapshotID string         `json:"snapshot_id"`
	Status     RollbackStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// CascadingRollbackResult is the outcome of rolling back several snapshots
// together (e.g. a multi-class change).
type CascadingRollbackResult struct {
	Items          []RollbackResult `json:"items"`
	OverallSuccess bool             `json:"overall_success"`
}

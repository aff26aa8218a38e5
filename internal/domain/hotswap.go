package domain

import "time"

// HotSwapRequest exists only once validation has produced an Accepted
// outcome; the orchestrator is the only component that constructs one.
type HotSwapRequest struct {
	ID               string            `json:"id"`
	Artifact         ArtifactPath      `json:"artifact"`
	PreviousBytecode []byte            `json:"previous_bytecode,omitempty"` // may be empty
	NewBytecode      []byte            `json:"new_bytecode"`
	Validation       ValidationOutcome `json:"validation"` // must be Accepted
	Reason           string            `json:"reason"`
	CorrelationID    string            `json:"correlation_id"`
	RequestedAt      time.Time         `json:"requested_at"`
}

// RedefinitionStatus is the tag of the RedefinitionOutcome variant.
type RedefinitionStatus string

const (
	RedefinitionSucceeded        RedefinitionStatus = "succeeded"
	RedefinitionRejectedByRuntime RedefinitionStatus = "rejected-by-runtime"
	RedefinitionClassNotLoaded   RedefinitionStatus = "class-not-loaded"
	RedefinitionUnexpected       RedefinitionStatus = "unexpected"
)

// RedefinitionOutcome is the result of submitting a HotSwapRequest to the
// host's redefinition primitive. Duration is measured submission-to-return.
type RedefinitionOutcome struct {
	Status                RedefinitionStatus `json:"status"`
	AffectedInstanceCount int                `json:"affected_instance_count,omitempty"`
	Duration              time.Duration      `json:"duration"`
	Reason                string             `json:"reason,omitempty"`
	RecoveryHint          string             `json:"recovery_hint,omitempty"`
	ClassName             string             `json:"class_name,omitempty"`
	Cause                 string             `json:"cause,omitempty"`
}

// Succeeded reports whether the redefinition primitive applied the change.
func (r RedefinitionOutcome) Succeeded() bool { return r.Status == RedefinitionSucceeded }

// InstanceUpdateStrategy is the chosen approach for bringing one tracked
// instance in line with a redefined type.
type InstanceUpdateStrategy string

const (
	StrategyReflectiveFieldCopy InstanceUpdateStrategy = "reflective-field-copy"
	StrategyFactoryRecreate     InstanceUpdateStrategy = "factory-recreate"
	StrategyProxyRebind         InstanceUpdateStrategy = "proxy-rebind"
	StrategySkip                InstanceUpdateStrategy = "skip"
)

// InstancesUpdated is the aggregated result of updating every tracked
// instance of a redefined type in a single hot-swap change.
type InstancesUpdated struct {
	TypeKey  string                  `json:"type_key"`
	Strategy InstanceUpdateStrategy  `json:"strategy"`
	Updated  int                     `json:"updated"`
	Failed   int                     `json:"failed"`
	Total    int                     `json:"total"`
	Duration time.Duration           `json:"duration"`
	Detail   string                  `json:"detail,omitempty"`
}

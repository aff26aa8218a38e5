// Package orchestrator implements the hot-swap orchestrator (§4.8): the
// central state machine driving one in-flight change from detection to
// commit or rollback.
//
// It is a direct generalization of the teacher's ReloadCoordinator
// (internal/config/reload_coordinator.go): the same phase-by-phase pipeline
// shape, the same "atomic current-state pointer + automatic rollback on
// critical failure + per-key lock + structured phase logging" posture, with
// configuration reload's six phases replaced by the eight hot-swap states
// and distributed locking dropped in favor of an in-process,
// per-type-key-only lock (cross-process coordination is an explicit
// non-goal; see DESIGN.md).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rydnr/bytehot-go/internal/adapter"
	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/errclass"
	"github.com/rydnr/bytehot-go/internal/eventlog"
	"github.com/rydnr/bytehot-go/internal/instance"
	"github.com/rydnr/bytehot-go/internal/metrics"
	"github.com/rydnr/bytehot-go/internal/rollback"
	"github.com/rydnr/bytehot-go/internal/validator"
)

// State is one node of the §4.8 state machine.
type State string

const (
	StateDetected         State = "detected"
	StateValidating       State = "validating"
	StateSnapshotting     State = "snapshotting"
	StateRequesting       State = "requesting"
	StateRedefining       State = "redefining"
	StateUpdatingInstances State = "updating-instances"
	StateCommitting       State = "committing"
	StateDone             State = "done"
	StateRejected         State = "rejected"
	StateRollingBack      State = "rolling-back"
	StateFailed           State = "failed"
)

// Redefiner is the host's redefinition primitive.
type Redefiner interface {
	Redefine(ctx context.Context, typeKey string, bytecode []byte) domain.RedefinitionOutcome
}

// ChangeResult is the terminal outcome of one hot-swap change, reported to
// the caller (and mirrored into the event log as it progresses).
type ChangeResult struct {
	TypeKey     string
	FinalState  State
	Validation  domain.ValidationOutcome
	Redefinition domain.RedefinitionOutcome
	Updated     domain.InstancesUpdated
	Rollback    *domain.RollbackResult
	Error       *domain.ErrorReport
	Duration    time.Duration
}

// Options configures an Orchestrator's strictness.
type Options struct {
	// StrictMode: if true, any per-instance update failure after a
	// successful redefinition escalates to RollingBack, per §4.8.
	StrictMode bool
}

// Orchestrator drives the §4.8 pipeline for candidate artifacts, serialized
// per type-key.
type Orchestrator struct {
	store      eventlog.EventStore
	validator  *validator.Validator
	rollback   *rollback.Manager
	tracker    *instance.Tracker
	updater    *instance.Updater
	adapters   *adapter.Registry
	redefiner  Redefiner
	classifier *errclass.Classifier
	logger     *slog.Logger
	opts       Options

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	lastBytecode   sync.Map // type-key -> []byte, the last bytecode successfully redefined
	lastState      sync.Map // type-key -> State, for observability
	lastTransition sync.Map // type-key -> time.Time, start of the current state
}

// New builds an Orchestrator wiring the validation, snapshot, redefinition,
// instance-update and event-log stages together.
func New(
	store eventlog.EventStore,
	v *validator.Validator,
	rb *rollback.Manager,
	tracker *instance.Tracker,
	updater *instance.Updater,
	adapters *adapter.Registry,
	redefiner Redefiner,
	classifier *errclass.Classifier,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		validator:  v,
		rollback:   rb,
		tracker:    tracker,
		updater:    updater,
		adapters:   adapters,
		redefiner:  redefiner,
		classifier: classifier,
		logger:     logger,
		opts:       opts,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(typeKey string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	m, ok := o.locks[typeKey]
	if !ok {
		m = &sync.Mutex{}
		o.locks[typeKey] = m
	}
	return m
}

// HandleArtifact runs the full §4.8 pipeline for one Created or Modified
// ArtifactEvent. It blocks until the change reaches a terminal state.
func (o *Orchestrator) HandleArtifact(ctx context.Context, event domain.ArtifactEvent, newBytecode []byte, correlationID string) (result ChangeResult) {
	start := time.Now()
	typeKey := event.Path.TypeKey()

	lock := o.lockFor(typeKey)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		metrics.HotSwapTotal.WithLabelValues(string(result.FinalState)).Inc()
		metrics.HotSwapDuration.Observe(result.Duration.Seconds())
		if result.FinalState == StateDone {
			metrics.HotSwapLastSuccess.SetToCurrentTime()
		}
	}()

	o.setState(typeKey, StateDetected)
	o.logger.Info("hot-swap change detected", "type_key", typeKey, "kind", event.Kind, "correlation_id", correlationID)

	// Validating
	o.setState(typeKey, StateValidating)
	previous, _ := o.lastBytecode.Load(typeKey)
	var previousBytes []byte
	if previous != nil {
		previousBytes = previous.([]byte)
	}
	validation := o.validator.Validate(event.Path, previousBytes)
	o.appendEvent(ctx, eventRefFor(typeKey), domain.EventValidated, correlationID)

	if !validation.Accepted() {
		o.setState(typeKey, StateRejected)
		o.appendEvent(ctx, eventRefFor(typeKey), domain.EventRejected, correlationID)
		o.logger.Warn("hot-swap change rejected", "type_key", typeKey, "category", validation.Category, "reason", validation.Reason)
		return ChangeResult{TypeKey: typeKey, FinalState: StateRejected, Validation: validation, Duration: time.Since(start)}
	}

	// Snapshotting
	o.setState(typeKey, StateSnapshotting)
	snapshotID, err := o.rollback.Capture(typeKey, previousBytes)
	if err != nil {
		report := o.classifier.Classify(err, errclass.OriginMemory, typeKey, "snapshot", correlationID)
		metrics.HotSwapErrorsTotal.WithLabelValues(string(report.Kind)).Inc()
		o.setState(typeKey, StateFailed)
		o.logger.Error("snapshot capture failed, redefinition aborted", "type_key", typeKey, "error", err)
		return ChangeResult{TypeKey: typeKey, FinalState: StateFailed, Validation: validation, Error: &report, Duration: time.Since(start)}
	}
	o.appendEvent(ctx, eventRefFor(typeKey), domain.EventRollbackCaptured, correlationID)

	// Requesting. The request record must be durably appended before the
	// redefinition primitive is invoked; an append failure here means the
	// pipeline never committed to a change in the first place, so it fails
	// without attempting a rollback.
	o.setState(typeKey, StateRequesting)
	if err := o.appendEvent(ctx, eventRefFor(typeKey), domain.EventHotSwapRequested, correlationID); err != nil {
		report := o.classifier.Classify(err, errclass.OriginMemory, typeKey, "request", correlationID)
		metrics.HotSwapErrorsTotal.WithLabelValues(string(report.Kind)).Inc()
		o.setState(typeKey, StateFailed)
		o.logger.Error("failed to append hot-swap request, redefinition aborted", "type_key", typeKey, "error", err)
		return ChangeResult{TypeKey: typeKey, FinalState: StateFailed, Validation: validation, Error: &report, Duration: time.Since(start)}
	}

	// Redefining
	o.setState(typeKey, StateRedefining)
	outcome := o.redefiner.Redefine(ctx, typeKey, newBytecode)

	switch outcome.Status {
	case domain.RedefinitionSucceeded:
		o.lastBytecode.Store(typeKey, newBytecode)
		if outcome.AffectedInstanceCount == 0 {
			outcome.AffectedInstanceCount = o.tracker.Count(typeKey)
		}
		if err := o.appendEvent(ctx, eventRefFor(typeKey), domain.EventRedefined, correlationID); err != nil {
			report := o.classifier.Classify(err, errclass.OriginMemory, typeKey, "redefined", correlationID)
			metrics.HotSwapErrorsTotal.WithLabelValues(string(report.Kind)).Inc()
			o.logger.Error("failed to append redefined event, rolling back", "type_key", typeKey, "error", err)
			result := o.rollbackAfterFailure(ctx, typeKey, snapshotID, validation, outcome, start, correlationID)
			result.Error = &report
			return result
		}
	case domain.RedefinitionClassNotLoaded:
		// Nothing to update; snapshot is no longer needed. Still appends a
		// Redefined marker (with a class-not-loaded payload) so every change
		// reaching Done has exactly one Redefined or RedefinitionFailed event.
		if err := o.appendEvent(ctx, eventRefFor(typeKey), domain.EventRedefined, correlationID); err != nil {
			report := o.classifier.Classify(err, errclass.OriginMemory, typeKey, "redefined", correlationID)
			metrics.HotSwapErrorsTotal.WithLabelValues(string(report.Kind)).Inc()
			o.logger.Error("failed to append redefined event, rolling back", "type_key", typeKey, "error", err)
			result := o.rollbackAfterFailure(ctx, typeKey, snapshotID, validation, outcome, start, correlationID)
			result.Error = &report
			return result
		}
		o.setState(typeKey, StateCommitting)
		if err := o.appendEvent(ctx, eventRefFor(typeKey), domain.EventChangeCommitted, correlationID); err != nil {
			report := o.classifier.Classify(err, errclass.OriginMemory, typeKey, "commit", correlationID)
			metrics.HotSwapErrorsTotal.WithLabelValues(string(report.Kind)).Inc()
			o.logger.Error("failed to append commit event, rolling back", "type_key", typeKey, "error", err)
			result := o.rollbackAfterFailure(ctx, typeKey, snapshotID, validation, outcome, start, correlationID)
			result.Error = &report
			return result
		}
		o.setState(typeKey, StateDone)
		return ChangeResult{TypeKey: typeKey, FinalState: StateDone, Validation: validation, Redefinition: outcome, Duration: time.Since(start)}
	default: // RejectedByRuntime, Unexpected
		o.appendEvent(ctx, eventRefFor(typeKey), domain.EventRedefinitionFailed, correlationID)
		return o.rollbackAfterFailure(ctx, typeKey, snapshotID, validation, outcome, start, correlationID)
	}

	// UpdatingInstances
	o.setState(typeKey, StateUpdatingInstances)
	fieldCompatible := validation.Category == domain.CategoryMethodBodyOnly || validation.Category == domain.CategoryMethodBodyPlus
	updated := o.updater.Update(typeKey, fieldCompatible)
	o.appendEvent(ctx, eventRefFor(typeKey), domain.EventInstancesUpdated, correlationID)

	if o.opts.StrictMode && updated.Failed > 0 {
		o.logger.Warn("strict mode: instance update failures trigger rollback", "type_key", typeKey, "failed", updated.Failed)
		result := o.rollbackAfterFailure(ctx, typeKey, snapshotID, validation, outcome, start, correlationID)
		result.Updated = updated
		return result
	}

	// Committing. A failed commit append means the redefinition and instance
	// updates already happened but were never durably recorded as
	// committed, so it rolls back rather than reaching Done on a guess.
	o.setState(typeKey, StateCommitting)
	if err := o.appendEvent(ctx, eventRefFor(typeKey), domain.EventChangeCommitted, correlationID); err != nil {
		report := o.classifier.Classify(err, errclass.OriginMemory, typeKey, "commit", correlationID)
		metrics.HotSwapErrorsTotal.WithLabelValues(string(report.Kind)).Inc()
		o.logger.Error("failed to append commit event, rolling back", "type_key", typeKey, "error", err)
		result := o.rollbackAfterFailure(ctx, typeKey, snapshotID, validation, outcome, start, correlationID)
		result.Updated = updated
		result.Error = &report
		return result
	}
	o.setState(typeKey, StateDone)

	o.classifier.ResetClass(typeKey)
	o.logger.Info("hot-swap change committed", "type_key", typeKey, "updated", updated.Updated, "failed", updated.Failed)

	return ChangeResult{
		TypeKey:      typeKey,
		FinalState:   StateDone,
		Validation:   validation,
		Redefinition: outcome,
		Updated:      updated,
		Duration:     time.Since(start),
	}
}

// rollbackAfterFailure transitions to RollingBack and resolves to Done or
// Failed depending on the rollback outcome, per §4.8.
func (o *Orchestrator) rollbackAfterFailure(ctx context.Context, typeKey, snapshotID string, validation domain.ValidationOutcome, outcome domain.RedefinitionOutcome, start time.Time, correlationID string) ChangeResult {
	o.setState(typeKey, StateRollingBack)
	result := o.rollback.Rollback(ctx, snapshotID, domain.ResolutionPreferSnapshot)
	o.appendEvent(ctx, eventRefFor(typeKey), domain.EventRolledBack, correlationID)
	metrics.HotSwapRollbacksTotal.WithLabelValues(string(result.Status)).Inc()

	if result.Status != domain.RollbackSucceeded {
		report := o.classifier.Classify(fmt.Errorf("rollback %s: %s", result.Status, result.Reason), errclass.OriginRedefinition, typeKey, "rollback", correlationID)
		metrics.HotSwapErrorsTotal.WithLabelValues(string(report.Kind)).Inc()
		o.setState(typeKey, StateFailed)
		o.logger.Error("rollback failed after redefinition failure", "type_key", typeKey, "status", result.Status, "reason", result.Reason)
		return ChangeResult{TypeKey: typeKey, FinalState: StateFailed, Validation: validation, Redefinition: outcome, Rollback: &result, Error: &report, Duration: time.Since(start)}
	}

	o.setState(typeKey, StateDone)
	o.logger.Info("hot-swap change rolled back successfully", "type_key", typeKey)
	return ChangeResult{TypeKey: typeKey, FinalState: StateDone, Validation: validation, Redefinition: outcome, Rollback: &result, Duration: time.Since(start)}
}

func (o *Orchestrator) setState(typeKey string, s State) {
	now := time.Now()
	if prevStart, ok := o.lastTransition.Load(typeKey); ok {
		if prevState, ok := o.lastState.Load(typeKey); ok {
			metrics.HotSwapPhaseDuration.WithLabelValues(string(prevState.(State))).Observe(now.Sub(prevStart.(time.Time)).Seconds())
		}
	}
	o.lastState.Store(typeKey, s)
	o.lastTransition.Store(typeKey, now)
}

// StateOf reports the last observed state for typeKey, for diagnostics.
func (o *Orchestrator) StateOf(typeKey string) (State, bool) {
	v, ok := o.lastState.Load(typeKey)
	if !ok {
		return "", false
	}
	return v.(State), true
}

func eventRefFor(typeKey string) eventlog.AggregateRef {
	return eventlog.AggregateRef{Kind: domain.AggregateHotSwapRequest, ID: typeKey}
}

// appendEvent writes one event to the log and reports whether it was
// durably appended. Most call sites along the pipeline treat this as a
// logged-but-non-fatal write, since the orchestrator's own state machine is
// the source of truth for the in-flight change; the Requesting, Redefined
// and Committing appends are the exception and inspect the returned error:
// a failed Requesting append fails the change, a failed Redefined or
// Committing append rolls it back.
func (o *Orchestrator) appendEvent(ctx context.Context, ref eventlog.AggregateRef, t domain.EventType, correlationID string) error {
	event, err := eventlog.NextEvent(ctx, o.store, ref, t, nil, "", correlationID)
	if err != nil {
		o.logger.Warn("failed to build event-log entry", "aggregate", ref.ID, "type", t, "error", err)
		return err
	}
	event.ID = uuid.NewString()
	if err := o.store.Append(ctx, event); err != nil {
		o.logger.Warn("failed to append event-log entry", "aggregate", ref.ID, "type", t, "error", err)
		return err
	}
	return nil
}

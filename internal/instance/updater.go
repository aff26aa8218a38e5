// Updater orchestrates instance updates across all tracked instances of a
// redefined type-key, per §4.6. Strategy selection and aggregated result
// reporting are adapted from the teacher's DefaultConfigReloader
// (internal/config/update_reloader.go ReloadAll): iterate a set of units of
// work, collect a per-unit outcome, and fold them into one aggregated
// result that reports partial success explicitly rather than failing the
// whole batch on the first error.
package instance

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rydnr/bytehot-go/internal/adapter"
	"github.com/rydnr/bytehot-go/internal/domain"
)

// FieldCompatibility reports whether a redefined type's layout is
// field-compatible with its previous layout, i.e. reflective-field-copy can
// succeed. The orchestrator computes this from the validator's
// ValidationOutcome category: method-body-only/plus changes never touch
// fields, so they are always field-compatible.
type FieldCompatibility func(typeKey string) bool

// Updater selects an update strategy per §4.6 and applies it to every
// tracked instance of a redefined type-key.
type Updater struct {
	tracker    *Tracker
	preserver  *Preserver
	adapters   *adapter.Registry
	logger     *slog.Logger
}

// NewUpdater builds an Updater over the given tracker, preserver and
// adapter registry.
func NewUpdater(tracker *Tracker, preserver *Preserver, adapters *adapter.Registry, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{tracker: tracker, preserver: preserver, adapters: adapters, logger: logger}
}

// Update brings every tracked instance of typeKey in line with its newly
// redefined shape, returning one aggregated InstancesUpdated event.
func (u *Updater) Update(typeKey string, fieldCompatible bool) domain.InstancesUpdated {
	start := time.Now()
	instances := u.tracker.Find(typeKey)

	strategy, adp := u.selectStrategy(typeKey, fieldCompatible)

	updated, failed := 0, 0
	for _, inst := range instances {
		if err := u.applyStrategy(strategy, adp, typeKey, inst); err != nil {
			failed++
			u.logger.Warn("instance update failed", "type_key", typeKey, "strategy", strategy, "error", err)
			continue
		}
		updated++
	}

	detail := fmt.Sprintf("%d of %d instance(s) updated via %s", updated, len(instances), strategy)
	if strategy == domain.StrategySkip {
		detail = fmt.Sprintf("no applicable strategy for %s; %d instance(s) skipped", typeKey, len(instances))
		failed = len(instances)
		updated = 0
	}

	return domain.InstancesUpdated{
		TypeKey:  typeKey,
		Strategy: strategy,
		Updated:  updated,
		Failed:   failed,
		Total:    len(instances),
		Duration: time.Since(start),
		Detail:   detail,
	}
}

// selectStrategy implements the ordered selection from §4.6.
func (u *Updater) selectStrategy(typeKey string, fieldCompatible bool) (domain.InstanceUpdateStrategy, adapter.Adapter) {
	if a, ok := u.adapters.Lookup(typeKey); ok {
		if a.SupportsRecreate(typeKey) {
			return domain.StrategyFactoryRecreate, a
		}
	}
	if fieldCompatible {
		return domain.StrategyReflectiveFieldCopy, nil
	}
	if a, ok := u.adapters.Lookup(typeKey); ok {
		if a.SupportsProxyRebind(typeKey) {
			return domain.StrategyProxyRebind, a
		}
	}
	return domain.StrategySkip, nil
}

func (u *Updater) applyStrategy(strategy domain.InstanceUpdateStrategy, adp adapter.Adapter, typeKey string, inst any) error {
	switch strategy {
	case domain.StrategyReflectiveFieldCopy:
		snap, err := u.preserver.Snapshot(typeKey, inst)
		if err != nil {
			return err
		}
		return u.preserver.Restore(snap, inst)
	case domain.StrategyFactoryRecreate:
		_, err := adp.Recreate(typeKey)
		return err
	case domain.StrategyProxyRebind:
		_, err := adp.RefreshProxy(typeKey, inst)
		return err
	default:
		return fmt.Errorf("instance: no applicable update strategy for %s", typeKey)
	}
}

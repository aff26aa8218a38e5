// Package instance implements the instance tracker, state preserver and
// instance updater (§4.4-4.6): a per-type-key registry of non-retaining
// references, a reflection-based field snapshot/restore pair, and the
// strategy-selection logic that brings every tracked instance of a
// redefined type in line with its new shape.
//
// The tracker's per-type locking and enable/disable semantics are adapted
// from the teacher's MemoryStorage (internal/config or resilience package
// equivalents use a single sync.RWMutex guarding a map); this tracker
// generalizes that to one lock per type-key plus a registry-wide lock for
// the enabled set, matching the §5 concurrency model ("the instance
// tracker's per-type lists are guarded by a per-type lock; enable/disable
// takes a registry-wide lock briefly").
package instance

import (
	"reflect"
	"runtime"
	"sync"
)

// Ref is a non-retaining handle to a tracked instance. Go has no first-class
// weak pointer generic enough for a dynamically-typed `any` instance at a
// single call site (both runtime.AddCleanup and weak.Pointer[T] need the
// concrete pointee type T at compile time); Tracker instead emulates "does
// not keep objects alive" with runtime.SetFinalizer, which accepts `any` and
// runs its callback once the object becomes unreachable, flipping a flag on
// the corresponding Ref so Find/Cleanup can prune it without ever holding a
// strong pointer themselves.
type Ref struct {
	mu    sync.Mutex
	value any
	dead  bool
}

func newRef(v any) *Ref {
	r := &Ref{value: v}
	if isFinalizable(v) {
		runtime.SetFinalizer(v, func(any) {
			r.mu.Lock()
			r.dead = true
			r.mu.Unlock()
		})
	}
	return r
}

// isFinalizable reports whether v is eligible for runtime.SetFinalizer: a
// non-nil pointer. Non-pointer instances (which should not occur for real
// guest-language object references) are tracked without a finalizer and are
// therefore never pruned by Find/Cleanup until their type-key is disabled.
func isFinalizable(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && !rv.IsNil()
}

// Alive reports whether the tracked instance is still reachable elsewhere.
func (r *Ref) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.dead
}

// Value returns the tracked instance. Callers must check Alive first; a
// dead Ref's Value is meaningless (the cleanup already ran).
func (r *Ref) Value() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

type typeBucket struct {
	mu   sync.Mutex
	refs []*Ref
}

// Tracker is the per-type-key instance registry from §4.4.
type Tracker struct {
	registryMu sync.RWMutex
	enabled    map[string]bool
	buckets    map[string]*typeBucket
}

// NewTracker builds an empty Tracker; no type-key is enabled initially.
func NewTracker() *Tracker {
	return &Tracker{
		enabled: make(map[string]bool),
		buckets: make(map[string]*typeBucket),
	}
}

// Enable adds typeKey to the set of tracked types.
func (t *Tracker) Enable(typeKey string) {
	t.registryMu.Lock()
	defer t.registryMu.Unlock()
	t.enabled[typeKey] = true
	if _, ok := t.buckets[typeKey]; !ok {
		t.buckets[typeKey] = &typeBucket{}
	}
}

// Disable removes typeKey from the set of tracked types. Already-tracked
// instances are dropped; Track calls for this type become no-ops until
// Enable is called again.
func (t *Tracker) Disable(typeKey string) {
	t.registryMu.Lock()
	defer t.registryMu.Unlock()
	delete(t.enabled, typeKey)
	delete(t.buckets, typeKey)
}

func (t *Tracker) isEnabled(typeKey string) bool {
	t.registryMu.RLock()
	defer t.registryMu.RUnlock()
	return t.enabled[typeKey]
}

func (t *Tracker) bucket(typeKey string) (*typeBucket, bool) {
	t.registryMu.RLock()
	b, ok := t.buckets[typeKey]
	t.registryMu.RUnlock()
	return b, ok
}

// Track records a non-retaining reference to instance under typeKey, unless
// typeKey is disabled, in which case it is a no-op per the §4.4 invariant.
func (t *Tracker) Track(typeKey string, instance any) {
	if !t.isEnabled(typeKey) {
		return
	}
	b, ok := t.bucket(typeKey)
	if !ok {
		return
	}
	b.mu.Lock()
	b.refs = append(b.refs, newRef(instance))
	b.mu.Unlock()
}

// Find returns all currently live tracked instances of typeKey, pruning
// dead references as a side effect. Per §4.4, a returned instance was live
// at some instant during the call; no stronger ordering is guaranteed.
func (t *Tracker) Find(typeKey string) []any {
	b, ok := t.bucket(typeKey)
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.refs[:0]
	out := make([]any, 0, len(b.refs))
	for _, r := range b.refs {
		if r.Alive() {
			live = append(live, r)
			out = append(out, r.Value())
		}
	}
	b.refs = live
	return out
}

// Count returns the number of currently live tracked instances of typeKey.
func (t *Tracker) Count(typeKey string) int {
	return len(t.Find(typeKey))
}

// Cleanup purges dead references across every tracked type-key.
func (t *Tracker) Cleanup() {
	t.registryMu.RLock()
	keys := make([]string, 0, len(t.buckets))
	for k := range t.buckets {
		keys = append(keys, k)
	}
	t.registryMu.RUnlock()

	for _, k := range keys {
		t.Find(k)
	}
}

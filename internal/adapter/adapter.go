// Package adapter implements the framework adapter registry (§4.7):
// optional, type-key-addressable strategies the instance updater consults
// before falling back to reflective field copy.
//
// Grounded on the teacher's LockManager/ConfigStorage optional-dependency
// pattern in internal/config/reload_coordinator.go (NewReloadCoordinator
// accepts nil-able storage and lockManager and checks for nil before use);
// here generalized to a keyed registry instead of a single optional field,
// since any number of adapters may be registered across type-keys.
package adapter

import "sync"

// Scope describes the identity semantics the updater should apply when an
// adapter handles a type-key's instances.
type Scope string

const (
	ScopeSingleton  Scope = "singleton"
	ScopePerRequest Scope = "per-request"
	ScopePerSession Scope = "per-session"
	ScopeCustom     Scope = "custom"
)

// Adapter is an optional strategy for updating instances of one type-key
// without reflective field copy: recreation from a factory, or rebinding
// behind a proxy.
type Adapter interface {
	CanHandle(typeKey string) bool
	Scope(typeKey string) Scope
	SupportsRecreate(typeKey string) bool
	Recreate(typeKey string) (any, error)
	SupportsProxyRebind(typeKey string) bool
	RefreshProxy(typeKey string, newType any) (int, error)
}

// Registry is the idempotent, concurrency-safe set of registered Adapters.
// Registration is serialized. Lookup takes the same mutex only to read the
// current snapshot slice, then scans that snapshot without holding it.
type Registry struct {
	mu       sync.Mutex
	snapshot []Adapter
}

// NewRegistry builds an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds adapter to the registry. Registering the same adapter
// instance twice is a no-op.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.snapshot {
		if existing == a {
			return
		}
	}
	next := make([]Adapter, len(r.snapshot), len(r.snapshot)+1)
	copy(next, r.snapshot)
	r.snapshot = append(next, a)
}

// Deregister removes adapter from the registry. Deregistering an adapter
// that was never registered is a no-op.
func (r *Registry) Deregister(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]Adapter, 0, len(r.snapshot))
	for _, existing := range r.snapshot {
		if existing != a {
			next = append(next, existing)
		}
	}
	r.snapshot = next
}

// Lookup returns the first registered adapter that can handle typeKey, and
// whether one was found. It holds the registry mutex only while reading the
// current snapshot slice header, so it can wait for an in-progress
// Register/Deregister; Register/Deregister replace the slice rather than
// mutate it in place, so the scan itself runs outside the lock.
func (r *Registry) Lookup(typeKey string) (Adapter, bool) {
	r.mu.Lock()
	snapshot := r.snapshot
	r.mu.Unlock()

	for _, a := range snapshot {
		if a.CanHandle(typeKey) {
			return a, true
		}
	}
	return nil, false
}

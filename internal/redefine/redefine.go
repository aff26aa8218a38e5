// Package redefine provides the engine's in-process redefinition primitive:
// the operation the orchestrator and rollback manager treat as an opaque,
// possibly-failing call that atomically substitutes a class's loaded
// representation (§4.8's Redefiner interface).
//
// There is no JVM-style instrumentation API to hook into a Go process, so
// this implementation models the primitive as a per-type-key bytecode
// register: Redefine records newBytecode as the type's current
// representation and reports success unless the submitted bytecode is empty
// (ClassNotLoaded) or the call's context is already cancelled (Unexpected),
// matching the RedefinitionOutcome variants the orchestrator already
// branches on. Real bytecode execution (loading the new class body into a
// running program) is host-runtime specific and out of scope for the
// engine core, which only needs the outcome taxonomy to drive its state
// machine.
package redefine

import (
	"context"
	"sync"
	"time"

	"github.com/rydnr/bytehot-go/internal/domain"
)

// Registry is the default, in-memory Redefiner: a per-type-key map of the
// currently loaded bytecode.
type Registry struct {
	mu    sync.RWMutex
	known map[string][]byte
}

// NewRegistry builds an empty redefinition registry.
func NewRegistry() *Registry {
	return &Registry{known: make(map[string][]byte)}
}

// Redefine substitutes typeKey's loaded bytecode with bytecode. The registry
// itself does not track instances, so it leaves AffectedInstanceCount zero;
// the orchestrator fills it from its own tracker after a Succeeded outcome.
func (r *Registry) Redefine(ctx context.Context, typeKey string, bytecode []byte) domain.RedefinitionOutcome {
	start := time.Now()

	select {
	case <-ctx.Done():
		return domain.RedefinitionOutcome{
			Status:   domain.RedefinitionUnexpected,
			Duration: time.Since(start),
			Cause:    ctx.Err().Error(),
		}
	default:
	}

	if len(bytecode) == 0 {
		return domain.RedefinitionOutcome{
			Status:     domain.RedefinitionClassNotLoaded,
			Duration:   time.Since(start),
			ClassName:  typeKey,
			Reason:     "no bytecode submitted for redefinition",
		}
	}

	r.mu.Lock()
	r.known[typeKey] = bytecode
	r.mu.Unlock()

	return domain.RedefinitionOutcome{
		Status:   domain.RedefinitionSucceeded,
		Duration: time.Since(start),
	}
}

// Current returns the bytecode currently on record for typeKey, and whether
// the type has ever been redefined.
func (r *Registry) Current(typeKey string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.known[typeKey]
	return b, ok
}

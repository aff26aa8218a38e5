// Package identity resolves the user identity folded into every
// user-observable event (§4.12): a strategy chain (explicit → configured →
// environment-derived → anonymous), memoized per process, with nested
// bind/restore scoping for the current logical flow.
//
// The context-scoped binding is grounded on pkg/logger's CorrelationIDKey
// pattern (pkg/logger/logger.go: WithCorrelationID/GetCorrelationID)
// generalized from a per-request string to a per-flow UserIdentity. The explicit
// init/teardown fallback stack follows the redesign guidance for
// process-wide mutable state ("treat as process-wide state with an
// explicit init/teardown owned by the orchestrator"), used only where a
// goroutine cannot thread a context.Context through to the point of
// binding.
package identity

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rydnr/bytehot-go/internal/domain"
)

type contextKey string

const identityContextKey contextKey = "hotswap_user_identity"

// Resolver implements the §4.12 strategy chain and memoizes its
// auto-identification result for the lifetime of the process.
type Resolver struct {
	once     sync.Once
	resolved domain.UserIdentity

	configuredOverride string // from config's user_identity_override
	envVar             string // e.g. "USER" or a CI-provided identity var
}

// NewResolver builds a Resolver. configuredOverride is the
// `user_identity_override` configuration value (empty if unset); envVar
// names the environment variable consulted when no override is configured
// (e.g. "USER").
func NewResolver(configuredOverride, envVar string) *Resolver {
	return &Resolver{configuredOverride: configuredOverride, envVar: envVar}
}

// AutoIdentify resolves the process identity via configured → environment
// → anonymous, in that order, memoizing the result so the strategy chain
// runs at most once per process. The explicit step is Explicit's: a
// context-bound identity takes precedence over this result.
func (r *Resolver) AutoIdentify() domain.UserIdentity {
	r.once.Do(func() {
		r.resolved = r.resolve()
	})
	return r.resolved
}

func (r *Resolver) resolve() domain.UserIdentity {
	if override := strings.TrimSpace(r.configuredOverride); override != "" {
		return identityFor(override)
	}
	if r.envVar != "" {
		if v := strings.TrimSpace(os.Getenv(r.envVar)); v != "" {
			return identityFor(v)
		}
	}
	return domain.UserIdentity{Kind: domain.IdentityAnonymous, Value: "anon-" + uuid.NewString()}
}

// identityFor classifies a resolved raw value as email-like or a bare
// system identifier, per the §3 UserIdentity shape.
func identityFor(value string) domain.UserIdentity {
	if strings.Contains(value, "@") {
		return domain.UserIdentity{Kind: domain.IdentityEmail, Value: value}
	}
	return domain.UserIdentity{Kind: domain.IdentitySystem, Value: value}
}

// Bind returns a context carrying identity for the current logical flow.
// Because context.Context is immutable, a nested Bind on a derived context
// always restores the parent's identity once the derived context goes out
// of scope — there is no explicit teardown to forget on any exit path,
// including panics, since the parent ctx value was never mutated.
func Bind(ctx context.Context, id domain.UserIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// From extracts the bound identity from ctx, if any.
func From(ctx context.Context) (domain.UserIdentity, bool) {
	id, ok := ctx.Value(identityContextKey).(domain.UserIdentity)
	return id, ok
}

// Explicit resolves the identity to fold into one event: ctx's bound
// identity if present, otherwise resolver's memoized auto-identification
// result. This is the single entry point callers use to satisfy
// "explicitly provided → configured → environment → anonymous".
func Explicit(ctx context.Context, resolver *Resolver) domain.UserIdentity {
	if id, ok := From(ctx); ok {
		return id
	}
	return resolver.AutoIdentify()
}

// globalStack is the process-wide bind/restore fallback for goroutines that
// cannot thread a context.Context to the point of binding (e.g. a
// long-running background worker started before any request-scoped context
// exists). It is explicit process-wide state with an explicit init
// (Push) and teardown (the returned restore function), not an implicitly
// shared global.
var globalStack struct {
	mu    sync.Mutex
	stack []domain.UserIdentity
}

// PushGlobal binds identity as the process-wide fallback identity and
// returns a restore function that pops it back off, to be called via
// defer so nested binds always restore the previous identity on every
// exit path.
func PushGlobal(id domain.UserIdentity) (restore func()) {
	globalStack.mu.Lock()
	globalStack.stack = append(globalStack.stack, id)
	globalStack.mu.Unlock()

	return func() {
		globalStack.mu.Lock()
		defer globalStack.mu.Unlock()
		if n := len(globalStack.stack); n > 0 {
			globalStack.stack = globalStack.stack[:n-1]
		}
	}
}

// CurrentGlobal returns the innermost process-wide fallback identity, if
// any binding is active.
func CurrentGlobal() (domain.UserIdentity, bool) {
	globalStack.mu.Lock()
	defer globalStack.mu.Unlock()
	if n := len(globalStack.stack); n > 0 {
		return globalStack.stack[n-1], true
	}
	return domain.UserIdentity{}, false
}

// Package errclass implements the error classifier (§4.10): it maps a raw
// failure plus its operation context to an ErrorReport, tracks a rolling
// per-class failure count to flag unstable classes, and enriches reports
// with a bounded EventSnapshot.
//
// Adapted from the teacher's internal/core/resilience package: classifyError
// (error_classifier.go) is generalized from a fixed set of transport error
// labels into the §4.10 closed ErrorKind taxonomy, and RetryPolicy/WithRetry
// (retry.go) becomes the WithBackoff capped-retry helper.
package errclass

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/pkg/recentcache"
)

// Origin names which subsystem observed the failure; it drives the mapping
// table from §4.10.
type Origin string

const (
	OriginValidation   Origin = "validation"
	OriginRedefinition Origin = "redefinition"
	OriginInstanceUpdate Origin = "instance-update"
	OriginFilesystem   Origin = "filesystem"
	OriginMemory       Origin = "memory"
	OriginSecurity     Origin = "security"
	OriginConfiguration Origin = "configuration"
	OriginCommunication Origin = "communication"
	OriginUnknown      Origin = "unknown"
)

// mapping is one row of the §4.10 abridged mapping table.
type mapping struct {
	kind        domain.ErrorKind
	severity    domain.Severity
	recovery    domain.RecoveryStrategy
	recoverable bool
}

var originMappings = map[Origin]mapping{
	OriginValidation:     {domain.ErrorValidation, domain.SeverityWarning, domain.RecoveryRejectChange, true},
	OriginRedefinition:   {domain.ErrorRedefinitionFail, domain.SeverityError, domain.RecoveryRollbackChanges, true},
	OriginInstanceUpdate: {domain.ErrorInstanceUpdate, domain.SeverityError, domain.RecoveryPreserveCurrentState, true},
	OriginFilesystem:     {domain.ErrorFilesystem, domain.SeverityError, domain.RecoveryRetryOperation, true},
	OriginMemory:         {domain.ErrorCriticalSystem, domain.SeverityCritical, domain.RecoveryEmergencyShutdown, false},
	OriginSecurity:       {domain.ErrorSecurity, domain.SeverityError, domain.RecoveryManualIntervention, false},
	OriginConfiguration:  {domain.ErrorConfiguration, domain.SeverityError, domain.RecoveryManualIntervention, true},
	OriginCommunication:  {domain.ErrorCommunication, domain.SeverityWarning, domain.RecoveryRetryOperation, true},
	OriginUnknown:        {domain.ErrorUnknown, domain.SeverityError, domain.RecoveryNone, true},
}

// UnstableThreshold is the default rolling-count threshold above which a
// class is flagged unstable, per §4.10.
const UnstableThreshold = 3

// Classifier maps raw failures to ErrorReports and tracks per-class
// instability.
type Classifier struct {
	mu      sync.Mutex
	counts  map[string]int
	window  *recentcache.Window
	threshold int
}

// New builds a Classifier backed by window for EventSnapshot enrichment.
func New(window *recentcache.Window) *Classifier {
	return &Classifier{
		counts:    make(map[string]int),
		window:    window,
		threshold: UnstableThreshold,
	}
}

// Classify produces an ErrorReport for err observed at origin, affecting
// classContext (empty if not class-specific), during operation, under
// correlationID.
func (c *Classifier) Classify(err error, origin Origin, classContext, operation, correlationID string) domain.ErrorReport {
	m, ok := originMappings[origin]
	if !ok {
		m = originMappings[OriginUnknown]
	}

	if isOOMOrStackOverflow(err) {
		m = originMappings[OriginMemory]
	}

	report := domain.ErrorReport{
		Kind:          m.kind,
		Severity:      m.severity,
		Recovery:      m.recovery,
		Recoverable:   m.recoverable,
		Message:       err.Error(),
		ClassContext:  classContext,
		Operation:     operation,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
	}

	if classContext != "" {
		c.mu.Lock()
		c.counts[classContext]++
		unstable := c.counts[classContext] > c.threshold
		c.mu.Unlock()
		if unstable {
			report.Message += " (class flagged unstable: repeated failures)"
		}
	}

	if c.window != nil && c.window.Len() > 0 {
		events := c.window.Snapshot()
		report.Snapshot = &domain.EventSnapshot{
			Events:     events,
			CausalChain: []string{correlationID},
			CapturedAt: time.Now().UTC(),
		}
	}

	return report
}

// IsUnstable reports whether classContext has exceeded the rolling failure
// threshold.
func (c *Classifier) IsUnstable(classContext string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[classContext] > c.threshold
}

// ResetClass clears the rolling failure count for classContext, e.g. after
// a successful change.
func (c *Classifier) ResetClass(classContext string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, classContext)
}

func isOOMOrStackOverflow(err error) bool {
	var oom errOutOfMemory
	var stack errStackOverflow
	return errors.As(err, &oom) || errors.As(err, &stack)
}

// errOutOfMemory and errStackOverflow let callers signal the two
// conditions §4.10 requires to always classify as critical-system-error
// regardless of origin.
type errOutOfMemory struct{ Cause error }

func (e errOutOfMemory) Error() string { return "out of memory: " + e.Cause.Error() }
func (e errOutOfMemory) Unwrap() error { return e.Cause }

type errStackOverflow struct{ Cause error }

func (e errStackOverflow) Error() string { return "stack overflow: " + e.Cause.Error() }
func (e errStackOverflow) Unwrap() error { return e.Cause }

// WrapOutOfMemory marks err as an out-of-memory condition for Classify.
func WrapOutOfMemory(err error) error { return errOutOfMemory{Cause: err} }

// WrapStackOverflow marks err as a stack-overflow condition for Classify.
func WrapStackOverflow(err error) error { return errStackOverflow{Cause: err} }

// BackoffPolicy configures the capped exponential backoff with jitter that
// WithBackoff applies.
type BackoffPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultBackoffPolicy returns the same shape of default the teacher ships
// for its retry policy, tuned for filesystem retries.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// WithBackoff retries op according to policy, stopping early if ctx is
// cancelled or op succeeds.
func WithBackoff(ctx context.Context, policy BackoffPolicy, op func() error) error {
	var lastErr error
	delay := policy.BaseDelay

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := delay
			if policy.Jitter {
				wait += time.Duration(rand.Int63n(int64(delay) / 10 + 1))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay = time.Duration(float64(delay) * policy.Multiplier)
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

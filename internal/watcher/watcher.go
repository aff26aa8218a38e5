// Package watcher implements the filesystem watcher: one session per
// watched root, delivering ArtifactEvents to a callback over fsnotify.
//
// Adapted from the teacher's FilesystemDetector
// (giantswarm-muster/internal/reconciler/filesystem_detector.go): the same
// debounce-by-key, merge-operations, stop-channel shape, generalized from a
// fixed resource-directory mapping to a recursive tree walk, and from a
// single shared channel to a per-session callback plus an explicit state
// machine (Idle -> Registering -> Running -> Draining -> Stopped).
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// State is the watcher session's lifecycle state, per §4.1.
type State string

const (
	StateIdle        State = "idle"
	StateRegistering State = "registering"
	StateRunning     State = "running"
	StateDraining    State = "draining"
	StateStopped     State = "stopped"
)

// Callback receives one ArtifactEvent per observable filesystem transition.
// It must not block for long; the session does not wait for it to return
// before processing the next event, but a panicking callback is recovered
// so it cannot kill the session (per §4.1 "callback errors must not kill
// the session").
type Callback func(RawEvent)

// RawEvent is the watcher's output before classification. The classifier
// (internal/classifier) turns this into a domain.ArtifactEvent once it has
// decided the path is a candidate artifact and settled its size.
type RawEvent struct {
	Op   Op
	Path string
	Root string
}

// Op is the kind of filesystem transition observed.
type Op string

const (
	OpCreate   Op = "create"
	OpModify   Op = "modify"
	OpRemove   Op = "remove"
	OpOverflow Op = "overflow"
)

type pendingEntry struct {
	event RawEvent
	timer *time.Timer
}

// Session watches one recursive root directory for artifact changes.
type Session struct {
	mu    sync.Mutex
	state State

	root         string
	pollInterval time.Duration
	debounce     time.Duration
	callback     Callback
	logger       *slog.Logger

	fsw     *fsnotify.Watcher
	pending map[string]*pendingEntry
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSession constructs a Session in state Idle. Call Start to begin
// watching.
func NewSession(root string, pollInterval time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Session{
		state:        StateIdle,
		root:         root,
		pollInterval: pollInterval,
		debounce:     200 * time.Millisecond,
		logger:       logger,
		pending:      make(map[string]*pendingEntry),
	}
}

// Start registers a recursive watch on the session's root and begins
// delivering events to on_event. It returns only once registration has
// completed, per §4.1 ("begin accepting events only after registration
// returns").
func (s *Session) Start(ctx context.Context, on_event Callback) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("watcher: session is not idle (state=%s)", s.state)
	}
	s.state = StateRegistering
	s.mu.Unlock()

	if info, err := os.Stat(s.root); err != nil || !info.IsDir() {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return fmt.Errorf("watcher: root %q does not exist or is not a directory: %w", s.root, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}

	if err := addRecursive(fsw, s.root); err != nil {
		fsw.Close()
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return fmt.Errorf("watcher: register watches under %q: %w", s.root, err)
	}

	s.mu.Lock()
	s.fsw = fsw
	s.callback = on_event
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.state = StateRunning
	s.mu.Unlock()

	go s.run(ctx)

	s.logger.Info("watcher session started", "root", s.root)
	return nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (s *Session) run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			s.beginDrain()
			return
		case <-s.stopCh:
			s.beginDrain()
			return
		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Error("watcher session error", "root", s.root, "error", err)
			s.emit(RawEvent{Op: OpOverflow, Root: s.root})
		}
	}
}

func (s *Session) handle(event fsnotify.Event) {
	var op Op
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		op = OpCreate
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			s.mu.Lock()
			fsw := s.fsw
			s.mu.Unlock()
			if fsw != nil {
				_ = fsw.Add(event.Name)
			}
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		op = OpModify
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		op = OpRemove
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		op = OpRemove
	default:
		return
	}

	s.debounceEvent(RawEvent{Op: op, Path: event.Name, Root: s.root})
}

// debounceEvent coalesces rapid consecutive writes to the same path into one
// event, merging operations the way the teacher's detector does: a create
// absorbs a following modify, a modify followed by a remove becomes a
// remove.
func (s *Session) debounceEvent(event RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.pending[event.Path]; ok {
		entry.timer.Stop()
		event.Op = mergeOps(entry.event.Op, event.Op)
	}

	timer := time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		entry, ok := s.pending[event.Path]
		if ok {
			delete(s.pending, event.Path)
		}
		s.mu.Unlock()
		if ok {
			s.emit(entry.event)
		}
	})

	s.pending[event.Path] = &pendingEntry{event: event, timer: timer}
}

func mergeOps(old, next Op) Op {
	switch {
	case old == OpCreate && next == OpRemove:
		return OpRemove
	case old == OpCreate:
		return OpCreate
	case old == OpModify && next == OpRemove:
		return OpRemove
	default:
		return next
	}
}

func (s *Session) emit(event RawEvent) {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("watcher callback panicked", "root", s.root, "recovered", r)
		}
	}()
	cb(event)
}

func (s *Session) beginDrain() {
	s.mu.Lock()
	s.state = StateDraining
	pending := make([]*pendingEntry, 0, len(s.pending))
	for _, entry := range s.pending {
		pending = append(pending, entry)
	}
	s.pending = make(map[string]*pendingEntry)
	fsw := s.fsw
	s.mu.Unlock()

	for _, entry := range pending {
		entry.timer.Stop()
		s.emit(entry.event)
	}
	if fsw != nil {
		fsw.Close()
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

// Stop cooperatively cancels the session and waits a bounded time for
// in-flight events to drain.
func (s *Session) Stop(drainTimeout time.Duration) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-doneCh:
		return nil
	case <-time.After(drainTimeout):
		return fmt.Errorf("watcher: session did not drain within %s", drainTimeout)
	}
}

// IsHealthy reports whether the underlying watch is still registered and
// the driver goroutine is live.
func (s *Session) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning && s.fsw != nil
}

// StateNow returns the session's current lifecycle state.
func (s *Session) StateNow() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

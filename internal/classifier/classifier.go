// Package classifier decides whether a raw watcher event names a candidate
// artifact, derives its ArtifactPath, and settles its size before handing a
// domain.ArtifactEvent to the orchestrator. Grounded on the teacher's
// pkg/middleware/path_normalization.go for the path-hygiene pattern (reject
// traversal, normalize separators) and on giantswarm-muster's
// filesystem_detector.go isYAMLFile/parseFilePath for the
// extension/ancestor-walk shape, generalized to class-file extensions and a
// source-root marker search instead of a fixed resource directory.
package classifier

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/watcher"
)

// identifierPattern is the conservative identifier grammar from §4.2: ASCII
// letters, digits and underscore, not starting with a digit.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sourceRootMarkers is the fixed closed set of directory names that stop the
// parent walk used to derive a package name.
var sourceRootMarkers = map[string]bool{
	"classes": true,
	"target":  true,
	"build":   true,
	"out":     true,
	"bin":     true,
}

// Config tunes classification and write-settling, sourced from the
// configuration surface in §6.
type Config struct {
	ArtifactSuffix         string
	ArtifactMagic          []byte
	RejectSyntheticInner   bool
	SettlingAttempts       int
	SettlingDelay          time.Duration
}

// DefaultConfig matches the class-file conventions used across the rest of
// this module's examples (compiled artifact with a fixed magic header).
func DefaultConfig() Config {
	return Config{
		ArtifactSuffix:       ".class",
		ArtifactMagic:        []byte{0xCA, 0xFE, 0xBA, 0xBE},
		RejectSyntheticInner: true,
		SettlingAttempts:     5,
		SettlingDelay:        50 * time.Millisecond,
	}
}

// Classifier turns RawEvents into domain.ArtifactEvents, rejecting
// non-candidate paths and settling Created sizes per §4.2.
type Classifier struct {
	cfg Config
}

// New builds a Classifier with the given configuration.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify converts a watcher.RawEvent into a domain.ArtifactEvent. It
// returns ok=false when the path is not a candidate artifact (the caller
// should silently drop the event, per §4.2's "any other file is ignored").
func (c *Classifier) Classify(raw watcher.RawEvent, correlationID string) (domain.ArtifactEvent, bool) {
	if raw.Op == watcher.OpOverflow {
		return domain.ArtifactEvent{}, false
	}

	className, ok := c.candidateClassName(raw.Path)
	if !ok {
		return domain.ArtifactEvent{}, false
	}

	pkg := c.derivePackage(raw.Root, raw.Path)
	fullName := className
	if pkg != "" {
		fullName = pkg + "." + className
	}

	path := domain.ArtifactPath{
		AbsolutePath: raw.Path,
		ClassName:    fullName,
		Package:      pkg,
		Toolchain:    c.detectToolchain(raw.Root),
	}

	event := domain.ArtifactEvent{
		Path:          path,
		DetectedAt:    time.Now().UTC(),
		CorrelationID: correlationID,
	}

	switch raw.Op {
	case watcher.OpCreate:
		event.Kind = domain.ArtifactCreated
		size := c.settleCreated(raw.Path)
		event.Size = &size
	case watcher.OpModify:
		event.Kind = domain.ArtifactModified
		if size, ok := c.readSize(raw.Path); ok {
			event.Size = &size
		}
	case watcher.OpRemove:
		event.Kind = domain.ArtifactDeleted
	default:
		return domain.ArtifactEvent{}, false
	}

	return event, true
}

// candidateClassName rejects temporary and synthetic names and validates
// the base name against the identifier grammar, per §4.2.
func (c *Classifier) candidateClassName(path string) (string, bool) {
	base := filepath.Base(path)

	if !strings.HasSuffix(base, c.cfg.ArtifactSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(base, c.cfg.ArtifactSuffix)

	if strings.HasPrefix(base, ".") {
		return "", false
	}
	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".bak") {
		return "", false
	}
	if name == "module-info" || name == "package-info" {
		return "", false
	}
	if c.cfg.RejectSyntheticInner && strings.Contains(name, "$") {
		return "", false
	}
	if !identifierPattern.MatchString(name) {
		return "", false
	}
	return name, true
}

// derivePackage walks parent directories from path up to root, stopping at
// a recognized source-root marker, and joins the remainder with dots.
func (c *Classifier) derivePackage(root, path string) string {
	dir := filepath.Dir(path)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return ""
	}

	parts := strings.Split(rel, string(filepath.Separator))
	start := 0
	for i, p := range parts {
		if sourceRootMarkers[p] {
			start = i + 1
		}
	}
	parts = parts[start:]
	return strings.Join(parts, ".")
}

func (c *Classifier) detectToolchain(root string) domain.ToolchainOrigin {
	switch {
	case strings.Contains(root, "target"):
		return domain.ToolchainMaven
	case strings.Contains(root, "build"):
		return domain.ToolchainGradle
	case strings.Contains(root, "out"):
		return domain.ToolchainIntelliJ
	case strings.Contains(root, "bin"):
		return domain.ToolchainEclipse
	default:
		return domain.ToolchainUnknown
	}
}

// settleCreated waits until the observed file size is stable across
// SettlingAttempts consecutive reads spaced SettlingDelay apart, per the
// write-settling contract in §4.2. If the budget is exhausted, the last
// observed size is returned regardless.
func (c *Classifier) settleCreated(path string) int64 {
	attempts := c.cfg.SettlingAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var last int64 = -1
	stableReads := 0
	for i := 0; i < attempts; i++ {
		size, ok := c.readSize(path)
		if !ok {
			time.Sleep(c.cfg.SettlingDelay)
			continue
		}
		if size == last {
			stableReads++
			if stableReads >= attempts {
				return size
			}
		} else {
			stableReads = 1
			last = size
		}
		time.Sleep(c.cfg.SettlingDelay)
	}
	if last < 0 {
		return 0
	}
	return last
}

func (c *Classifier) readSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// HasValidHeader reports whether the file at path begins with the
// configured magic bytes, per §6 ("whose header matches the expected
// magic").
func (c *Classifier) HasValidHeader(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, len(c.cfg.ArtifactMagic))
	if _, err := f.Read(buf); err != nil {
		return false
	}
	return bytes.Equal(buf, c.cfg.ArtifactMagic)
}

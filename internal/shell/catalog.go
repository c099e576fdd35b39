package shell

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/errs"
)

// Options configures a Catalog
type Options struct {
	// Preferred is walked first by Optimal when available
	Preferred Kind
	// Extra candidates per kind, tried before the built-in ones
	Extra map[Kind][]string
	// VersionTimeout bounds a single version check
	VersionTimeout time.Duration
	Logger         *zap.Logger
}

// Catalog detects and ranks shells
type Catalog struct {
	table     []Spec
	preferred Kind
	timeout   time.Duration
	logger    *zap.Logger

	snapshot atomic.Pointer[[]Descriptor]
	detect   singleflight.Group

	versionMu sync.RWMutex
	versions  map[string]string // path -> version
	resolve   singleflight.Group

	// runVersion is swapped in tests
	runVersion func(ctx context.Context, path string, args []string) (string, error)
}

// New creates a catalog for the current platform
func New(opts Options) *Catalog {
	return NewWithTable(DefaultTable(), opts)
}

// NewWithTable creates a catalog over a custom table. Table order is the
// priority order; the last entry is the baseline.
func NewWithTable(table []Spec, opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.VersionTimeout <= 0 {
		opts.VersionTimeout = 3 * time.Second
	}

	merged := make([]Spec, len(table))
	for i, spec := range table {
		merged[i] = withExtra(spec, opts.Extra[spec.Kind])
	}

	return &Catalog{
		table:      merged,
		preferred:  opts.Preferred,
		timeout:    opts.VersionTimeout,
		logger:     opts.Logger.Named("shell"),
		versions:   make(map[string]string),
		runVersion: runVersionCommand,
	}
}

// withExtra puts user candidates in front of the built-in ones
func withExtra(spec Spec, extra []string) Spec {
	if len(extra) == 0 {
		return spec
	}
	var paths, globs, names []string
	for _, c := range extra {
		switch {
		case strings.ContainsAny(c, "*?[{"):
			globs = append(globs, c)
		case filepath.IsAbs(c) || strings.ContainsAny(c, `/\`):
			paths = append(paths, c)
		default:
			names = append(names, c)
		}
	}
	spec.Paths = append(paths, spec.Paths...)
	spec.Globs = append(globs, spec.Globs...)
	spec.Names = append(names, spec.Names...)
	return spec
}

// DetectAll returns every known shell in priority order, available or not.
// The first call scans the host; later calls return the cached result.
func (c *Catalog) DetectAll() []Descriptor {
	if snap := c.snapshot.Load(); snap != nil {
		return c.annotate(*snap)
	}

	v, _, _ := c.detect.Do("detect", func() (interface{}, error) {
		if snap := c.snapshot.Load(); snap != nil {
			return *snap, nil
		}
		found := c.scan()
		c.snapshot.Store(&found)
		return found, nil
	})
	return c.annotate(v.([]Descriptor))
}

// Available returns only the detected shells, in priority order
func (c *Catalog) Available() []Descriptor {
	all := c.DetectAll()
	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.Available {
			out = append(out, d)
		}
	}
	return out
}

// Optimal returns the best available shell. The preferred kind wins when
// present; with nothing detected the baseline is returned as available.
func (c *Catalog) Optimal() Descriptor {
	all := c.DetectAll()

	if c.preferred != "" {
		for _, d := range all {
			if d.Kind == c.preferred && d.Available {
				return d
			}
		}
	}
	for _, d := range all {
		if d.Available {
			return d
		}
	}
	return c.baseline(all)
}

func (c *Catalog) baseline(all []Descriptor) Descriptor {
	d := all[len(all)-1]
	if d.Path == "" {
		d.Path = c.table[len(c.table)-1].Fallback
	}
	d.Available = true
	return d
}

// Lookup resolves a kind name or an executable path to a descriptor. An
// empty hint means Optimal.
func (c *Catalog) Lookup(hint string) (Descriptor, error) {
	if strings.TrimSpace(hint) == "" {
		return c.Optimal(), nil
	}

	all := c.DetectAll()
	if kind, ok := ParseKind(hint); ok {
		for _, d := range all {
			if d.Kind == kind && d.Available {
				return d, nil
			}
		}
		if last := all[len(all)-1]; last.Kind == kind {
			return c.baseline(all), nil
		}
		return Descriptor{}, errs.New(errs.CodeShellNotAvailable, "shell not available: %s", hint)
	}

	if !c.Validate(hint) {
		return Descriptor{}, errs.New(errs.CodeShellNotAvailable, "shell not executable: %s", hint)
	}
	kind, ok := KindFromPath(hint)
	if !ok {
		return Descriptor{}, errs.New(errs.CodeShellNotAvailable, "unknown shell: %s", hint)
	}
	for _, d := range all {
		if d.Kind == kind {
			d.Path = hint
			d.Available = true
			return d, nil
		}
	}
	return Descriptor{}, errs.New(errs.CodeShellNotAvailable, "shell not supported on this platform: %s", hint)
}

// Validate reports whether path is an existing executable regular file
func (c *Catalog) Validate(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}
	return isExecutable(path, info)
}

// ClearCache drops the detection snapshot and resolved versions
func (c *Catalog) ClearCache() {
	c.snapshot.Store(nil)

	c.versionMu.Lock()
	c.versions = make(map[string]string)
	c.versionMu.Unlock()

	c.logger.Debug("Shell cache cleared")
}

func (c *Catalog) scan() []Descriptor {
	found := make([]Descriptor, len(c.table))
	for i, spec := range c.table {
		d := Descriptor{
			Kind:         spec.Kind,
			Role:         spec.Role,
			Args:         spec.Args,
			Priority:     i,
			Capabilities: spec.Capabilities,
		}
		if path, ok := c.locate(spec); ok {
			d.Path = path
			d.Available = true
		}
		found[i] = d
	}

	c.logger.Info("Shell detection complete", zap.Int("available", countAvailable(found)))
	return found
}

// locate returns the first candidate that validates
func (c *Catalog) locate(spec Spec) (string, bool) {
	for _, p := range spec.Paths {
		p = os.ExpandEnv(p)
		if c.Validate(p) {
			return p, true
		}
	}

	for _, pattern := range spec.Globs {
		pattern = filepath.ToSlash(os.ExpandEnv(pattern))
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			c.logger.Debug("Glob lookup failed", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		// Newest versioned directory first
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		for _, m := range matches {
			if c.Validate(m) {
				return m, true
			}
		}
	}

	for _, name := range spec.Names {
		p, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if c.Validate(p) {
			return p, true
		}
	}

	return "", false
}

func countAvailable(ds []Descriptor) int {
	n := 0
	for _, d := range ds {
		if d.Available {
			n++
		}
	}
	return n
}

// annotate copies the snapshot and fills in any versions already resolved
func (c *Catalog) annotate(ds []Descriptor) []Descriptor {
	out := make([]Descriptor, len(ds))
	copy(out, ds)

	c.versionMu.RLock()
	defer c.versionMu.RUnlock()
	for i := range out {
		if v, ok := c.versions[out[i].Path]; ok {
			out[i].Version = v
		}
	}
	return out
}

// ResolveVersion returns d with its version filled in. Concurrent calls for
// the same executable share one check; failures leave Version empty.
func (c *Catalog) ResolveVersion(ctx context.Context, d Descriptor) Descriptor {
	if !d.Available || d.Path == "" || d.Version != "" {
		return d
	}

	c.versionMu.RLock()
	v, ok := c.versions[d.Path]
	c.versionMu.RUnlock()
	if ok {
		d.Version = v
		return d
	}

	args := c.versionArgs(d.Kind)
	if args == nil {
		return d
	}

	res, err, _ := c.resolve.Do(d.Path, func() (interface{}, error) {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.runVersion(checkCtx, d.Path, args)
	})
	if err != nil {
		c.logger.Debug("Version check failed", zap.String("path", d.Path), zap.Error(err))
		return d
	}

	d.Version = res.(string)
	c.versionMu.Lock()
	c.versions[d.Path] = d.Version
	c.versionMu.Unlock()
	return d
}

// ResolveAll resolves versions for every available shell concurrently
func (c *Catalog) ResolveAll(ctx context.Context) []Descriptor {
	all := c.DetectAll()
	g, gctx := errgroup.WithContext(ctx)
	for i := range all {
		i := i
		g.Go(func() error {
			all[i] = c.ResolveVersion(gctx, all[i])
			return nil
		})
	}
	_ = g.Wait()
	return all
}

func (c *Catalog) versionArgs(kind Kind) []string {
	for _, spec := range c.table {
		if spec.Kind == kind {
			return spec.VersionArgs
		}
	}
	return nil
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

func runVersionCommand(ctx context.Context, path string, args []string) (string, error) {
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		return "", err
	}
	return parseVersion(string(out)), nil
}

// parseVersion extracts a dotted version from the first non-empty line
func parseVersion(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := versionPattern.FindString(line); m != "" {
			return m
		}
		return line
	}
	return ""
}

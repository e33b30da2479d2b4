package bundlefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/reglet-dev/npm-portlet-extender/metrics"
	"github.com/reglet-dev/npm-portlet-extender/module"
)

// Bundle actions recorded in metrics.
const (
	ActionInstall   = "install"
	ActionUpdate    = "update"
	ActionReinstall = "reinstall"
	ActionUninstall = "uninstall"
	ActionFailed    = "failed"
)

const (
	defaultDebounce = 250 * time.Millisecond
	minDebounce     = 10 * time.Millisecond
)

// Framework is the part of the module framework a Source drives.
type Framework interface {
	Install(def module.Definition) (module.Module, error)
	Start(id int64) error
	Stop(id int64) error
	Update(id int64, def module.Definition) error
	Uninstall(id int64) error
}

// Bundle is a loaded bundle directory.
type Bundle struct {
	Manifest  *Manifest
	Resources fs.FS
	// Dir is the bundle directory name relative to the source root.
	Dir    string
	Digest Digest
}

// Load reads the bundle rooted at dir.
func Load(dir string) (*Bundle, error) {
	fsys := os.DirFS(dir)
	name := filepath.Base(dir)

	f, err := fsys.Open(ManifestFile)
	if err != nil {
		return nil, &ManifestError{Bundle: name, Err: err}
	}
	defer f.Close()

	manifest, err := ParseManifest(f)
	if err != nil {
		return nil, &ManifestError{Bundle: name, Err: err}
	}

	digest, err := ComputeDigest(fsys)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", name, err)
	}

	return &Bundle{
		Manifest:  manifest,
		Resources: fsys,
		Dir:       name,
		Digest:    digest,
	}, nil
}

// SyncReport lists what a Sync changed, by bundle directory.
type SyncReport struct {
	Failed      map[string]error
	Installed   []string
	Updated     []string
	Reinstalled []string
	Uninstalled []string
}

// Changed reports whether the sync touched the framework.
func (r *SyncReport) Changed() bool {
	return len(r.Installed)+len(r.Updated)+len(r.Reinstalled)+len(r.Uninstalled) > 0
}

func (r *SyncReport) fail(dir string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[dir] = err
}

type installed struct {
	name   string
	digest Digest
	id     int64
}

// Source mirrors a directory of bundles into a Framework. Every bundle it
// installs is started.
type Source struct {
	fw       Framework
	logger   *slog.Logger
	metrics  *metrics.Metrics
	bundles  map[string]installed
	root     string
	debounce time.Duration
	mu       sync.Mutex
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithLogger sets the source logger.
func WithLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records bundle actions.
func WithMetrics(m *metrics.Metrics) SourceOption {
	return func(s *Source) {
		s.metrics = m
	}
}

// WithDebounce sets how long Watch waits for changes to settle.
func WithDebounce(d time.Duration) SourceOption {
	return func(s *Source) {
		s.debounce = max(d, minDebounce)
	}
}

// NewSource creates a Source for the bundles under root.
func NewSource(root string, fw Framework, opts ...SourceOption) *Source {
	s := &Source{
		fw:       fw,
		logger:   slog.Default(),
		bundles:  make(map[string]installed),
		root:     root,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the bundle directory.
func (s *Source) Root() string {
	return s.root
}

// ModuleID returns the framework ID of the module installed from dir.
func (s *Source) ModuleID(dir string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[dir]
	return b.id, ok
}

// Sync installs new bundles, updates bundles whose content changed and
// uninstalls bundles that disappeared. A bundle that fails to load keeps
// its current installation. Per-bundle failures are reported, not
// returned.
func (s *Source) Sync(ctx context.Context) (*SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirs, err := s.discover()
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	seen := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		seen[dir] = true
		s.syncBundle(dir, report)
	}

	for _, dir := range slices.Sorted(maps.Keys(s.bundles)) {
		if seen[dir] {
			continue
		}
		s.uninstall(dir, report)
	}

	if report.Changed() || len(report.Failed) > 0 {
		s.logger.Info("bundles synced",
			"root", s.root,
			"installed", len(report.Installed),
			"updated", len(report.Updated),
			"reinstalled", len(report.Reinstalled),
			"uninstalled", len(report.Uninstalled),
			"failed", len(report.Failed))
	}
	return report, nil
}

// discover returns the sorted bundle directory names under root.
func (s *Source) discover() ([]string, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("bundle root: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(s.root), "*/"+ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("glob bundles: %w", err)
	}

	dirs := make([]string, 0, len(matches))
	for _, m := range matches {
		dir := path.Dir(m)
		if strings.HasPrefix(dir, ".") {
			continue
		}
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return dirs, nil
}

func (s *Source) syncBundle(dir string, report *SyncReport) {
	logger := s.logger.With("bundle", dir)

	if _, err := module.NewSymbolicName(dir); err != nil {
		s.failed(logger, report, dir, fmt.Errorf("invalid bundle directory name: %w", err))
		return
	}

	b, err := Load(filepath.Join(s.root, dir))
	if err != nil {
		s.failed(logger, report, dir, err)
		return
	}

	current, ok := s.bundles[dir]
	switch {
	case !ok:
		if err := s.install(b); err != nil {
			s.failed(logger, report, dir, err)
			return
		}
		report.Installed = append(report.Installed, dir)
		s.metrics.BundleAction(ActionInstall)
		logger.Debug("bundle installed", "module", b.Manifest.Name, "version", b.Manifest.Version)

	case current.digest.Equals(b.Digest):

	case current.name != b.Manifest.Name:
		if err := s.remove(dir); err != nil {
			s.failed(logger, report, dir, err)
			return
		}
		if err := s.install(b); err != nil {
			s.failed(logger, report, dir, err)
			return
		}
		report.Reinstalled = append(report.Reinstalled, dir)
		s.metrics.BundleAction(ActionReinstall)
		logger.Debug("bundle reinstalled", "previous", current.name, "module", b.Manifest.Name)

	default:
		if err := s.update(current, b); err != nil {
			s.failed(logger, report, dir, err)
			return
		}
		report.Updated = append(report.Updated, dir)
		s.metrics.BundleAction(ActionUpdate)
		logger.Debug("bundle updated", "module", b.Manifest.Name, "version", b.Manifest.Version)
	}
}

func (s *Source) install(b *Bundle) error {
	m, err := s.fw.Install(b.Manifest.Definition(b.Resources))
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := s.fw.Start(m.ID()); err != nil {
		_ = s.fw.Uninstall(m.ID())
		return fmt.Errorf("start: %w", err)
	}
	s.bundles[b.Dir] = installed{id: m.ID(), name: b.Manifest.Name, digest: b.Digest}
	return nil
}

// update stops the module around the content swap so that listeners see
// the new content as a fresh activation. A failed update restarts the
// previous content.
func (s *Source) update(current installed, b *Bundle) error {
	if err := s.fw.Stop(current.id); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	updateErr := s.fw.Update(current.id, b.Manifest.Definition(b.Resources))
	if err := s.fw.Start(current.id); err != nil {
		return errors.Join(updateErr, fmt.Errorf("start: %w", err))
	}
	if updateErr != nil {
		return fmt.Errorf("update: %w", updateErr)
	}
	s.bundles[b.Dir] = installed{id: current.id, name: b.Manifest.Name, digest: b.Digest}
	return nil
}

func (s *Source) uninstall(dir string, report *SyncReport) {
	if err := s.remove(dir); err != nil {
		s.failed(s.logger.With("bundle", dir), report, dir, err)
		return
	}
	report.Uninstalled = append(report.Uninstalled, dir)
	s.metrics.BundleAction(ActionUninstall)
	s.logger.Debug("bundle uninstalled", "bundle", dir)
}

func (s *Source) remove(dir string) error {
	current := s.bundles[dir]
	delete(s.bundles, dir)
	if err := s.fw.Uninstall(current.id); err != nil && !errors.Is(err, module.ErrModuleNotFound) {
		return fmt.Errorf("uninstall: %w", err)
	}
	return nil
}

func (s *Source) failed(logger *slog.Logger, report *SyncReport, dir string, err error) {
	report.fail(dir, err)
	s.metrics.BundleAction(ActionFailed)
	logger.Warn("bundle sync failed", "error", err)
}

// Close uninstalls every bundle the source installed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, dir := range slices.Sorted(maps.Keys(s.bundles)) {
		if err := s.remove(dir); err != nil {
			errs = append(errs, fmt.Errorf("bundle %s: %w", dir, err))
			continue
		}
		s.metrics.BundleAction(ActionUninstall)
	}
	return errors.Join(errs...)
}

// Watch syncs once, then resyncs whenever the bundle tree changes and the
// changes have been quiet for the debounce delay. It blocks until ctx is
// done.
func (s *Source) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := s.addWatches(fsw); err != nil {
		return err
	}
	if _, err := s.Sync(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(s.debounce / 2)
	defer ticker.Stop()

	s.logger.Info("watching bundles", "root", s.root, "debounce", s.debounce)

	var (
		pending    bool
		lastChange time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					s.watchDir(fsw, event.Name)
				}
			}
			pending = true
			lastChange = time.Now()
			s.logger.Debug("bundle change detected", "path", event.Name, "op", event.Op.String())

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			if !pending || time.Since(lastChange) < s.debounce {
				continue
			}
			pending = false
			if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("bundle resync failed", "error", err)
			}
		}
	}
}

// addWatches watches root and every non-hidden directory below it.
func (s *Source) addWatches(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != s.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// watchDir adds a newly created directory tree to the watcher.
func (s *Source) watchDir(fsw *fsnotify.Watcher, dir string) {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
	if err != nil {
		s.logger.Warn("failed to watch new directory", "path", dir, "error", err)
	}
}

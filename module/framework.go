package module

import (
	"cmp"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"sync"

	"github.com/reglet-dev/npm-portlet-extender/capability"
)

// Definition describes a module to install or the new content of an update.
type Definition struct {
	// Resources is the module's resource bundle. Nil means no resources.
	Resources    fs.FS
	SymbolicName string
	Version      string
	Requirements []capability.Requirement
}

// Framework is an in-memory module framework. Lifecycle calls deliver
// events synchronously on the caller's goroutine, so concurrent calls for
// different modules yield concurrent notifications.
type Framework struct {
	logger    *slog.Logger
	modules   map[int64]*installedModule
	listeners map[int]Listener
	provided  []capability.Capability
	nextID    int64
	nextSub   int
	mu        sync.RWMutex
}

// FrameworkOption configures a Framework.
type FrameworkOption func(*Framework)

// WithLogger sets the framework logger.
func WithLogger(logger *slog.Logger) FrameworkOption {
	return func(f *Framework) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithProvidedCapabilities adds capabilities that module requirements are
// resolved against.
func WithProvidedCapabilities(caps ...capability.Capability) FrameworkOption {
	return func(f *Framework) {
		f.provided = append(f.provided, caps...)
	}
}

// NewFramework creates an empty framework.
func NewFramework(opts ...FrameworkOption) *Framework {
	f := &Framework{
		logger:    slog.Default(),
		modules:   make(map[int64]*installedModule),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe implements Source.
func (f *Framework) Subscribe(l Listener) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.listeners[id] = l
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

// Active implements Source. Modules are ordered by ID.
func (f *Framework) Active() []Module {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Module
	for _, m := range f.modules {
		if m.State() == StateActive {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Module) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// Get returns the module with the given ID.
func (f *Framework) Get(id int64) (Module, error) {
	m, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Modules returns every installed module ordered by ID.
func (f *Framework) Modules() []Module {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Module, 0, len(f.modules))
	for _, m := range f.modules {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Module) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// Install validates and resolves def and adds it in StateInstalled. A
// mandatory requirement without a provider fails the install.
func (f *Framework) Install(def Definition) (Module, error) {
	name, err := NewSymbolicName(def.SymbolicName)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	wires, err := capability.Resolve(def.Requirements, f.provided)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}

	f.nextID++
	m := &installedModule{
		id:        f.nextID,
		name:      name.String(),
		version:   def.Version,
		resources: def.Resources,
		wires:     wires,
		state:     StateInstalled,
	}
	f.modules[m.id] = m

	f.logger.Debug("module installed", "module_id", m.id, "module", m.name, "version", m.version)
	return m, nil
}

// Start activates a module and delivers EventActivated. Starting an
// active module is a no-op.
func (f *Framework) Start(id int64) error {
	m, err := f.lookup(id)
	if err != nil {
		return err
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	switch m.State() {
	case StateActive:
		return nil
	case StateRemoved:
		return &StateError{Op: "start", ID: id, State: StateRemoved}
	}

	m.setState(StateActive)
	f.logger.Debug("module started", "module_id", id, "module", m.name)
	f.dispatch(Event{Kind: EventActivated, Module: m})
	return nil
}

// Stop deactivates a module and delivers EventRemoved. Stopping an
// inactive module is a no-op.
func (f *Framework) Stop(id int64) error {
	m, err := f.lookup(id)
	if err != nil {
		return err
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	if m.State() != StateActive {
		return nil
	}

	m.setState(StateResolved)
	f.logger.Debug("module stopped", "module_id", id, "module", m.name)
	f.dispatch(Event{Kind: EventRemoved, Module: m})
	return nil
}

// Update replaces a module's version, requirements and resources in place.
// An active module stays active and EventModified is delivered.
func (f *Framework) Update(id int64, def Definition) error {
	m, err := f.lookup(id)
	if err != nil {
		return err
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	if m.State() == StateRemoved {
		return &StateError{Op: "update", ID: id, State: StateRemoved}
	}

	f.mu.RLock()
	wires, err := capability.Resolve(def.Requirements, f.provided)
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("resolve %s: %w", m.name, err)
	}

	m.update(def.Version, def.Resources, wires)
	f.logger.Debug("module updated", "module_id", id, "module", m.name, "version", def.Version)

	if m.State() == StateActive {
		f.dispatch(Event{Kind: EventModified, Module: m})
	}
	return nil
}

// Uninstall stops the module if needed and removes it permanently.
func (f *Framework) Uninstall(id int64) error {
	m, err := f.lookup(id)
	if err != nil {
		return err
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	wasActive := m.State() == StateActive
	m.setState(StateRemoved)

	f.mu.Lock()
	delete(f.modules, id)
	f.mu.Unlock()

	f.logger.Debug("module uninstalled", "module_id", id, "module", m.name)
	if wasActive {
		f.dispatch(Event{Kind: EventRemoved, Module: m})
	}
	return nil
}

func (f *Framework) lookup(id int64) (*installedModule, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	m, ok := f.modules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrModuleNotFound, id)
	}
	return m, nil
}

// dispatch delivers ev to a snapshot of the listeners in subscription
// order. Callers hold the module's ops lock, which keeps events for one
// module ordered.
func (f *Framework) dispatch(ev Event) {
	f.mu.RLock()
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, f.listeners[id])
	}
	f.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

type installedModule struct {
	resources fs.FS
	name      string
	version   string
	wires     []capability.Wire
	id        int64
	state     State
	mu        sync.RWMutex
	ops       sync.Mutex
}

func (m *installedModule) ID() int64            { return m.id }
func (m *installedModule) SymbolicName() string { return m.name }

func (m *installedModule) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *installedModule) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *installedModule) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *installedModule) update(version string, resources fs.FS, wires []capability.Wire) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = version
	m.resources = resources
	m.wires = wires
}

// RequiredWires implements capability.Wiring.
func (m *installedModule) RequiredWires(namespace string) []capability.Wire {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []capability.Wire
	for _, w := range m.wires {
		if w.Requirement.Namespace == namespace {
			out = append(out, w)
		}
	}
	return out
}

// Open implements Module.
func (m *installedModule) Open(name string) (io.ReadCloser, error) {
	m.mu.RLock()
	resources := m.resources
	m.mu.RUnlock()

	name = path.Clean(name)
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if resources == nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	f, err := resources.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return f, nil
}

func (m *installedModule) String() string {
	return fmt.Sprintf("%s [%d]", m.name, m.id)
}

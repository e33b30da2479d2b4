package extender

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sync"

	"github.com/reglet-dev/npm-portlet-extender/capability"
	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	"github.com/reglet-dev/npm-portlet-extender/metrics"
	"github.com/reglet-dev/npm-portlet-extender/module"
	"github.com/reglet-dev/npm-portlet-extender/parser"
	"github.com/reglet-dev/npm-portlet-extender/portlet"
	"github.com/reglet-dev/npm-portlet-extender/properties"
	"github.com/reglet-dev/npm-portlet-extender/registry"
)

// slot holds the registration of one module. A nil reg marks an
// activation in progress.
type slot struct {
	reg registry.Registration
}

// Tracker keeps exactly one portlet registration per active module that
// opts into the extender. It is bound to one JSON parser service instance
// and is discarded, with every registration revoked, when that service
// goes away.
type Tracker struct {
	source         module.Source
	registry       registry.ComponentRegistry
	parser         parser.DescriptorParser
	filter         *capability.Filter
	logger         *slog.Logger
	metrics        *metrics.Metrics
	slots          map[int64]*slot
	unsubscribe    func()
	descriptorPath string

	// lifecycle is held for reading by event handlers and for writing by
	// Open and Close.
	lifecycle sync.RWMutex
	mu        sync.Mutex
	opened    bool
	closed    bool
}

// NewTracker creates a tracker that parses descriptors with json and
// registers portlets in reg. It does nothing until Open.
func NewTracker(source module.Source, reg registry.ComponentRegistry, json jsonvalue.Parser, opts ...Option) *Tracker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newTracker(source, reg, json, o)
}

func newTracker(source module.Source, reg registry.ComponentRegistry, json jsonvalue.Parser, o options) *Tracker {
	return &Tracker{
		source:         source,
		registry:       reg,
		parser:         parser.NewJSONDescriptorParser(json, o.parserOpts...),
		filter:         capability.NewFilter(o.filterOpts...),
		logger:         o.logger,
		metrics:        o.metrics,
		descriptorPath: o.descriptorPath,
		slots:          make(map[int64]*slot),
	}
}

// Open subscribes to module events and then processes every module that
// is already active, so modules activated while the JSON service was
// absent are picked up. A module seen by both paths is registered once.
func (t *Tracker) Open() error {
	t.lifecycle.Lock()
	if t.closed {
		t.lifecycle.Unlock()
		return ErrDependencyUnavailable
	}
	if t.opened {
		t.lifecycle.Unlock()
		return nil
	}
	t.opened = true
	t.unsubscribe = t.source.Subscribe(func(ev module.Event) {
		_ = t.HandleEvent(ev)
	})
	t.lifecycle.Unlock()

	active := t.source.Active()
	t.logger.Debug("module tracker opened", "active_modules", len(active))
	for _, m := range active {
		if err := t.HandleEvent(module.Event{Kind: module.EventActivated, Module: m}); errors.Is(err, ErrDependencyUnavailable) {
			return err
		}
	}
	return nil
}

// Close fences off event handling, waits for handlers in flight and
// revokes every registration. It returns the number revoked.
func (t *Tracker) Close() int {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.closed {
		return 0
	}
	t.closed = true
	if t.unsubscribe != nil {
		t.unsubscribe()
	}

	t.mu.Lock()
	ids := make([]int64, 0, len(t.slots))
	for id := range t.slots {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, cmp.Compare[int64])
	regs := make([]registry.Registration, 0, len(ids))
	for _, id := range ids {
		if s := t.slots[id]; s.reg != nil {
			regs = append(regs, s.reg)
		}
	}
	clear(t.slots)
	t.mu.Unlock()

	revoked := 0
	for _, reg := range regs {
		if err := reg.Unregister(); err != nil {
			t.logger.Warn("failed to unregister portlet", "registration", reg.ID(), "error", err)
			continue
		}
		revoked++
	}
	t.metrics.Unregistered(revoked)

	t.logger.Info("module tracker closed", "revoked", revoked)
	return revoked
}

// HandleEvent applies one module lifecycle event. Activation failures are
// logged, counted and returned as *ModuleError; they never affect other
// modules. After Close it returns ErrDependencyUnavailable.
func (t *Tracker) HandleEvent(ev module.Event) error {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	if t.closed {
		t.logger.Debug("module event dropped, tracker closed",
			"event", ev.Kind.String(),
			"module_id", ev.Module.ID(),
			"module", ev.Module.SymbolicName())
		return ErrDependencyUnavailable
	}

	switch ev.Kind {
	case module.EventActivated:
		return t.activate(ev.Module)
	case module.EventRemoved:
		t.remove(ev.Module)
	case module.EventModified:
		// Descriptors are read once per activation.
		t.logger.Debug("module modified, ignored",
			"module_id", ev.Module.ID(),
			"module", ev.Module.SymbolicName())
	}
	return nil
}

// Registrations returns the number of registrations held.
func (t *Tracker) Registrations() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, s := range t.slots {
		if s.reg != nil {
			n++
		}
	}
	return n
}

// Registration returns the registration held for a module.
func (t *Tracker) Registration(moduleID int64) (registry.Registration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[moduleID]
	if !ok || s.reg == nil {
		return nil, false
	}
	return s.reg, true
}

func (t *Tracker) activate(m module.Module) error {
	logger := t.logger.With("module_id", m.ID(), "module", m.SymbolicName())

	if !t.filter.Qualifies(m) {
		logger.Debug("module does not require the extender")
		t.metrics.Skipped(metrics.SkipNotQualified)
		return nil
	}

	s, ok := t.reserve(m.ID())
	if !ok {
		logger.Debug("module already registered, activation ignored")
		t.metrics.Skipped(metrics.SkipDuplicate)
		return nil
	}

	reg, err := t.register(m)
	if err != nil {
		t.release(m.ID(), s)
		logger.Warn("npm portlet not registered", "error", err)
		t.metrics.Skipped(skipReason(err))
		return &ModuleError{ModuleID: m.ID(), Module: m.SymbolicName(), Err: err}
	}

	if !t.commit(m, s, reg) {
		logger.Debug("module went away during activation, registration revoked")
		if err := reg.Unregister(); err != nil {
			logger.Warn("failed to unregister portlet", "registration", reg.ID(), "error", err)
		}
		return nil
	}

	t.metrics.Registered()
	logger.Info("npm portlet registered", "registration", reg.ID())
	return nil
}

// register reads the module's descriptor and registers its portlet.
func (t *Tracker) register(m module.Module) (registry.Registration, error) {
	rc, err := m.Open(t.descriptorPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &parser.MalformedDescriptorError{
				Reason: "missing",
				Err:    fmt.Errorf("%w: %s", ErrDescriptorNotFound, t.descriptorPath),
			}
		}
		return nil, &parser.MalformedDescriptorError{Reason: "unreadable", Err: err}
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			t.logger.Warn("failed to close descriptor", "module_id", m.ID(), "error", cerr)
		}
	}()

	d, err := t.parser.Parse(rc)
	if err != nil {
		return nil, err
	}

	props, err := properties.Flatten(d.Portlet)
	if err != nil {
		return nil, &parser.MalformedDescriptorError{Reason: "portlet", Err: err}
	}
	props[portlet.NameProperty] = d.Name

	p := portlet.New(d.Name, d.Version, portlet.WithLogger(t.logger))
	reg, err := t.registry.Register([]string{portlet.ServiceType}, p, props)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", p.ModuleID(), err)
	}
	return reg, nil
}

func (t *Tracker) remove(m module.Module) {
	t.mu.Lock()
	s, ok := t.slots[m.ID()]
	if ok {
		delete(t.slots, m.ID())
	}
	t.mu.Unlock()

	if !ok || s.reg == nil {
		return
	}

	logger := t.logger.With("module_id", m.ID(), "module", m.SymbolicName())
	if err := s.reg.Unregister(); err != nil {
		logger.Warn("failed to unregister portlet", "registration", s.reg.ID(), "error", err)
		return
	}
	t.metrics.Unregistered(1)
	logger.Info("npm portlet unregistered", "registration", s.reg.ID())
}

// reserve claims the slot for a module. It fails when the module already
// has a registration or an activation in progress.
func (t *Tracker) reserve(id int64) (*slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.slots[id]; ok {
		return nil, false
	}
	s := &slot{}
	t.slots[id] = s
	return s, true
}

func (t *Tracker) release(id int64, s *slot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.slots[id] == s {
		delete(t.slots, id)
	}
}

// commit stores reg in the reserved slot. It fails when the module was
// removed or stopped while the descriptor was processed.
func (t *Tracker) commit(m module.Module, s *slot, reg registry.Registration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.slots[m.ID()] != s {
		return false
	}
	if m.State() != module.StateActive {
		delete(t.slots, m.ID())
		return false
	}
	s.reg = reg
	return true
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrDescriptorNotFound):
		return metrics.SkipDescriptorMissing
	case errors.Is(err, parser.ErrMalformedDescriptor):
		return metrics.SkipMalformed
	default:
		return metrics.SkipRejected
	}
}

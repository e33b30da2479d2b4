// Package extender registers a renderable portlet for every active module
// that opts into the npm portlet extender. Work only happens while a JSON
// parser service is available: the Extender creates a Tracker when one
// appears and tears it down, revoking every registration, when it goes.
package extender

import (
	"log/slog"
	"sync"

	"github.com/reglet-dev/npm-portlet-extender/capability"
	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	"github.com/reglet-dev/npm-portlet-extender/module"
	"github.com/reglet-dev/npm-portlet-extender/registry"
	"github.com/reglet-dev/npm-portlet-extender/service"
)

// ContractVersion is the version of the extender contract this package
// implements.
const ContractVersion = "1.0.0"

// ProvidedCapability is the capability modules wire to in order to opt in.
func ProvidedCapability() capability.Capability {
	return capability.Capability{
		Namespace: capability.ExtenderNamespace,
		Provider:  "npm-portlet-extender",
		Attributes: map[string]any{
			capability.ExtenderNamespace: capability.ExtensionName,
			capability.VersionAttribute:  ContractVersion,
		},
	}
}

// Extender is the dependency gate. It binds to at most one JSON parser
// service at a time and owns the Tracker created for it.
type Extender struct {
	source   module.Source
	registry registry.ComponentRegistry
	services *service.Registry[jsonvalue.Parser]
	logger   *slog.Logger
	o        options

	serviceTracker *service.Tracker[jsonvalue.Parser]

	// mu serialises creation and destruction of the tracker. tracker is
	// non-nil exactly while a JSON service is bound.
	mu      sync.Mutex
	tracker *Tracker
}

// New creates an extender watching source, registering into reg and
// depending on the JSON parser services published in services.
func New(source module.Source, reg registry.ComponentRegistry, services *service.Registry[jsonvalue.Parser], opts ...Option) *Extender {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Extender{
		source:   source,
		registry: reg,
		services: services,
		logger:   o.logger,
		o:        o,
	}
	e.serviceTracker = service.NewTracker[jsonvalue.Parser](services, e)
	return e
}

// Start begins following the JSON parser service.
func (e *Extender) Start() {
	e.o.metrics.SetDependencyAvailable(false)
	e.serviceTracker.Open()
}

// Stop stops following the service and revokes every registration.
func (e *Extender) Stop() {
	e.serviceTracker.Close()
}

// AddingService implements service.Customizer. The first JSON service
// offered creates and opens the tracker; later ones are declined while it
// exists.
func (e *Extender) AddingService(ref *service.Reference[jsonvalue.Parser]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tracker != nil {
		return false
	}

	t := newTracker(e.source, e.registry, ref.Service, e.o)
	e.tracker = t
	e.o.metrics.SetDependencyAvailable(true)
	e.logger.Info("json parser service bound, tracking modules", "service", ref.String())

	if err := t.Open(); err != nil {
		e.logger.Warn("module tracker failed to open", "service", ref.String(), "error", err)
	}
	return true
}

// RemovedService implements service.Customizer. The tracker is closed,
// revoking all registrations, and discarded.
func (e *Extender) RemovedService(ref *service.Reference[jsonvalue.Parser]) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tracker == nil {
		return
	}

	revoked := e.tracker.Close()
	e.tracker = nil
	e.o.metrics.SetDependencyAvailable(false)
	e.logger.Info("json parser service gone, registrations revoked",
		"service", ref.String(),
		"revoked", revoked)
}

// Available reports whether a JSON parser service is bound.
func (e *Extender) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker != nil
}

// Registrations returns the number of portlets currently registered.
func (e *Extender) Registrations() int {
	e.mu.Lock()
	t := e.tracker
	e.mu.Unlock()

	if t == nil {
		return 0
	}
	return t.Registrations()
}

// Tracker returns the current tracker, or nil while no JSON service is
// bound.
func (e *Extender) Tracker() *Tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker
}

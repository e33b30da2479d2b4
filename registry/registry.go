package registry

import (
	"cmp"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/reglet-dev/npm-portlet-extender/properties"
)

// Registry implements ComponentRegistry using in-memory storage.
type Registry struct {
	logger  *slog.Logger
	entries map[string]*ServiceRegistration
	unique  []string
	seq     uint64
	mu      sync.RWMutex
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithUniqueProperty rejects a registration whose value for key equals that
// of an existing registration sharing a service type.
func WithUniqueProperty(key string) RegistryOption {
	return func(r *Registry) {
		r.unique = append(r.unique, key)
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty component registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:  slog.Default(),
		entries: make(map[string]*ServiceRegistration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register implements ComponentRegistry. The properties are copied.
func (r *Registry) Register(serviceTypes []string, instance any, props properties.Properties) (Registration, error) {
	if len(serviceTypes) == 0 {
		return nil, &RejectionError{Reason: "no service types"}
	}
	if instance == nil {
		return nil, &RejectionError{ServiceTypes: serviceTypes, Reason: "nil instance"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.unique {
		value, ok := props[key]
		if !ok {
			continue
		}
		for _, existing := range r.entries {
			if sharesType(existing.serviceTypes, serviceTypes) && reflect.DeepEqual(existing.props[key], value) {
				return nil, &RejectionError{
					ServiceTypes: serviceTypes,
					Reason:       fmt.Sprintf("duplicate %s=%v (registration %s)", key, value, existing.id),
				}
			}
		}
	}

	r.seq++
	reg := &ServiceRegistration{
		registry:     r,
		id:           uuid.NewString(),
		seq:          r.seq,
		serviceTypes: slices.Clone(serviceTypes),
		instance:     instance,
		props:        props.Clone(),
	}
	r.entries[reg.id] = reg

	r.logger.Debug("component registered", "registration", reg.id, "service_types", serviceTypes)
	return reg, nil
}

// List returns the registrations carrying serviceType in registration
// order. An empty serviceType lists everything.
func (r *Registry) List(serviceType string) []*ServiceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ServiceRegistration, 0, len(r.entries))
	for _, reg := range r.entries {
		if serviceType == "" || slices.Contains(reg.serviceTypes, serviceType) {
			out = append(out, reg)
		}
	}
	slices.SortFunc(out, func(a, b *ServiceRegistration) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

// Find returns the first registration of serviceType whose property key
// equals value.
func (r *Registry) Find(serviceType, key string, value any) (*ServiceRegistration, bool) {
	for _, reg := range r.List(serviceType) {
		if reflect.DeepEqual(reg.props[key], value) {
			return reg, true
		}
	}
	return nil, false
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) unregister(reg *ServiceRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[reg.id]; !ok {
		return fmt.Errorf("registration %s: %w", reg.id, ErrNotRegistered)
	}
	delete(r.entries, reg.id)

	r.logger.Debug("component unregistered", "registration", reg.id, "service_types", reg.serviceTypes)
	return nil
}

func sharesType(a, b []string) bool {
	for _, t := range a {
		if slices.Contains(b, t) {
			return true
		}
	}
	return false
}

// ServiceRegistration is a live entry of a Registry.
type ServiceRegistration struct {
	instance     any
	registry     *Registry
	props        properties.Properties
	id           string
	serviceTypes []string
	seq          uint64
}

// ID implements Registration.
func (s *ServiceRegistration) ID() string {
	return s.id
}

// Properties implements Registration.
func (s *ServiceRegistration) Properties() properties.Properties {
	return s.props.Clone()
}

// ServiceTypes returns the service types the instance is registered under.
func (s *ServiceRegistration) ServiceTypes() []string {
	return slices.Clone(s.serviceTypes)
}

// Instance returns the registered instance.
func (s *ServiceRegistration) Instance() any {
	return s.instance
}

// Unregister implements Registration.
func (s *ServiceRegistration) Unregister() error {
	return s.registry.unregister(s)
}

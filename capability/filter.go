package capability

// Filter decides whether a module opts into an extender by looking at its
// resolved wires in the extender namespace.
type Filter struct {
	namespace string
	name      string
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithNamespace sets the negotiation namespace inspected.
func WithNamespace(namespace string) FilterOption {
	return func(f *Filter) {
		if namespace != "" {
			f.namespace = namespace
		}
	}
}

// WithExtensionName sets the extension identifier a wire must carry.
func WithExtensionName(name string) FilterOption {
	return func(f *Filter) {
		if name != "" {
			f.name = name
		}
	}
}

// NewFilter creates a filter for the npm portlet extender.
func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{
		namespace: ExtenderNamespace,
		name:      ExtensionName,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Namespace returns the namespace the filter inspects.
func (f *Filter) Namespace() string {
	return f.namespace
}

// Name returns the extension identifier the filter matches.
func (f *Filter) Name() string {
	return f.name
}

// Qualifies reports whether any required wire in the namespace is provided
// by a capability whose namespace attribute equals the extension name.
// A module without such a wire does not qualify.
func (f *Filter) Qualifies(w Wiring) bool {
	if w == nil {
		return false
	}
	for _, wire := range w.RequiredWires(f.namespace) {
		attr, ok := wire.Capability.Attribute(f.namespace)
		if !ok {
			continue
		}
		if s, ok := attr.(string); ok && s == f.name {
			return true
		}
	}
	return false
}

// OptIn applies the default filter.
func OptIn(w Wiring) bool {
	return NewFilter().Qualifies(w)
}

package extender

import (
	"log/slog"

	"github.com/reglet-dev/npm-portlet-extender/capability"
	"github.com/reglet-dev/npm-portlet-extender/metrics"
	"github.com/reglet-dev/npm-portlet-extender/parser"
)

// DefaultDescriptorPath is where a module ships its npm package.json.
const DefaultDescriptorPath = "META-INF/resources/package.json"

type options struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	descriptorPath string
	filterOpts     []capability.FilterOption
	parserOpts     []parser.Option
}

func defaultOptions() options {
	return options{
		logger:         slog.Default(),
		descriptorPath: DefaultDescriptorPath,
	}
}

// Option configures an Extender and the trackers it creates.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records registrations and skipped modules in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDescriptorPath overrides the descriptor location within a module.
func WithDescriptorPath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.descriptorPath = path
		}
	}
}

// WithMaxDescriptorBytes bounds the descriptor size.
func WithMaxDescriptorBytes(n int64) Option {
	return func(o *options) {
		o.parserOpts = append(o.parserOpts, parser.WithMaxBytes(n))
	}
}

// WithExtension overrides the negotiation namespace and extension name a
// module must be wired to. Empty values keep the defaults.
func WithExtension(namespace, name string) Option {
	return func(o *options) {
		o.filterOpts = append(o.filterOpts,
			capability.WithNamespace(namespace),
			capability.WithExtensionName(name))
	}
}

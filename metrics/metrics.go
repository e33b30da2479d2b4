// Package metrics exposes the extender's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "npm_portlet_extender"

// Reasons a module activation ends without a registration.
const (
	SkipNotQualified      = "not_qualified"
	SkipDescriptorMissing = "descriptor_missing"
	SkipMalformed         = "malformed_descriptor"
	SkipRejected          = "registry_rejected"
	SkipDuplicate         = "duplicate_activation"
)

// Metrics contains the extender metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RegistrationsTotal   prometheus.Counter
	UnregistrationsTotal prometheus.Counter
	ActiveRegistrations  prometheus.Gauge
	ModulesSkipped       *prometheus.CounterVec
	DependencyAvailable  prometheus.Gauge
	TrackerOpens         prometheus.Counter
	BundleActions        *prometheus.CounterVec
}

// NewMetrics creates the metric collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		RegistrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portlet",
			Name:      "registrations_total",
			Help:      "Total number of portlet registrations",
		}),

		UnregistrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portlet",
			Name:      "unregistrations_total",
			Help:      "Total number of portlet registrations revoked",
		}),

		ActiveRegistrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portlet",
			Name:      "active",
			Help:      "Number of portlet registrations currently held",
		}),

		ModulesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "skipped_total",
				Help:      "Module activations that produced no registration, by reason",
			},
			[]string{"reason"},
		),

		DependencyAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "available",
			Help:      "JSON parser service availability (0=absent, 1=bound)",
		}),

		TrackerOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "opens_total",
			Help:      "Number of times the module tracker was created",
		}),

		BundleActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bundle",
				Name:      "actions_total",
				Help:      "Filesystem bundle lifecycle actions, by action",
			},
			[]string{"action"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RegistrationsTotal,
		m.UnregistrationsTotal,
		m.ActiveRegistrations,
		m.ModulesSkipped,
		m.DependencyAvailable,
		m.TrackerOpens,
		m.BundleActions,
	}
}

// Registered records a new portlet registration.
func (m *Metrics) Registered() {
	if m == nil {
		return
	}
	m.RegistrationsTotal.Inc()
	m.ActiveRegistrations.Inc()
}

// Unregistered records n revoked registrations.
func (m *Metrics) Unregistered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UnregistrationsTotal.Add(float64(n))
	m.ActiveRegistrations.Sub(float64(n))
}

// Skipped records an activation that produced no registration.
func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.ModulesSkipped.WithLabelValues(reason).Inc()
}

// SetDependencyAvailable records whether the JSON service is bound.
func (m *Metrics) SetDependencyAvailable(available bool) {
	if m == nil {
		return
	}
	if available {
		m.DependencyAvailable.Set(1)
		m.TrackerOpens.Inc()
		return
	}
	m.DependencyAvailable.Set(0)
}

// BundleAction records a filesystem bundle lifecycle action.
func (m *Metrics) BundleAction(action string) {
	if m == nil {
		return
	}
	m.BundleActions.WithLabelValues(action).Inc()
}

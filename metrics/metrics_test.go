package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/reglet-dev/npm-portlet-extender/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics()

	m.Registered()
	m.Registered()
	m.Registered()
	m.Unregistered(2)
	m.Unregistered(0)
	m.Skipped(metrics.SkipMalformed)
	m.Skipped(metrics.SkipMalformed)
	m.Skipped(metrics.SkipNotQualified)
	m.SetDependencyAvailable(true)
	m.BundleAction("install")

	assert.InDelta(t, 3, testutil.ToFloat64(m.RegistrationsTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.UnregistrationsTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ActiveRegistrations), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ModulesSkipped.WithLabelValues(metrics.SkipMalformed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModulesSkipped.WithLabelValues(metrics.SkipNotQualified)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DependencyAvailable), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TrackerOpens), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BundleActions.WithLabelValues("install")), 0)

	m.SetDependencyAvailable(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.DependencyAvailable), 0)
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Registered()
		m.Unregistered(1)
		m.Skipped(metrics.SkipRejected)
		m.SetDependencyAvailable(true)
		m.BundleAction("update")
	})
}

func TestRegistry_Handler(t *testing.T) {
	t.Parallel()

	r := metrics.NewRegistry()
	r.Metrics.Registered()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "npm_portlet_extender_portlet_registrations_total 1")
	assert.Contains(t, body, "npm_portlet_extender_portlet_active 1")
	assert.Contains(t, body, "go_goroutines")
}

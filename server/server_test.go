package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	extender "github.com/reglet-dev/npm-portlet-extender"
	"github.com/reglet-dev/npm-portlet-extender/capability"
	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	"github.com/reglet-dev/npm-portlet-extender/metrics"
	"github.com/reglet-dev/npm-portlet-extender/module"
	"github.com/reglet-dev/npm-portlet-extender/registry"
	"github.com/reglet-dev/npm-portlet-extender/server"
	"github.com/reglet-dev/npm-portlet-extender/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	fw      *module.Framework
	reg     *registry.Registry
	ext     *extender.Extender
	toggle  *server.ParserToggle
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	m := metrics.NewRegistry()

	fw := module.NewFramework(
		module.WithLogger(logger),
		module.WithProvidedCapabilities(extender.ProvidedCapability()),
	)
	reg := registry.NewRegistry(registry.WithLogger(logger))
	services := service.NewRegistry[jsonvalue.Parser]()
	ext := extender.New(fw, reg, services,
		extender.WithLogger(logger),
		extender.WithMetrics(m.Metrics),
	)
	ext.Start()
	t.Cleanup(ext.Stop)

	toggle := server.NewParserToggle(services, jsonvalue.NewParser(), "default")
	require.NoError(t, toggle.SetEnabled(true))

	srv := server.New(ext, reg,
		server.WithLogger(logger),
		server.WithMetricsHandler(m.Handler()),
		server.WithAdmin(toggle),
	)
	return &fixture{fw: fw, reg: reg, ext: ext, toggle: toggle, handler: srv.Handler()}
}

func (f *fixture) install(t *testing.T, symbolicName, descriptor string) {
	t.Helper()
	m, err := f.fw.Install(module.Definition{
		SymbolicName: symbolicName,
		Version:      "1.0.0",
		Resources: fstest.MapFS{
			extender.DefaultDescriptorPath: {Data: []byte(descriptor)},
		},
		Requirements: []capability.Requirement{{
			Namespace:  capability.ExtenderNamespace,
			Attributes: map[string]string{capability.ExtenderNamespace: capability.ExtensionName},
			Version:    "^1.0.0",
		}},
	})
	require.NoError(t, err)
	require.NoError(t, f.fw.Start(m.ID()))
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestServer_Render(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.install(t, "com.example.foo", `{"name":"foo","version":"1.2.3","portlet":{"category":"sample"}}`)
	f.install(t, "com.example.scoped", `{"name":"@acme/widget","version":"2.0.0"}`)

	t.Run("renders markup", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/portlets/foo?namespace=_ns1_&contextPath=/o/foo", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))

		want := "<div id=\"npm-portlet-_ns1_\"></div>\n" +
			"<script type=\"text/javascript\">\n" +
			"Liferay.Loader.require(\"foo@1.2.3\", function(module) {\n" +
			"module.default({\n" +
			"portletNamespace: \"_ns1_\",\n" +
			"contextPath: \"/o/foo\",\n" +
			"portletElementId: \"npm-portlet-_ns1_\"});});\n" +
			"</script>\n"
		assert.Equal(t, want, rr.Body.String())
	})

	t.Run("scoped package name", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/portlets/@acme/widget?namespace=w", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `Liferay.Loader.require("@acme/widget@2.0.0"`)
		assert.Contains(t, rr.Body.String(), `contextPath: "",`)
	})

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantErr  string
	}{
		{"unknown portlet", "/portlets/nope?namespace=x", http.StatusNotFound, "not_found"},
		{"missing namespace", "/portlets/foo", http.StatusBadRequest, "invalid_namespace"},
		{"script in namespace", "/portlets/foo?namespace=a%22%3E", http.StatusBadRequest, "invalid_namespace"},
		{"relative context path", "/portlets/foo?namespace=x&contextPath=o/foo", http.StatusBadRequest, "invalid_context_path"},
		{"quote in context path", "/portlets/foo?namespace=x&contextPath=/o%22", http.StatusBadRequest, "invalid_context_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodGet, tt.target, "")
			assert.Equal(t, tt.wantCode, rr.Code)

			var resp server.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Error)
		})
	}
}

func TestServer_ListAndHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.install(t, "com.example.foo", `{"name":"foo","version":"1.2.3","portlet":{"tags":["a","b"],"weight":2}}`)

	rr := f.do(http.MethodGet, "/portlets", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var list []server.PortletInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "foo", list[0].Name)
	assert.Equal(t, "1.2.3", list[0].Version)
	assert.NotEmpty(t, list[0].ID)
	assert.Equal(t, "foo", list[0].Properties["javax.portlet.name"])
	assert.Equal(t, []any{"a", "b"}, list[0].Properties["tags"])
	assert.InDelta(t, 2, list[0].Properties["weight"], 0)

	rr = f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"dependency_available":true,"registrations":1}`, rr.Body.String())

	rr = f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "npm_portlet_extender_portlet_active 1")
}

func TestServer_JSONServiceToggle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.install(t, "com.example.foo", `{"name":"foo","version":"1.0.0"}`)
	require.Equal(t, 1, f.reg.Len())

	rr := f.do(http.MethodPost, "/admin/json-service", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"enabled":false}`, rr.Body.String())
	assert.False(t, f.ext.Available())
	assert.Equal(t, 0, f.reg.Len())

	rr = f.do(http.MethodGet, "/healthz", "")
	assert.JSONEq(t, `{"dependency_available":false,"registrations":0}`, rr.Body.String())

	rr = f.do(http.MethodPost, "/admin/json-service", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, f.ext.Available())
	assert.Equal(t, 1, f.reg.Len())

	rr = f.do(http.MethodGet, "/admin/json-service", "")
	assert.JSONEq(t, `{"enabled":true}`, rr.Body.String())

	for _, body := range []string{`{}`, `{"enabled": "yes"}`, `{"enabled": true, "x": 1}`, `not json`} {
		rr = f.do(http.MethodPost, "/admin/json-service", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestServer_AdminDisabled(t *testing.T) {
	t.Parallel()

	srv := server.New(staticStatus{}, registry.NewRegistry(), server.WithLogger(slog.New(slog.DiscardHandler)))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/json-service", strings.NewReader(`{"enabled":true}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type staticStatus struct{}

func (staticStatus) Available() bool    { return false }
func (staticStatus) Registrations() int { return 0 }

func TestServer_Serve(t *testing.T) {
	t.Parallel()

	srv := server.New(staticStatus{}, registry.NewRegistry(), server.WithLogger(slog.New(slog.DiscardHandler)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.JSONEq(t, `{"dependency_available":false,"registrations":0}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

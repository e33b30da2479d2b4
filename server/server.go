// Package server exposes the registered portlets over HTTP: listing,
// rendering, health, metrics and a switch for the JSON parser service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/reglet-dev/npm-portlet-extender/portlet"
	"github.com/reglet-dev/npm-portlet-extender/properties"
	"github.com/reglet-dev/npm-portlet-extender/registry"
)

const (
	shutdownTimeout = 5 * time.Second
	maxAdminBody    = 1 << 10
)

var (
	namespacePattern   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	contextPathPattern = regexp.MustCompile(`^(/[A-Za-z0-9._~\-/]*)?$`)
)

// Status reports the extender state.
type Status interface {
	Available() bool
	Registrations() int
}

// Catalog looks up component registrations.
type Catalog interface {
	List(serviceType string) []*registry.ServiceRegistration
	Find(serviceType, key string, value any) (*registry.ServiceRegistration, bool)
}

// Toggle switches the JSON parser service on and off.
type Toggle interface {
	SetEnabled(enabled bool) error
	Enabled() bool
}

// Server is the extender's HTTP surface.
type Server struct {
	status      Status
	catalog     Catalog
	toggle      Toggle
	metrics     http.Handler
	logger      *slog.Logger
	middlewares []Middleware
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithAdmin enables the /admin/json-service endpoint backed by t.
func WithAdmin(t Toggle) Option {
	return func(s *Server) {
		s.toggle = t
	}
}

// WithMiddleware appends middlewares after the built-in recovery and
// logging middlewares.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, mw...)
	}
}

// New creates a server.
func New(status Status, catalog Catalog, opts ...Option) *Server {
	s := &Server{
		status:  status,
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middlewares applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /portlets", s.handleList)
	mux.HandleFunc("GET /portlets/{name...}", s.handleRender)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.toggle != nil {
		mux.HandleFunc("GET /admin/json-service", s.handleGetJSONService)
		mux.HandleFunc("POST /admin/json-service", s.handleSetJSONService)
	}

	mws := append([]Middleware{
		PanicRecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
	}, s.middlewares...)
	return Chain(mux, mws...)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	DependencyAvailable bool `json:"dependency_available"`
	Registrations       int  `json:"registrations"`
}

// PortletInfo describes one registered portlet.
type PortletInfo struct {
	Properties properties.Properties `json:"properties"`
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Version    string                `json:"version,omitempty"`
}

// JSONServiceState is the body of the admin endpoint.
type JSONServiceState struct {
	Enabled *bool `json:"enabled"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		DependencyAvailable: s.status.Available(),
		Registrations:       s.status.Registrations(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	regs := s.catalog.List(portlet.ServiceType)
	out := make([]PortletInfo, 0, len(regs))
	for _, reg := range regs {
		props := reg.Properties()
		name, _ := props.String(portlet.NameProperty)
		info := PortletInfo{ID: reg.ID(), Name: name, Properties: props}
		if p, ok := reg.Instance().(*portlet.Portlet); ok {
			info.Version = p.Version()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	query := r.URL.Query()

	req := portlet.RenderRequest{
		Namespace:   query.Get("namespace"),
		ContextPath: query.Get("contextPath"),
	}
	if !namespacePattern.MatchString(req.Namespace) {
		writeJSONError(w, http.StatusBadRequest, "invalid_namespace", "namespace must match [A-Za-z0-9_]+")
		return
	}
	if !contextPathPattern.MatchString(req.ContextPath) {
		writeJSONError(w, http.StatusBadRequest, "invalid_context_path", "contextPath must be empty or an absolute URL path")
		return
	}

	reg, ok := s.catalog.Find(portlet.ServiceType, portlet.NameProperty, name)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no portlet named %q", name))
		return
	}
	renderer, ok := reg.Instance().(portlet.Renderer)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "not_renderable", fmt.Sprintf("portlet %q cannot render", name))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderer.Render(w, req)
}

func (s *Server) handleGetJSONService(w http.ResponseWriter, _ *http.Request) {
	enabled := s.toggle.Enabled()
	writeJSON(w, http.StatusOK, JSONServiceState{Enabled: &enabled})
}

func (s *Server) handleSetJSONService(w http.ResponseWriter, r *http.Request) {
	var body JSONServiceState
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON: "+err.Error())
		return
	}
	if body.Enabled == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", `"enabled" is required`)
		return
	}

	if err := s.toggle.SetEnabled(*body.Enabled); err != nil {
		s.logger.Error("json service toggle failed", "enabled", *body.Enabled, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "toggle_failed", err.Error())
		return
	}
	s.logger.Info("json service toggled", "enabled", *body.Enabled)

	enabled := s.toggle.Enabled()
	writeJSON(w, http.StatusOK, JSONServiceState{Enabled: &enabled})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

package portlet

import (
	"io"
	"log/slog"
	"strings"
)

const elementIDPrefix = "npm-portlet-"

// Portlet is the derived component of one npm module. It is immutable.
type Portlet struct {
	logger  *slog.Logger
	name    string
	version string
}

// Option configures a Portlet.
type Option func(*Portlet)

// WithLogger sets the logger used to report render failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Portlet) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates the portlet for the npm package name at version.
func New(name, version string, opts ...Option) *Portlet {
	p := &Portlet{
		logger:  slog.Default(),
		name:    name,
		version: version,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the npm package name.
func (p *Portlet) Name() string {
	return p.name
}

// Version returns the npm package version.
func (p *Portlet) Version() string {
	return p.version
}

// ModuleID returns the name@version address the client loader resolves.
func (p *Portlet) ModuleID() string {
	return p.name + "@" + p.version
}

// ElementID returns the container element id for a namespace.
func ElementID(namespace string) string {
	return elementIDPrefix + namespace
}

// Markup returns the markup Render writes.
func (p *Portlet) Markup(req RenderRequest) string {
	id := ElementID(req.Namespace)

	var b strings.Builder
	b.WriteString(`<div id="` + id + `"></div>` + "\n")
	b.WriteString(`<script type="text/javascript">` + "\n")
	b.WriteString(`Liferay.Loader.require("` + p.ModuleID() + `", function(module) {` + "\n")
	b.WriteString(`module.default({` + "\n")
	b.WriteString(`portletNamespace: "` + req.Namespace + `",` + "\n")
	b.WriteString(`contextPath: "` + req.ContextPath + `",` + "\n")
	b.WriteString(`portletElementId: "` + id + `"});});` + "\n")
	b.WriteString(`</script>` + "\n")
	return b.String()
}

// Render implements Renderer. A failed write is logged and dropped since
// the client is presumed gone.
func (p *Portlet) Render(w io.Writer, req RenderRequest) {
	if _, err := io.WriteString(w, p.Markup(req)); err != nil {
		p.logger.Warn("portlet render failed",
			"portlet", p.ModuleID(),
			"namespace", req.Namespace,
			"error", err)
	}
}

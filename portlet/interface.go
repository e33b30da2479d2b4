// Package portlet provides the component registered for every module that
// opts into the npm portlet extender.
package portlet

import "io"

// ServiceType is the component registry type portlets are published under.
const ServiceType = "javax.portlet.Portlet"

// NameProperty is the registration property carrying the portlet name.
const NameProperty = "javax.portlet.name"

// Renderer writes a component's markup for one request.
type Renderer interface {
	// Render writes the markup to w. Write failures are not returned.
	Render(w io.Writer, req RenderRequest)
}

// RenderRequest carries the host-supplied values of a render call.
type RenderRequest struct {
	// Namespace is the host's unique prefix for this portlet instance.
	Namespace string
	// ContextPath is the web context the module's assets are served from.
	ContextPath string
}

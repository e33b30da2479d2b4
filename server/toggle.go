package server

import (
	"sync"

	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	"github.com/reglet-dev/npm-portlet-extender/service"
)

// ParserToggle publishes and withdraws one JSON parser service on demand.
type ParserToggle struct {
	services *service.Registry[jsonvalue.Parser]
	parser   jsonvalue.Parser
	handle   *service.Handle[jsonvalue.Parser]
	name     string
	mu       sync.Mutex
}

// NewParserToggle creates a toggle for parser, initially unpublished.
func NewParserToggle(services *service.Registry[jsonvalue.Parser], parser jsonvalue.Parser, name string) *ParserToggle {
	return &ParserToggle{services: services, parser: parser, name: name}
}

// SetEnabled publishes or withdraws the parser. Repeating the current
// state is a no-op.
func (t *ParserToggle) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case enabled && t.handle == nil:
		t.handle = t.services.Register(t.parser, service.WithName(t.name))
	case !enabled && t.handle != nil:
		h := t.handle
		t.handle = nil
		return h.Unregister()
	}
	return nil
}

// Enabled reports whether the parser is published.
func (t *ParserToggle) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle != nil
}

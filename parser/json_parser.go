package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// Descriptor is the parsed identity and metadata of a module.
type Descriptor struct {
	// Portlet is the nested metadata subtree; Null when absent.
	Portlet jsonvalue.Value
	Name    string
	Version string
}

// JSONDescriptorParser implements DescriptorParser on top of an injected
// JSON parsing service.
type JSONDescriptorParser struct {
	json     jsonvalue.Parser
	maxBytes int64
}

// Option configures a JSONDescriptorParser.
type Option func(*JSONDescriptorParser)

// WithMaxBytes bounds the descriptor size. Non-positive values keep the
// default.
func WithMaxBytes(n int64) Option {
	return func(p *JSONDescriptorParser) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// NewJSONDescriptorParser creates a parser that decodes with json.
func NewJSONDescriptorParser(json jsonvalue.Parser, opts ...Option) *JSONDescriptorParser {
	p := &JSONDescriptorParser{
		json:     json,
		maxBytes: DefaultMaxDescriptorBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads the descriptor from r and extracts name, version and the
// optional portlet object. A null portlet is treated as absent.
func (p *JSONDescriptorParser) Parse(r io.Reader) (*Descriptor, error) {
	data, err := io.ReadAll(NewLimitedReader(r, p.maxBytes))
	if err != nil {
		if IsSizeLimitExceededError(err) {
			return nil, malformed("descriptor too large", err)
		}
		return nil, malformed("read failed", err)
	}

	doc, err := p.json.Parse(string(data))
	if err != nil {
		return nil, malformed("invalid JSON", err)
	}

	sch, err := descriptorSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc.Interface()); err != nil {
		var ve *validator.ValidationError
		if errors.As(err, &ve) {
			return nil, malformed("schema validation failed", leafError(ve))
		}
		return nil, malformed("schema validation failed", err)
	}

	name, err := doc.StringField("name")
	if err != nil {
		return nil, malformed("name", err)
	}
	version, err := doc.StringField("version")
	if err != nil {
		return nil, malformed("version", err)
	}

	portlet, ok := doc.Field("portlet")
	if ok && !portlet.IsNull() && portlet.Kind() != jsonvalue.KindObject {
		return nil, malformed("portlet", &jsonvalue.TypeError{Want: jsonvalue.KindObject, Got: portlet.Kind()})
	}

	return &Descriptor{
		Name:    name,
		Version: version,
		Portlet: portlet,
	}, nil
}

// leafError reports the first concrete cause instead of the whole tree.
func leafError(ve *validator.ValidationError) error {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Errorf("%s: %s", loc, ve.Message)
}

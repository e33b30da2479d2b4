// Package bundlefs installs modules from a directory of bundles into a
// module framework and keeps the framework in sync with the directory.
//
// Each bundle is a subdirectory holding a module.yaml manifest next to its
// resource files:
//
//	modules/
//	  hello/
//	    module.yaml
//	    META-INF/resources/package.json
package bundlefs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/reglet-dev/npm-portlet-extender/capability"
	"github.com/reglet-dev/npm-portlet-extender/module"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest name inside a bundle directory.
const ManifestFile = "module.yaml"

// ErrInvalidManifest is matched by every manifest decoding failure.
var ErrInvalidManifest = errors.New("invalid bundle manifest")

// ManifestError names the bundle whose manifest could not be used.
type ManifestError struct {
	Err    error
	Bundle string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("bundle %s: invalid manifest: %v", e.Bundle, e.Err)
}

// Is implements error matching for errors.Is() checks.
func (e *ManifestError) Is(target error) bool {
	return target == ErrInvalidManifest
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// Manifest is the decoded module.yaml of a bundle.
type Manifest struct {
	Name     string        `yaml:"name"`
	Version  string        `yaml:"version"`
	Requires []Requirement `yaml:"requires,omitempty"`
}

// Requirement declares a capability the module needs.
type Requirement struct {
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Namespace  string            `yaml:"namespace"`
	// Version is a semver range matched against the capability version.
	Version  string `yaml:"version,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

// ParseManifest decodes a manifest. Unknown keys are rejected.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest fields.
func (m *Manifest) Validate() error {
	if _, err := module.NewSymbolicName(m.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if m.Version == "" {
		return errors.New("version is required")
	}
	for i, req := range m.Requires {
		if req.Namespace == "" {
			return fmt.Errorf("requires[%d]: namespace is required", i)
		}
	}
	return nil
}

// Definition converts the manifest into a framework install definition
// backed by resources.
func (m *Manifest) Definition(resources fs.FS) module.Definition {
	reqs := make([]capability.Requirement, 0, len(m.Requires))
	for _, r := range m.Requires {
		reqs = append(reqs, capability.Requirement{
			Namespace:  r.Namespace,
			Attributes: r.Attributes,
			Version:    r.Version,
			Optional:   r.Optional,
		})
	}
	return module.Definition{
		SymbolicName: m.Name,
		Version:      m.Version,
		Requirements: reqs,
		Resources:    resources,
	}
}

// Marshal encodes the manifest as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return buf.Bytes(), nil
}

package capability_test

import (
	"testing"

	"github.com/reglet-dev/npm-portlet-extender/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticWiring map[string][]capability.Wire

func (w staticWiring) RequiredWires(namespace string) []capability.Wire {
	return w[namespace]
}

func extenderWire(name string) capability.Wire {
	return capability.Wire{
		Requirement: capability.Requirement{Namespace: capability.ExtenderNamespace},
		Capability: capability.Capability{
			Namespace:  capability.ExtenderNamespace,
			Attributes: map[string]any{capability.ExtenderNamespace: name},
		},
	}
}

func TestFilter_Qualifies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wiring capability.Wiring
		name   string
		want   bool
	}{
		{
			name:   "matching wire",
			wiring: staticWiring{capability.ExtenderNamespace: {extenderWire(capability.ExtensionName)}},
			want:   true,
		},
		{
			name: "matching wire among others",
			wiring: staticWiring{capability.ExtenderNamespace: {
				extenderWire("osgi.component"),
				extenderWire(capability.ExtensionName),
			}},
			want: true,
		},
		{
			name:   "other extender only",
			wiring: staticWiring{capability.ExtenderNamespace: {extenderWire("osgi.component")}},
			want:   false,
		},
		{
			name:   "no wires",
			wiring: staticWiring{},
			want:   false,
		},
		{
			name: "wire in another namespace",
			wiring: staticWiring{"osgi.service": {{
				Capability: capability.Capability{
					Namespace:  "osgi.service",
					Attributes: map[string]any{capability.ExtenderNamespace: capability.ExtensionName},
				},
			}}},
			want: false,
		},
		{
			name: "attribute missing",
			wiring: staticWiring{capability.ExtenderNamespace: {{
				Capability: capability.Capability{Namespace: capability.ExtenderNamespace},
			}}},
			want: false,
		},
		{
			name: "attribute not a string",
			wiring: staticWiring{capability.ExtenderNamespace: {{
				Capability: capability.Capability{
					Namespace:  capability.ExtenderNamespace,
					Attributes: map[string]any{capability.ExtenderNamespace: 42},
				},
			}}},
			want: false,
		},
		{
			name:   "nil wiring",
			wiring: nil,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, capability.NewFilter().Qualifies(tt.wiring))
			assert.Equal(t, tt.want, capability.OptIn(tt.wiring))
		})
	}
}

func TestFilter_Options(t *testing.T) {
	t.Parallel()

	wiring := staticWiring{"custom.ns": {{
		Capability: capability.Capability{
			Namespace:  "custom.ns",
			Attributes: map[string]any{"custom.ns": "my.extension"},
		},
	}}}

	f := capability.NewFilter(capability.WithNamespace("custom.ns"), capability.WithExtensionName("my.extension"))
	assert.Equal(t, "custom.ns", f.Namespace())
	assert.Equal(t, "my.extension", f.Name())
	assert.True(t, f.Qualifies(wiring))
	assert.False(t, capability.OptIn(wiring))

	defaults := capability.NewFilter(capability.WithNamespace(""), capability.WithExtensionName(""))
	assert.Equal(t, capability.ExtenderNamespace, defaults.Namespace())
	assert.Equal(t, capability.ExtensionName, defaults.Name())
}

func extenderCapability(name, version string) capability.Capability {
	return capability.Capability{
		Namespace: capability.ExtenderNamespace,
		Attributes: map[string]any{
			capability.ExtenderNamespace: name,
			capability.VersionAttribute:  version,
		},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	provided := []capability.Capability{
		extenderCapability(capability.ExtensionName, "1.0.0"),
		extenderCapability(capability.ExtensionName, "1.4.2"),
		extenderCapability("osgi.component", "1.5.0"),
		extenderCapability(capability.ExtensionName, "2.0.0"),
	}

	npm := map[string]string{capability.ExtenderNamespace: capability.ExtensionName}

	tests := []struct {
		name        string
		wantVersion string
		req         capability.Requirement
	}{
		{
			name:        "no range picks highest",
			req:         capability.Requirement{Namespace: capability.ExtenderNamespace, Attributes: npm},
			wantVersion: "2.0.0",
		},
		{
			name:        "range picks highest in range",
			req:         capability.Requirement{Namespace: capability.ExtenderNamespace, Attributes: npm, Version: ">=1.0.0, <2.0.0"},
			wantVersion: "1.4.2",
		},
		{
			name:        "caret range",
			req:         capability.Requirement{Namespace: capability.ExtenderNamespace, Attributes: npm, Version: "^1.0"},
			wantVersion: "1.4.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wires, err := capability.Resolve([]capability.Requirement{tt.req}, provided)
			require.NoError(t, err)
			require.Len(t, wires, 1)
			assert.Equal(t, tt.wantVersion, wires[0].Capability.Attributes[capability.VersionAttribute])
			assert.Equal(t, tt.req, wires[0].Requirement)
		})
	}
}

func TestResolve_Unresolved(t *testing.T) {
	t.Parallel()

	provided := []capability.Capability{extenderCapability(capability.ExtensionName, "1.0.0")}
	req := capability.Requirement{
		Namespace:  capability.ExtenderNamespace,
		Attributes: map[string]string{capability.ExtenderNamespace: capability.ExtensionName},
		Version:    ">=2.0.0",
	}

	_, err := capability.Resolve([]capability.Requirement{req}, provided)
	require.ErrorIs(t, err, capability.ErrUnresolved)
	assert.Contains(t, err.Error(), `version ">=2.0.0"`)

	req.Optional = true
	wires, err := capability.Resolve([]capability.Requirement{req}, provided)
	require.NoError(t, err)
	assert.Empty(t, wires)
}

func TestResolve_InvalidConstraint(t *testing.T) {
	t.Parallel()

	req := capability.Requirement{Namespace: capability.ExtenderNamespace, Version: "not a range"}
	_, err := capability.Resolve([]capability.Requirement{req}, nil)
	assert.ErrorContains(t, err, "invalid version constraint")
}

func TestResolve_UnversionedCapability(t *testing.T) {
	t.Parallel()

	c := capability.Capability{
		Namespace:  "osgi.service",
		Attributes: map[string]any{"objectClass": "json.Parser"},
	}

	wires, err := capability.Resolve([]capability.Requirement{{
		Namespace:  "osgi.service",
		Attributes: map[string]string{"objectClass": "json.Parser"},
	}}, []capability.Capability{c})
	require.NoError(t, err)
	require.Len(t, wires, 1)

	_, err = capability.Resolve([]capability.Requirement{{
		Namespace: "osgi.service",
		Version:   ">=1.0.0",
	}}, []capability.Capability{c})
	assert.ErrorIs(t, err, capability.ErrUnresolved)
}

func TestResolve_ResolvedWiresQualify(t *testing.T) {
	t.Parallel()

	wires, err := capability.Resolve([]capability.Requirement{{
		Namespace:  capability.ExtenderNamespace,
		Attributes: map[string]string{capability.ExtenderNamespace: capability.ExtensionName},
	}}, []capability.Capability{extenderCapability(capability.ExtensionName, "1.0.0")})
	require.NoError(t, err)

	assert.True(t, capability.OptIn(staticWiring{capability.ExtenderNamespace: wires}))
}

package extender_test

import (
	"log/slog"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"
	extender "github.com/reglet-dev/npm-portlet-extender"
	"github.com/reglet-dev/npm-portlet-extender/capability"
	"github.com/reglet-dev/npm-portlet-extender/module"
	"github.com/reglet-dev/npm-portlet-extender/properties"
	"github.com/reglet-dev/npm-portlet-extender/registry"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

func newFramework() *module.Framework {
	return module.NewFramework(
		module.WithLogger(discard),
		module.WithProvidedCapabilities(extender.ProvidedCapability()),
	)
}

func npmRequirement() capability.Requirement {
	return capability.Requirement{
		Namespace:  capability.ExtenderNamespace,
		Attributes: map[string]string{capability.ExtenderNamespace: capability.ExtensionName},
		Version:    "^1.0.0",
	}
}

// installNPM installs a module that requires the extender and ships
// descriptor at the default path. An empty descriptor ships no file.
func installNPM(t *testing.T, fw *module.Framework, name, descriptor string) module.Module {
	t.Helper()

	resources := fstest.MapFS{}
	if descriptor != "" {
		resources[extender.DefaultDescriptorPath] = &fstest.MapFile{Data: []byte(descriptor)}
	}
	m, err := fw.Install(module.Definition{
		SymbolicName: name,
		Version:      "1.0.0",
		Requirements: []capability.Requirement{npmRequirement()},
		Resources:    resources,
	})
	require.NoError(t, err)
	return m
}

// installPlain installs a module with no extender requirement.
func installPlain(t *testing.T, fw *module.Framework, name, descriptor string) module.Module {
	t.Helper()

	m, err := fw.Install(module.Definition{
		SymbolicName: name,
		Version:      "1.0.0",
		Resources: fstest.MapFS{
			extender.DefaultDescriptorPath: &fstest.MapFile{Data: []byte(descriptor)},
		},
	})
	require.NoError(t, err)
	return m
}

func startNPM(t *testing.T, fw *module.Framework, name, descriptor string) module.Module {
	t.Helper()
	m := installNPM(t, fw, name, descriptor)
	require.NoError(t, fw.Start(m.ID()))
	return m
}

func descriptorFor(name string) string {
	return `{"name":"` + name + `","version":"1.0.0","portlet":{"icon":"star"}}`
}

// mockRegistration records Unregister calls.
type mockRegistration struct {
	mock.Mock
	props properties.Properties
	id    string
}

func (m *mockRegistration) ID() string                        { return m.id }
func (m *mockRegistration) Properties() properties.Properties { return m.props.Clone() }

func (m *mockRegistration) Unregister() error {
	args := m.Called()
	return args.Error(0)
}

// mockRegistry hands out mockRegistrations expecting one Unregister each.
type mockRegistry struct {
	mock.Mock
	issued []*mockRegistration
	mu     sync.Mutex
}

func (m *mockRegistry) Register(serviceTypes []string, instance any, props properties.Properties) (registry.Registration, error) {
	args := m.Called(serviceTypes, instance, props)
	if err := args.Error(0); err != nil {
		return nil, err
	}

	reg := &mockRegistration{id: uuid.NewString(), props: props.Clone()}
	reg.On("Unregister").Return(nil).Once()

	m.mu.Lock()
	m.issued = append(m.issued, reg)
	m.mu.Unlock()
	return reg, nil
}

func (m *mockRegistry) registrations() []*mockRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*mockRegistration, len(m.issued))
	copy(out, m.issued)
	return out
}

package server_test

import (
	"testing"

	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	"github.com/reglet-dev/npm-portlet-extender/server"
	"github.com/reglet-dev/npm-portlet-extender/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserToggle(t *testing.T) {
	t.Parallel()

	services := service.NewRegistry[jsonvalue.Parser]()
	toggle := server.NewParserToggle(services, jsonvalue.NewParser(), "default")

	assert.False(t, toggle.Enabled())
	assert.Empty(t, services.Services())

	require.NoError(t, toggle.SetEnabled(true))
	require.NoError(t, toggle.SetEnabled(true))
	assert.True(t, toggle.Enabled())
	require.Len(t, services.Services(), 1)
	assert.Equal(t, "default", services.Services()[0].Name)

	require.NoError(t, toggle.SetEnabled(false))
	require.NoError(t, toggle.SetEnabled(false))
	assert.False(t, toggle.Enabled())
	assert.Empty(t, services.Services())
}

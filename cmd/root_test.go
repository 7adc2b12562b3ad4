// -- cmd/root_test.go --
package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmcnulty/evergreen-cli/internal/config"
)

func TestNewRootCommandWiring(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["scan"], "scan command should be registered")
	assert.True(t, names["fetch"], "fetch command should be registered")
	assert.True(t, names["watch"], "watch command should be registered")

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestFetchRequiresExactlyOneURL(t *testing.T) {
	fetch := newFetchCmd()
	require.Error(t, fetch.Args(fetch, []string{}))
	require.Error(t, fetch.Args(fetch, []string{"a", "b"}))
	require.NoError(t, fetch.Args(fetch, []string{"https://app.findox.com/d?download=true"}))
}

func TestInitializeConfigAppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, initializeConfig())

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Acquire.BudgetTicks)
	assert.Equal(t, "evergreen-cli", cfg.Logger.ServiceName)
}

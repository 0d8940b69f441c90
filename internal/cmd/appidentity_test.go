package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/appid"
)

func TestAppIdentityLoading(t *testing.T) {
	identity, err := appid.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, identity)

	assert.NotEmpty(t, identity.BinaryName)
	assert.NotEmpty(t, identity.ConfigName)
	assert.True(t, strings.HasSuffix(identity.EnvPrefix, "_"), "env prefix %q should end with underscore", identity.EnvPrefix)
}

func TestCommandTreeRegistersOperatorCommands(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"version"},
		{"doctor"},
		{"quota", "list"},
		{"webhook", "list"},
		{"credits", "balance"},
		{"credits", "grant"},
	} {
		found, _, err := rootCmd.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestServerOverridesOnlyIncludeChangedFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	var host string
	var port int
	cmd.Flags().StringVar(&host, "host", "localhost", "")
	cmd.Flags().IntVar(&port, "port", 3001, "")

	assert.Nil(t, serverOverrides(cmd))

	require.NoError(t, cmd.Flags().Set("port", "8088"))
	serverPort = 8088
	t.Cleanup(func() { serverPort = 0 })

	overrides := serverOverrides(cmd)
	require.NotNil(t, overrides)
	server, ok := overrides["server"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 8088, server["port"])
	assert.NotContains(t, server, "host")
}

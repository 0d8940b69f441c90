package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLoggers(t *testing.T) {
	t.Run("CLI logger", func(t *testing.T) {
		InitCLILogger("pricewise-test", true)
		require.NotNil(t, CLILogger)
		CLILogger.Debug("cli logger ready", zap.String("test", "value"))
	})

	t.Run("server logger", func(t *testing.T) {
		InitServerLogger("pricewise-test", "warn", "pricewise")
		require.NotNil(t, ServerLogger)
		ServerLogger.Warn("server logger ready", zap.String("component", "test"))
	})
}

func TestServerLoggerConfigProfiles(t *testing.T) {
	structured := ServerLoggerConfig(ServerLogOptions{
		Service:   "pricewise",
		Level:     "debug",
		Namespace: "pricewise",
	})
	assert.Equal(t, logging.ProfileStructured, structured.Profile)
	assert.Equal(t, "DEBUG", structured.DefaultLevel)
	assert.Equal(t, "production", structured.Environment)
	assert.Equal(t, "pricewise", structured.StaticFields["namespace"])
	require.Len(t, structured.Middleware, 1)
	assert.Equal(t, "correlation", structured.Middleware[0].Name)
	require.Len(t, structured.Sinks, 1)
	assert.Equal(t, "json", structured.Sinks[0].Format)

	simple := ServerLoggerConfig(ServerLogOptions{
		Service:     "pricewise",
		Profile:     "simple",
		Environment: "development",
	})
	assert.Equal(t, logging.ProfileSimple, simple.Profile)
	assert.Equal(t, "INFO", simple.DefaultLevel)
	assert.Equal(t, "development", simple.Environment)
	assert.Empty(t, simple.Middleware)
	assert.Equal(t, "console", simple.Sinks[0].Format)
	assert.NotContains(t, simple.StaticFields, "namespace")

	for _, cfg := range []*logging.LoggerConfig{structured, simple} {
		logger, err := logging.New(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" info ":  "INFO",
		"warning": "WARN",
		"error":   "ERROR",
		"verbose": "INFO",
		"":        "INFO",
	}
	for input, want := range tests {
		assert.Equal(t, want, parseLogLevel(input), "level %q", input)
	}
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9464")
	require.NoError(t, err)
	assert.Equal(t, 9464, port)

	_, err = resolvePort("no-port")
	assert.Error(t, err)
}

func TestCrucibleVersionsAvailable(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
}

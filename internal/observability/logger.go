package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used for HTTP server (STRUCTURED profile unless configured otherwise)
	ServerLogger *logging.Logger
)

// ServerLogOptions selects how the server logger writes.
type ServerLogOptions struct {
	Service     string
	Level       string
	Profile     string // SIMPLE or STRUCTURED
	Environment string
	Namespace   string
}

// InitCLILogger initializes the CLI logger with SIMPLE profile
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger initializes the server logger with the STRUCTURED profile.
// The optional namespace is attached to every record.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	opts := ServerLogOptions{Service: serviceName, Level: logLevel}
	if len(namespace) > 0 {
		opts.Namespace = namespace[0]
	}
	InitServerLoggerWith(opts)
}

// InitServerLoggerWith initializes the server logger from explicit options.
func InitServerLoggerWith(opts ServerLogOptions) {
	logger, err := logging.New(ServerLoggerConfig(opts))
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// ServerLoggerConfig builds the gofulmen logger config for opts. SIMPLE
// writes console lines without middleware. Anything else writes JSON with
// the correlation middleware so request ids land in every record.
func ServerLoggerConfig(opts ServerLogOptions) *logging.LoggerConfig {
	environment := strings.TrimSpace(opts.Environment)
	if environment == "" {
		environment = "production"
	}

	staticFields := make(map[string]any)
	if opts.Namespace != "" {
		staticFields["namespace"] = opts.Namespace
	}

	if strings.EqualFold(strings.TrimSpace(opts.Profile), "simple") {
		if len(staticFields) == 0 {
			staticFields = nil
		}
		return &logging.LoggerConfig{
			Profile:      logging.ProfileSimple,
			DefaultLevel: parseLogLevel(opts.Level),
			Service:      opts.Service,
			Environment:  environment,
			StaticFields: staticFields,
			Sinks:        []logging.SinkConfig{stderrSink("console")},
		}
	}

	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(opts.Level),
		Service:      opts.Service,
		Environment:  environment,
		StaticFields: staticFields,
		Middleware: []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		},
		Sinks:            []logging.SinkConfig{stderrSink("json")},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

func stderrSink(format string) logging.SinkConfig {
	return logging.SinkConfig{
		Type:   "console",
		Format: format,
		Console: &logging.ConsoleSinkConfig{
			Stream:   "stderr",
			Colorize: false,
		},
	}
}

// parseLogLevel converts string log level to logging severity string
func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr is used before any logger exists.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	line := "FATAL: " + msg
	if err != nil {
		line = fmt.Sprintf("%s: %v", line, err)
	}
	fmt.Fprintln(os.Stderr, line)

	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(exitCode))
}

package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"

	"github.com/karmalens/karmalens/internal/appid"
)

var (
	// CLILogger backs one-shot commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger backs `serve` and the collection scheduler.
	ServerLogger *logging.Logger
)

// ServerLogOptions configures InitServerLogger.
type ServerLogOptions struct {
	Service string
	// Level is trace, debug, info, warn or error; anything else means info.
	Level string
	// Profile is SIMPLE for console text; any other value logs JSON.
	Profile string
	// Namespace is attached to every entry when set.
	Namespace string
	// Environment defaults to KARMALENS_ENV, then production.
	Environment string
}

// InitCLILogger installs the CLI logger. verbose lowers the level to debug.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// Logger returns the server logger when serving and the CLI logger otherwise.
// It is nil before either is initialized.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// InitServerLogger installs the server logger. Entries carry a correlation
// ID so API requests and collection runs can be traced.
func InitServerLogger(opts ServerLogOptions) {
	logger, err := logging.New(serverLoggerConfig(opts))
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

func serverLoggerConfig(opts ServerLogOptions) *logging.LoggerConfig {
	static := make(map[string]any)
	if opts.Namespace != "" {
		static["namespace"] = opts.Namespace
	}

	env := opts.Environment
	if env == "" {
		env = environment()
	}

	cfg := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(opts.Level),
		Service:      opts.Service,
		Environment:  env,
		StaticFields: static,
		Sinks: []logging.SinkConfig{{
			Type:    "console",
			Format:  "json",
			Console: &logging.ConsoleSinkConfig{Stream: "stderr", Colorize: false},
		}},
	}

	if strings.EqualFold(strings.TrimSpace(opts.Profile), "SIMPLE") {
		cfg.Profile = logging.ProfileSimple
		cfg.Sinks[0].Format = "console"
		return cfg
	}

	cfg.Middleware = []logging.MiddlewareConfig{
		{Name: "correlation", Enabled: true, Order: 100, Config: make(map[string]any)},
	}
	cfg.EnableCaller = true
	cfg.EnableStacktrace = true
	return cfg
}

func environment() string {
	if env := strings.TrimSpace(os.Getenv(appid.EnvKey("ENV"))); env != "" {
		return strings.ToLower(env)
	}
	return "production"
}

// parseLogLevel maps a config level to the gofulmen severity name.
func parseLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// fatal exits before any logger exists, so it writes straight to stderr.
func fatal(code foundry.ExitCode, msg string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}

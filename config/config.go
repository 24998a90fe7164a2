// Package config parses the process's startup surface: bootstrap URL, config-bus group id, log level and
// tick period. This is deliberately a small flag surface - everything else (settings, battery configs,
// register map) comes from Bootstrap at runtime, not from local config.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Exit codes per the external interfaces contract.
const (
	ExitOK                = 0
	ExitBootstrapFailure  = 1
	ExitConfigInvalid     = 2
	ExitFieldBusMisconfig = 3
)

const (
	defaultTickPeriod        = 1 * time.Second
	defaultConfigBusInterval = 15 * time.Second
	defaultRegisterCachePath = "edge-controller-registermap.db"
	envBootstrapURL          = "EDGE_BOOTSTRAP_URL"
	envGroupID               = "EDGE_GROUP_ID"
	envLogLevel              = "EDGE_LOG_LEVEL"
	envRegisterCachePath     = "EDGE_REGISTER_CACHE_PATH"
)

// Config is the whole of this process's local startup configuration.
type Config struct {
	BootstrapURL      string
	GroupID           string
	LogLevel          slog.Level
	TickPeriod        time.Duration
	ConfigBusInterval time.Duration
	// RegisterCachePath is where the Register Map Cache's SQLite file lives. It is a warm-start
	// convenience only - bootstrap remains the authoritative source on every successful start.
	RegisterCachePath string
}

var errInvalid = fmt.Errorf("invalid configuration")

// Parse reads flags (falling back to environment variables, then defaults) and validates the result.
// args is typically os.Args[1:]; passed explicitly so tests don't need to touch package-level flag state.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("edge-controller", flag.ContinueOnError)

	bootstrapURL := fs.String("bootstrap-url", os.Getenv(envBootstrapURL), "Bootstrap service base URL")
	groupID := fs.String("group-id", os.Getenv(envGroupID), "Config-bus group id (lanzone/{group_id}/updates)")
	logLevel := fs.String("log-level", os.Getenv(envLogLevel), "Log level: debug, info, warn, error")
	tickPeriodSecs := fs.Float64("tick-period-secs", 0, "Controller tick period in seconds (default 1)")
	registerCachePath := fs.String("register-cache-path", os.Getenv(envRegisterCachePath), "Register map cache SQLite file path")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errInvalid, err)
	}

	cfg := Config{
		BootstrapURL:      *bootstrapURL,
		GroupID:           *groupID,
		TickPeriod:        defaultTickPeriod,
		ConfigBusInterval: defaultConfigBusInterval,
		RegisterCachePath: *registerCachePath,
	}
	if cfg.RegisterCachePath == "" {
		cfg.RegisterCachePath = defaultRegisterCachePath
	}

	if *tickPeriodSecs > 0 {
		cfg.TickPeriod = time.Duration(*tickPeriodSecs * float64(time.Second))
	}

	level, err := parseLevel(*logLevel)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", errInvalid, err)
	}
	cfg.LogLevel = level

	if cfg.BootstrapURL == "" {
		return Config{}, fmt.Errorf("%w: bootstrap URL is required (-bootstrap-url or %s)", errInvalid, envBootstrapURL)
	}
	if cfg.GroupID == "" {
		return Config{}, fmt.Errorf("%w: group id is required (-group-id or %s)", errInvalid, envGroupID)
	}

	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unrecognized log level %q", s)
	}
}

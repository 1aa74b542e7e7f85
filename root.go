package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/despacho-app/despacho/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath  string
	flagServer      string
	flagJSON        bool
	flagVerbose     bool
	flagQuiet       bool
	flagMetricsAddr string
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Resolved

// logLevel backs every logger built by buildLogger, so a config reload can
// change the level of loggers already handed out.
var logLevel = new(slog.LevelVar)

// metricsRegistry collects the gateway metrics of this process.
var metricsRegistry = prometheus.NewRegistry()

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "despacho",
		Short:   "Despacho command line client",
		Long:    "Sign in to a despacho server, load the session catalogs and inspect them.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(); err != nil {
				return err
			}

			if flagMetricsAddr != "" {
				serveMetrics(cmd.Context(), flagMetricsAddr, metricsRegistry, buildLogger())
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServer, "server", "", "API base URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newBootstrapCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newErrorsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// cliOverrides collects the flags that take part in config resolution.
func cliOverrides() config.CLIOverrides {
	return config.CLIOverrides{
		ConfigPath: flagConfigPath,
		ServerURL:  flagServer,
	}
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result in resolvedCfg.
func loadConfig() error {
	resolved, err := config.Resolve(config.ReadEnvOverrides(), cliOverrides())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved
	applyLogLevel(resolved)

	return nil
}

// applyLogLevel sets the shared level from cfg, then lets --verbose and
// --quiet override it because CLI flags always win.
func applyLogLevel(cfg *config.Resolved) {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	logLevel.Set(level)
}

// buildLogger creates a text logger on stderr at the shared level.
func buildLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/herd/internal/logging"
	"github.com/jbweber/herd/internal/telemetry"
)

var (
	version = "dev"
	commit  = "unknown"
)

// telemetryShutdownTimeout bounds the final export of spans and metrics.
const telemetryShutdownTimeout = 5 * time.Second

var globals struct {
	fleetFile    string
	templatesDir string
	envFile      string
	logLevel     string
	logFormat    string
	telemetry    bool
}

var (
	logger = zap.NewNop()
	tel    *telemetry.Telemetry
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	shutdown()
	os.Exit(exitCode(err))
}

// exitError carries a non-zero exit status for a batch that ran to
// completion but did not fully succeed.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func shutdown() {
	if tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("failed to flush telemetry", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

var rootCmd = &cobra.Command{
	Use:   "herd",
	Short: "herd - provision fleets of VMs on a remote libvirt host",
	Long: `herd creates and destroys groups of identical virtual machines on a
remote libvirt hypervisor from a declarative fleet document.

Each role in the fleet yields count VMs named <role>01, <role>02, ... with
consecutive display ports. A VM that fails part way through is rolled back
so no half-built VMs or orphaned volumes are left behind.

Credentials are read from a .env file, HERD_* environment variables and
flags, in increasing precedence.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(globals.logLevel, globals.logFormat)
		if err != nil {
			return err
		}
		logger = l

		if globals.telemetry {
			t, err := telemetry.Initialize("herd", version, os.Stderr)
			if err != nil {
				return err
			}
			tel = t
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globals.fleetFile, "config", "fleet.yaml", "fleet document")
	pf.StringVar(&globals.templatesDir, "templates-dir", "", "directory of blueprint overrides (default: built-in blueprints)")
	pf.StringVar(&globals.envFile, "env-file", ".env", "file of HERD_* credentials, ignored when missing")
	pf.StringVar(&globals.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&globals.logFormat, "log-format", logging.FormatConsole, "log format (console, json)")
	pf.BoolVar(&globals.telemetry, "telemetry", false, "export traces and metrics to stderr")

	addConnectionFlags(pf)

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(testConnCmd)
	rootCmd.AddCommand(versionCmd)
}

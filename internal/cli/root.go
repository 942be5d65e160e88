// Package cli provides the carfw command-line interface: a thin cobra
// layer over internal/api, internal/config, and internal/orchestrator. No
// business logic lives here — each command builds collaborators from
// flags/config and hands off immediately.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale-labs/carfw/internal/api"
	"github.com/rescale-labs/carfw/internal/config"
	"github.com/rescale-labs/carfw/internal/logging"
)

var (
	cfgFile     string
	verbose     bool
	outputDir   string
	concurrency int
	retries     int
	keepRaw     bool
	regionFlag  string
	ignoreTLS   bool

	logger *logging.Logger

	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// Version is set by main at build time.
var Version = "dev"

// NewRootCmd builds the carfw root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "carfw",
		Short: "Download and reassemble automotive infotainment firmware",
		Long: `carfw downloads firmware for a supported infotainment head unit from
the vendor's update service and reassembles the downloaded pieces into
usable files, resuming automatically if interrupted.`,
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefault()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "settings file path (default ~/.config/carfw/settings.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "", "output directory for downloaded firmware")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "concurrent download/post-process tasks (1-16, 0 = use settings/default)")
	rootCmd.PersistentFlags().IntVar(&retries, "retries", -1, "retry attempts per piece on transient failure (-1 = use settings/default)")
	rootCmd.PersistentFlags().BoolVar(&keepRaw, "keep-raw", false, "keep raw split pieces after extraction instead of deleting them")
	rootCmd.PersistentFlags().StringVar(&regionFlag, "region", "", "force a region code instead of autodetecting one")
	rootCmd.PersistentFlags().BoolVar(&ignoreTLS, "ignore-tls-validation", false, "skip TLS certificate validation for HTTPS connections to the vendor API")

	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newListCarsCmd())
	rootCmd.AddCommand(newListFirmwareCmd())
	rootCmd.AddCommand(newVersionStampCmd())

	return rootCmd
}

// Execute runs the CLI, cancelling rootContext's context on the first
// interrupt signal and restoring default (process-terminating) signal
// handling before a second one, per the orchestrator's single-signal
// cooperative-shutdown contract.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(os.Stderr, "\ninterrupted: finishing in-flight tasks, rerun to resume; press again to force-quit")
			signal.Stop(sigCh)
			cancelFunc()
		}
	}()
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()

	return NewRootCmd().Execute()
}

// GetLogger returns the process-wide CLI logger, creating the default one
// if Execute/PersistentPreRun hasn't run yet (e.g. under test).
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return logger
}

// GetContext returns the signal-aware root context, or a background
// context if called outside Execute.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// newAPIClient builds the vendor API client every subcommand shares,
// honoring --ignore-tls-validation.
func newAPIClient(log *logging.Logger, retries int) *api.Client {
	return api.NewClient(log, retries, ignoreTLS)
}

// loadConfig merges the settings file with persistent-flag overrides:
// baked-in defaults first, then the settings file (config.Load), then
// any flag the user set.
func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		p, err := config.SettingsPath()
		if err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if concurrency != 0 {
		cfg.Concurrency = concurrency
	}
	if retries >= 0 {
		cfg.Retries = retries
	}
	if keepRaw {
		cfg.KeepRaw = keepRaw
	}
	if regionFlag != "" {
		cfg.Region = regionFlag
	}
	return cfg, nil
}

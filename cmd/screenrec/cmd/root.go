// Package cmd implements the CLI commands for screenrec.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/screenrec/internal/config"
	"github.com/jmylchreest/screenrec/internal/observability"
	"github.com/jmylchreest/screenrec/internal/version"
)

var (
	// cfgFile holds the config file path from CLI flag.
	cfgFile string

	// cfg and logger are set before any subcommand runs.
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "screenrec",
	Short:   "Record scrcpy device streams to MP4",
	Version: version.Short(),
	Long: `screenrec records the video and audio streams of a screen-mirroring
session (scrcpy framing) into fragmented MP4 files.

Recording can start partway through a stream: the packets since the last
keyframe are kept so every recording begins with a decodable picture.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Set here to avoid an initialization cycle through rootCmd.
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initConfig()
	}

	// Logging flags are not bound to viper so that only explicitly set
	// flags override env and config values.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig loads the configuration and configures the default logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format), only if explicitly provided
//  2. Environment variables (SCREENREC_LOGGING_LEVEL, SCREENREC_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults
func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyLoggingFlags(rootCmd.PersistentFlags(), &loaded.Logging)
	cfg = loaded

	logger = observability.WithApp(observability.NewLogger(cfg.Logging, os.Stderr), version.ApplicationName)
	slog.SetDefault(logger)
	return nil
}

func applyLoggingFlags(flags *pflag.FlagSet, logCfg *config.LoggingConfig) {
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		logCfg.Level = strings.ToLower(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		logCfg.Format = strings.ToLower(format)
	}
}

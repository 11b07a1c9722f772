// Package main implements the appmirror command-line tool for mirroring app market catalogs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mirrorctl/appmirror/internal/mirror"
)

const (
	defaultConfigPath = "/etc/appmirror/appmirror.toml"
)

var (
	// Build information - can be set via build flags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "appmirror",
	Short: "Mirror an app market catalog",
	Long: `appmirror clones an app market catalog (index, metadata, images and
packages) such as app-index.sandstorm.io into a local directory.

Run "appmirror COMMAND --help" to see COMMAND help.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the complete app index and files",
	Long: `Clones the app market catalog into a local directory.

This command WILL REMOVE everything in the destination directory.

Usage:
  # Mirror into ./public
  appmirror sync

  # Mirror into another directory
  appmirror sync --public-path /srv/app-index

  # Mirror another origin
  appmirror sync --base-url https://app-index.example.org

  # Download four apps at a time
  appmirror sync --max-conns 4`,
	Args: cobra.NoArgs,
	Run:  runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including build details",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("appmirror %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Validate the configuration file and report any issues.`,
	Args:  cobra.NoArgs,
	Run:   runValidate,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress all output except for errors")

	syncCmd.Flags().StringP("public-path", "p", "", "destination directory (default \"./public\")")
	syncCmd.Flags().String("base-url", "", "catalog base URL (default \"https://app-index.sandstorm.io\")")
	syncCmd.Flags().Int("max-conns", 0, "number of apps downloaded concurrently (default 1)")
	syncCmd.Flags().Bool("no-color", false, "disable colored output")
}

// formatError returns a human-friendly error message, optionally with stack trace
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err) // Full details with stack trace
	}

	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	return err.Error()
}

// formatUndecodedError builds a user-friendly error message for undecoded TOML keys
func formatUndecodedError(undecoded []toml.Key) string {
	keys := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		keys = append(keys, key.String())
	}
	return "configuration contains unknown keys: " + strings.Join(keys, ", ") +
		"\nNote: Configuration key names are case-sensitive and must match exactly."
}

// loadConfig reads the configuration file.
//
// A missing file is not an error when the default path is in use.
func loadConfig(cmd *cobra.Command) (*mirror.Config, error) {
	config := mirror.NewConfig()

	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		if os.IsNotExist(err) && !cmd.Flags().Changed("config") {
			slog.Debug("no configuration file, using defaults", "path", configPath)
			return config, nil
		}
		if os.IsNotExist(err) {
			return nil, errors.Newf("configuration file not found: %s", configPath)
		}
		return nil, errors.Wrapf(err, "failed to decode config file %s", configPath)
	}

	// Check for undecoded keys which might indicate typos
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(formatUndecodedError(undecoded))
	}
	return config, nil
}

// applyLogging applies the log configuration and command-line overrides.
func applyLogging(cmd *cobra.Command, config *mirror.Config) error {
	if logLevel != "" {
		config.Log.Level = logLevel
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		config.Log.Level = "error"
	}
	return config.Log.Apply()
}

// applySyncFlags overrides configuration values with sync flags.
func applySyncFlags(cmd *cobra.Command, config *mirror.Config) error {
	flags := cmd.Flags()
	if flags.Changed("public-path") {
		config.PublicPath, _ = flags.GetString("public-path")
	}
	if flags.Changed("base-url") {
		baseURL, _ := flags.GetString("base-url")
		if err := config.SetBaseURL(baseURL); err != nil {
			return errors.Wrap(err, "--base-url")
		}
	}
	if flags.Changed("max-conns") {
		config.MaxConns, _ = flags.GetInt("max-conns")
	}
	if noColor, _ := flags.GetBool("no-color"); noColor {
		config.Color = false
	}
	return nil
}

func exitWithError(msg string, err error, verboseErrors bool) {
	slog.Error(msg, "error", formatError(err, verboseErrors))
	if !verboseErrors {
		slog.Info("run with --verbose-errors for detailed stack traces")
	}
	os.Exit(1)
}

func runSync(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")
	quiet, _ := cmd.Flags().GetBool("quiet")

	config, err := loadConfig(cmd)
	if err != nil {
		exitWithError("failed to load configuration", err, verboseErrors)
	}
	if err := applyLogging(cmd, config); err != nil {
		exitWithError("failed to apply log config", err, verboseErrors)
	}
	if err := applySyncFlags(cmd, config); err != nil {
		exitWithError("invalid command-line flag", err, verboseErrors)
	}

	mirror.Version = version
	console := mirror.NewConsole(os.Stdout, config.Color, quiet)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mirror.Run(ctx, config, mirror.WithConsole(console)); err != nil {
		stop()
		exitWithError("sync failed", err, verboseErrors)
	}
}

func runValidate(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config, err := loadConfig(cmd)
	if err != nil {
		exitWithError("the toml configuration file is not valid", err, verboseErrors)
	}

	var validationErrors []error
	if err := config.Log.Apply(); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "log config"))
	}
	if err := config.Check(); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "config"))
	}

	if len(validationErrors) > 0 {
		slog.Error("the toml configuration file is not valid", "path", configPath)
		for _, err := range validationErrors {
			slog.Error(err.Error())
		}
		os.Exit(1)
	}

	slog.Info("the toml configuration file passes validation checks", "path", configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Package cmd provides the command-line interface for WebRipper.
// It handles command parsing, configuration loading, and rip execution.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/webripper/internal/config"
	"github.com/masahif/webripper/internal/downloader"
	"github.com/masahif/webripper/internal/logging"
	"github.com/masahif/webripper/internal/ripper"
	"github.com/masahif/webripper/internal/storage"
)

// Exit codes returned by ExitCode
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitCanceled = 130
)

var (
	version   string
	buildTime string
)

// statsInterval is how often a running rip logs its totals
var statsInterval = 10 * time.Second

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute runs the root command until ctx is cancelled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

// ExitCode maps the error of Execute to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ripper.ErrCanceled):
		return ExitCanceled
	default:
		return ExitFailure
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "webripper URL [ROOT]",
		Short: "Mirror a website to a local directory",
		Long: `WebRipper mirrors a website to a local directory tree.

Starting from URL it downloads every linked page and embedded resource,
then rewrites the references so the copy under ROOT works offline.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRip(cmd, v, args)
		},
	}

	// Configuration flags shared with subcommands
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./webripper.yml)")
	cmd.PersistentFlags().String("database", defaults.DatabasePath, "Path to SQLite run journal (empty disables it)")
	cmd.PersistentFlags().String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
	cmd.PersistentFlags().String("log-format", defaults.Log.Format, "Log format: json or text")
	cmd.PersistentFlags().String("log-file", defaults.Log.File, "Also write logs to this size-rotated file")

	// Configuration management flags
	cmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")
	cmd.Flags().BoolP("quiet", "q", false, "Do not print a line per downloaded file")

	// Mirror flags
	cmd.Flags().StringP("mode", "m", defaults.Mode, "Root handling: create-new, create, update, update-or-create or truncate")
	cmd.Flags().IntP("depth", "d", defaults.MaxDepth, "Maximum hyperlink depth (0=unlimited)")
	cmd.Flags().BoolP("base-only", "b", defaults.BaseOnly, "Only follow hyperlinks below the seed's directory")
	cmd.Flags().StringP("include", "i", defaults.IncludePattern, "Also follow hyperlinks matching this regex")
	cmd.Flags().Int("max-path", defaults.MaxPath, "Maximum local path length in bytes")

	// Transport flags
	cmd.Flags().StringSliceP("lang", "l", defaults.Languages, "Preferred languages, most preferred first")
	cmd.Flags().DurationP("timeout", "t", defaults.RequestTimeout, "HTTP request timeout")
	cmd.Flags().IntP("concurrency", "c", defaults.Concurrency, "Maximum concurrent transfers (0=unlimited)")
	cmd.Flags().DurationP("delay", "r", defaults.RequestDelay, "Delay between requests to the same host")
	cmd.Flags().StringP("user-agent", "u", defaults.UserAgent, "HTTP User-Agent header")
	cmd.Flags().Bool("respect-robots", defaults.RespectRobots, "Honour robots.txt rules")
	cmd.Flags().StringSliceP("header", "H", []string{}, "Custom HTTP headers in 'Name: Value' format (use multiple times for multiple headers)")

	// Basic authentication flags
	cmd.Flags().String("auth-username", "", "Username for basic authentication")
	cmd.Flags().String("auth-password", "", "Password for basic authentication")

	flagKeys := []struct {
		viperKey string
		flagName string
	}{
		{"mode", "mode"},
		{"max_depth", "depth"},
		{"base_only", "base-only"},
		{"include_pattern", "include"},
		{"max_path", "max-path"},
		{"languages", "lang"},
		{"request_timeout", "timeout"},
		{"concurrency", "concurrency"},
		{"request_delay", "delay"},
		{"user_agent", "user-agent"},
		{"respect_robots", "respect-robots"},
		{"headers", "header"},
		{"auth.basic.username", "auth-username"},
		{"auth.basic.password", "auth-password"},
	}
	for _, bind := range flagKeys {
		if err := v.BindPFlag(bind.viperKey, cmd.Flags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
	persistentKeys := []struct {
		viperKey string
		flagName string
	}{
		{"database_path", "database"},
		{"log.level", "log-level"},
		{"log.format", "log-format"},
		{"log.file", "log-file"},
	}
	for _, bind := range persistentKeys {
		if err := v.BindPFlag(bind.viperKey, cmd.PersistentFlags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}

	// Keys without a flag still need a default to be read from the environment
	v.SetDefault("root_path", defaults.RootPath)
	v.SetDefault("auth.basic.username_env", "")
	v.SetDefault("auth.basic.password_env", "")

	cmd.AddCommand(newRunsCommand(v))
	return cmd
}

// initConfig reads in config file and ENV variables if set.
func initConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("webripper")
	}

	v.SetEnvPrefix("WR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
	return nil
}

// loadConfig merges defaults, config file, environment, flags and args.
func loadConfig(v *viper.Viper, args []string) (*config.RipConfig, error) {
	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(args) > 0 {
		cfg.SeedURL = args[0]
	}
	if len(args) > 1 {
		cfg.RootPath = args[1]
	}
	return cfg, nil
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("WebRipper/%s", version)
	}
	return "WebRipper/dev"
}

func showCurrentConfig(w io.Writer, cfg *config.RipConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(w, "# Warning: configuration validation failed: %v\n", err)
	}

	shown := *cfg
	if shown.Auth != nil && shown.Auth.Basic != nil && shown.Auth.Basic.Password != "" {
		basic := *shown.Auth.Basic
		basic.Password = "********"
		shown.Auth = &config.Auth{Basic: &basic}
	}

	yamlData, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current WebRipper Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./webripper.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: WR_\n\n")
	fmt.Fprint(w, string(yamlData))
	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (WR_ prefix)\n")
	fmt.Fprintf(w, "# 3. Configuration file (webripper.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")
	return nil
}

func newLogger(cmd *cobra.Command, cfg *config.RipConfig) (*slog.Logger, io.Closer, error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	logCfg.Format = cfg.Log.Format
	logCfg.FilePath = cfg.Log.File
	logCfg.Output = cmd.ErrOrStderr()
	closer, err := logging.SetDefault(*logCfg)
	if err != nil {
		return nil, nil, err
	}
	return slog.Default(), closer, nil
}

func runRip(cmd *cobra.Command, v *viper.Viper, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cfg, err := loadConfig(v, args)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("user-agent") && cfg.UserAgent == config.DefaultConfig().UserAgent {
		cfg.UserAgent = generateUserAgent()
	}

	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	mode, err := cfg.RipMode()
	if err != nil {
		return err
	}

	logger, logCloser, err := newLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	client, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	reporter := newProgressReporter(out, logger, quiet)
	opts := ripper.Options{
		SeedURI:        cfg.SeedURL,
		RootPath:       cfg.RootPath,
		Languages:      cfg.Languages,
		Timeout:        cfg.RequestTimeout,
		IsBase:         cfg.BaseOnly,
		MaxDepth:       cfg.MaxDepth,
		IncludePattern: cfg.IncludePattern,
		Concurrency:    cfg.Concurrency,
		MaxPath:        cfg.MaxPath,
		Progress:       reporter.Report,
		Logger:         logger,
	}

	if cfg.DatabasePath != "" {
		store, err := openJournal(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		opts.Journal = store
	}

	r, err := ripper.New(opts, ripper.DefaultEnv(client))
	if err != nil {
		return fmt.Errorf("failed to initialize ripper: %w", err)
	}

	fmt.Fprintf(out, "Starting rip with configuration:\n")
	fmt.Fprintf(out, "  URL: %s\n", cfg.SeedURL)
	fmt.Fprintf(out, "  Root: %s\n", cfg.RootPath)
	fmt.Fprintf(out, "  Mode: %s\n", mode)
	fmt.Fprintf(out, "  Max Depth: %d\n", cfg.MaxDepth)
	fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Concurrency)
	if cfg.DatabasePath != "" {
		fmt.Fprintf(out, "  Journal: %s\n", cfg.DatabasePath)
	}
	if username, password := cfg.GetBasicAuthCredentials(); username != "" && password != "" {
		fmt.Fprintf(out, "  Authentication: Basic (username: %s)\n", username)
	} else {
		fmt.Fprintf(out, "  Authentication: None\n")
	}

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()
	go statsReporter(ctx, logger, r, reporter)

	result, err := r.Rip(ctx, mode)
	stop()
	if result != nil {
		printSummary(out, result, reporter.Bytes())
	}
	return err
}

func newHTTPClient(cfg *config.RipConfig) (*downloader.HTTPClient, error) {
	client := downloader.NewHTTPClient(cfg.UserAgent)
	if username, password := cfg.GetBasicAuthCredentials(); username != "" && password != "" {
		client.SetBasicAuth(username, password)
	}
	headers, err := cfg.ParsedHeaders()
	if err != nil {
		return nil, err
	}
	client.SetCustomHeaders(headers)
	if cfg.RequestDelay > 0 {
		client.SetRequestDelay(cfg.RequestDelay)
	}
	if cfg.RespectRobots {
		client.RespectRobots()
	}
	return client, nil
}

func openJournal(dbPath string) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}
	return store, nil
}

// statsReporter periodically logs the totals of a running rip
func statsReporter(ctx context.Context, logger *slog.Logger, r *ripper.Ripper, p *progressReporter) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Rip stats", "resources", len(r.Resources()), "files", p.Files(),
				"bytes", humanize.Bytes(uint64(p.Bytes())))
		}
	}
}

func printSummary(w io.Writer, result *ripper.Result, bytes int64) {
	fmt.Fprintf(w, "\nRip %s in %s\n", result.Status, result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Run: %s\n", result.RunID)
	if result.Root != "" {
		fmt.Fprintf(w, "  Entry point: %s\n", result.Root)
	}
	fmt.Fprintf(w, "  Resources: %d\n", result.Resources)
	fmt.Fprintf(w, "  Downloaded: %d (%s)\n", result.Downloaded, humanize.Bytes(uint64(bytes)))

	failures := unwrapAll(result.Failures)
	if len(failures) > 0 {
		fmt.Fprintf(w, "  Failures: %d\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(w, "    %v\n", f)
		}
	}
	if result.Err != nil && result.Status == ripper.StatusFailed {
		fmt.Fprintf(w, "  Error: %v\n", result.Err)
	}
}

func unwrapAll(err error) []error {
	if err == nil {
		return nil
	}
	if m, ok := err.(interface{ Unwrap() []error }); ok {
		return m.Unwrap()
	}
	return []error{err}
}

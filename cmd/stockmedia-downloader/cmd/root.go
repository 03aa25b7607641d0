package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go-stockmedia-download/internal/config"
	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/telemetry"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Persistent flag values
var (
	cfgFile    string
	envFile    string
	logLevel   string
	logFormat  string
	logFile    string
	logApiFlag bool
	outputDir  string
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

var (
	telemetryShutdown telemetry.ShutdownFunc
	logFileHandle     *os.File
)

var rootCmd = &cobra.Command{
	Use:   "stockmedia-downloader",
	Short: "Bulk downloader for royalty-free stock images and videos",
	Long: `Searches several stock media catalogs (Unsplash, Pexels, Pixabay, Coverr,
Mixkit, Videvo) for a keyword and downloads the results into a
content-addressed folder layout with a JSON manifest.`,
	PersistentPreRunE:  loadGlobalConfig,
	PersistentPostRunE: shutdownGlobal,
	SilenceUsage:       true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel in-flight work.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is ./config.toml or ~/.config/stockmedia-downloader/config.toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file with API keys (default ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to _meta/api.log (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Output folder (overrides config, default "+config.DefaultOutputDir+")")
}

// buildCliFlags turns the flags the user actually set into config overrides.
func buildCliFlags(cmd *cobra.Command) config.CliFlags {
	fs := cmd.Flags()
	flags := config.CliFlags{Fetch: &config.CliFetchFlags{}}

	if fs.Changed("config") {
		flags.ConfigFilePath = &cfgFile
	}
	if fs.Changed("env-file") {
		flags.EnvFilePath = &envFile
	}
	if fs.Changed("log-level") {
		flags.LogLevel = &logLevel
	}
	if fs.Changed("log-format") {
		flags.LogFormat = &logFormat
	}
	if fs.Changed("log-file") {
		flags.LogFile = &logFile
	}
	if fs.Changed("log-api") {
		flags.LogApiRequests = &logApiFlag
	}
	if fs.Changed("output") {
		flags.OutputDir = &outputDir
	}

	f := flags.Fetch
	if fs.Changed("query") {
		f.Query = &fetchQueryFlag
	}
	if fs.Changed("items") {
		f.Items = &fetchItemsFlag
	}
	if fs.Changed("threads") {
		f.Workers = &fetchWorkersFlag
	}
	if fs.Changed("sources") {
		f.Sources = &fetchSourcesFlag
	}
	if fs.Changed("no-scrape") {
		f.NoScrape = &fetchNoScrapeFlag
	}
	if fs.Changed("unsplash-key") {
		f.UnsplashKey = &fetchUnsplashKeyFlag
	}
	if fs.Changed("pexels-key") {
		f.PexelsKey = &fetchPexelsKeyFlag
	}
	if fs.Changed("pixabay-key") {
		f.PixabayKey = &fetchPixabayKeyFlag
	}
	if fs.Changed("no-history") {
		f.NoHistory = &fetchNoHistoryFlag
	}
	if fs.Changed("no-index") {
		f.NoIndex = &fetchNoIndexFlag
	}
	if fs.Changed("no-metrics") {
		f.NoMetrics = &fetchNoMetricsFlag
	}
	return flags
}

// loadGlobalConfig initializes logging, configuration and tracing before any command runs.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	// Honour --log-level while the config itself loads.
	if err := initLogging(logLevel, logFormat, ""); err != nil {
		return err
	}

	cfg, err := config.Initialize(buildCliFlags(cmd))
	if err != nil {
		return err
	}
	globalConfig = cfg

	if err := initLogging(cfg.LogLevel, cfg.LogFormat, cfg.LogFile); err != nil {
		return err
	}

	shutdown, err := telemetry.Init(cmd.Context())
	if err != nil {
		log.WithError(err).Warn("Tracing disabled")
	} else {
		telemetryShutdown = shutdown
	}
	return nil
}

func shutdownGlobal(cmd *cobra.Command, args []string) error {
	if telemetryShutdown != nil {
		if err := telemetryShutdown(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to flush traces")
		}
		telemetryShutdown = nil
	}
	if logFileHandle != nil {
		log.SetOutput(os.Stderr)
		logFileHandle.Close()
		logFileHandle = nil
	}
	return nil
}

// initLogging applies level, format and the optional log file to the global logger.
func initLogging(level, format, file string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q (use text or json)", format)
	}

	if file == "" || logFileHandle != nil {
		return nil
	}
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", file, err)
	}
	logFileHandle = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

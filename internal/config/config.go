package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go-stockmedia-download/internal/api"
	"go-stockmedia-download/internal/downloader"
	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/paths"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// --- Default Configuration Values ---
const (
	DefaultOutputDir           = "downloads"
	DefaultQuery               = "nature"
	DefaultItems               = 10
	DefaultWorkers             = 0 // 0 = pick from CPU count
	DefaultMaxParallelSearches = 6
	DefaultRequestTimeoutSec   = 20
	DefaultDownloadTimeoutSec  = 25
	DefaultMaxRetries          = 5
	DefaultInitialRetryDelayMs = 600
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultNoScrape            = false
	DefaultLogApiRequests      = false

	DefaultHistoryEnabled      = true
	DefaultHistoryDatabasePath = "_meta/history.db"
	DefaultIndexEnabled        = true
	DefaultIndexPath           = "_meta/index.bleve"
	DefaultMetricsEnabled      = true
	DefaultMetricsTextfilePath = "_meta/metrics.prom"

	DefaultAPILogFile = "api.log"
	EnvPrefix         = "STOCKMEDIA"
	ConfigFileName    = "config.toml"
	appConfigDirName  = "stockmedia-downloader"
)

var (
	ErrNoSources    = errors.New("no valid sources selected")
	ErrInvalidItems = errors.New("items must be at least 1")
)

// DefaultSources is every known catalog, structured first.
func DefaultSources() []string {
	all := models.AllSources()
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.String()
	}
	return out
}

// setViperDefaults registers every key so environment variables are seen by Unmarshal.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("outputdir", DefaultOutputDir)
	v.SetDefault("query", DefaultQuery)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("logfile", "")
	v.SetDefault("useragent", api.DefaultUserAgent)
	v.SetDefault("sources", DefaultSources())
	v.SetDefault("items", DefaultItems)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("maxparallelsearches", DefaultMaxParallelSearches)
	v.SetDefault("requesttimeoutsec", DefaultRequestTimeoutSec)
	v.SetDefault("downloadtimeoutsec", DefaultDownloadTimeoutSec)
	v.SetDefault("maxretries", DefaultMaxRetries)
	v.SetDefault("initialretrydelayms", DefaultInitialRetryDelayMs)
	v.SetDefault("noscrape", DefaultNoScrape)
	v.SetDefault("logapirequests", DefaultLogApiRequests)

	v.SetDefault("history.enabled", DefaultHistoryEnabled)
	v.SetDefault("history.databasepath", DefaultHistoryDatabasePath)
	v.SetDefault("index.enabled", DefaultIndexEnabled)
	v.SetDefault("index.path", DefaultIndexPath)
	v.SetDefault("metrics.enabled", DefaultMetricsEnabled)
	v.SetDefault("metrics.textfilepath", DefaultMetricsTextfilePath)
}

// bindCredentialEnv maps each credential onto the prefixed variable and the
// bare provider-style name (UNSPLASH_KEY, ...). The first one set wins.
func bindCredentialEnv(v *viper.Viper) {
	for _, s := range models.StructuredSources {
		key := "credentials." + s.String()
		prefixed := EnvPrefix + "_CREDENTIALS_" + strings.ToUpper(s.String())
		bare := strings.ToUpper(s.String()) + "_KEY"
		if err := v.BindEnv(key, prefixed, bare); err != nil {
			log.WithError(err).Warnf("Failed to bind environment for %s", key)
		}
	}
}

// CliFlags holds pointers to flag values. A nil pointer means the flag was not set.
type CliFlags struct {
	ConfigFilePath *string
	EnvFilePath    *string
	LogLevel       *string
	LogFormat      *string
	LogFile        *string
	LogApiRequests *bool
	OutputDir      *string
	UserAgent      *string
	MaxRetries     *int
	Fetch          *CliFetchFlags
}

// CliFetchFlags are the flags of the search and fetch commands.
type CliFetchFlags struct {
	Query       *string
	Items       *int
	Workers     *int
	Sources     *[]string
	NoScrape    *bool
	UnsplashKey *string
	PexelsKey   *string
	PixabayKey  *string
	NoHistory   *bool
	NoIndex     *bool
	NoMetrics   *bool
}

// Initialize merges defaults, the .env file, the environment, the config file
// and flags, in increasing order of precedence.
func Initialize(flags CliFlags) (models.Config, error) {
	envFile := ".env"
	if flags.EnvFilePath != nil && *flags.EnvFilePath != "" {
		envFile = *flags.EnvFilePath
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warnf("Failed to load env file %s", envFile)
		}
	} else {
		log.Debugf("Loaded environment from %s", envFile)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)
	bindCredentialEnv(v)

	// --- 1. Load Config File ---
	configFilePath := ""
	if flags.ConfigFilePath != nil {
		configFilePath = *flags.ConfigFilePath
	}
	if configFilePath != "" {
		log.Debugf("[Initialize] Using config file from flag: %s", configFilePath)
		v.SetConfigFile(configFilePath)
	} else {
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", appConfigDirName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			log.Infof("No config file found, using defaults and environment")
		} else {
			return models.Config{}, fmt.Errorf("failed to read config file %s: %w", v.ConfigFileUsed(), err)
		}
	} else {
		log.Debugf("[Initialize] Loaded config file %s", v.ConfigFileUsed())
	}

	// --- 2. Unmarshal ---
	var finalCfg models.Config
	if err := v.Unmarshal(&finalCfg); err != nil {
		return models.Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// --- 3. Apply Flag Overrides ---
	if flags.LogLevel != nil {
		log.Debugf("[Initialize] Overriding LogLevel with flag: %s", *flags.LogLevel)
		finalCfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		log.Debugf("[Initialize] Overriding LogFormat with flag: %s", *flags.LogFormat)
		finalCfg.LogFormat = *flags.LogFormat
	}
	if flags.LogFile != nil {
		finalCfg.LogFile = *flags.LogFile
	}
	if flags.LogApiRequests != nil {
		log.Debugf("[Initialize] Overriding LogApiRequests with flag: %t", *flags.LogApiRequests)
		finalCfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.OutputDir != nil {
		log.Debugf("[Initialize] Overriding OutputDir with flag: %s", *flags.OutputDir)
		finalCfg.OutputDir = *flags.OutputDir
	}
	if flags.UserAgent != nil {
		finalCfg.UserAgent = *flags.UserAgent
	}
	if flags.MaxRetries != nil {
		log.Debugf("[Initialize] Overriding MaxRetries with flag: %d", *flags.MaxRetries)
		finalCfg.MaxRetries = *flags.MaxRetries
	}

	if f := flags.Fetch; f != nil {
		if f.Query != nil {
			log.Debugf("[Initialize] Overriding Query with flag: %s", *f.Query)
			finalCfg.Query = *f.Query
		}
		if f.Items != nil {
			log.Debugf("[Initialize] Overriding Items with flag: %d", *f.Items)
			finalCfg.Items = *f.Items
		}
		if f.Workers != nil {
			log.Debugf("[Initialize] Overriding Workers with flag: %d", *f.Workers)
			finalCfg.Workers = *f.Workers
		}
		if f.Sources != nil && len(*f.Sources) > 0 {
			log.Debugf("[Initialize] Overriding Sources with flag: %v", *f.Sources)
			finalCfg.Sources = *f.Sources
		}
		if f.NoScrape != nil {
			finalCfg.NoScrape = *f.NoScrape
		}
		if f.UnsplashKey != nil && *f.UnsplashKey != "" {
			finalCfg.Credentials.Unsplash = *f.UnsplashKey
		}
		if f.PexelsKey != nil && *f.PexelsKey != "" {
			finalCfg.Credentials.Pexels = *f.PexelsKey
		}
		if f.PixabayKey != nil && *f.PixabayKey != "" {
			finalCfg.Credentials.Pixabay = *f.PixabayKey
		}
		if f.NoHistory != nil && *f.NoHistory {
			finalCfg.History.Enabled = false
		}
		if f.NoIndex != nil && *f.NoIndex {
			finalCfg.Index.Enabled = false
		}
		if f.NoMetrics != nil && *f.NoMetrics {
			finalCfg.Metrics.Enabled = false
		}
	}

	if finalCfg.OutputDir == "" {
		return models.Config{}, fmt.Errorf("OutputDir cannot be empty (set via --output flag or OutputDir in config)")
	}

	log.Debug("Configuration initialized successfully.")
	return finalCfg, nil
}

// Validate normalizes the source selection and clamps numeric settings. It
// returns the sources to search, in the order they were given.
func Validate(cfg *models.Config) ([]models.Source, error) {
	requested := cfg.Sources
	if len(requested) == 0 {
		requested = DefaultSources()
	}

	seen := make(map[models.Source]bool, len(requested))
	var selected []models.Source
	for _, raw := range requested {
		// Comma separated values inside one entry are accepted too.
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := models.ParseSource(part)
			if err != nil {
				log.Warnf("Ignoring %v", err)
				continue
			}
			if cfg.NoScrape && !s.Structured() {
				log.Debugf("Skipping scraped source %s (scraping disabled)", s)
				continue
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			selected = append(selected, s)
		}
	}
	if len(selected) == 0 {
		return nil, ErrNoSources
	}

	if cfg.Items < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidItems, cfg.Items)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = downloader.DefaultWorkers()
	} else {
		cfg.Workers = downloader.ClampWorkers(cfg.Workers)
	}
	if cfg.MaxParallelSearches <= 0 || cfg.MaxParallelSearches > DefaultMaxParallelSearches {
		cfg.MaxParallelSearches = DefaultMaxParallelSearches
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = DefaultRequestTimeoutSec
	}
	if cfg.DownloadTimeoutSec <= 0 {
		cfg.DownloadTimeoutSec = DefaultDownloadTimeoutSec
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialRetryDelayMs <= 0 {
		cfg.InitialRetryDelayMs = DefaultInitialRetryDelayMs
	}

	cfg.Sources = make([]string, len(selected))
	for i, s := range selected {
		cfg.Sources[i] = s.String()
	}
	return selected, nil
}

// HistoryPath resolves the sqlite path against the output directory.
func HistoryPath(cfg models.Config) string {
	return helpers.ResolvePath(cfg.OutputDir, cfg.History.DatabasePath, DefaultHistoryDatabasePath)
}

// IndexPath resolves the bleve index directory against the output directory.
func IndexPath(cfg models.Config) string {
	return helpers.ResolvePath(cfg.OutputDir, cfg.Index.Path, DefaultIndexPath)
}

// MetricsPath resolves the metrics textfile against the output directory.
func MetricsPath(cfg models.Config) string {
	return helpers.ResolvePath(cfg.OutputDir, cfg.Metrics.TextfilePath, DefaultMetricsTextfilePath)
}

// APILogPath is where request dumps go when LogApiRequests is set.
func APILogPath(cfg models.Config) string {
	if !cfg.LogApiRequests {
		return ""
	}
	return paths.MetaPath(cfg.OutputDir, DefaultAPILogFile)
}

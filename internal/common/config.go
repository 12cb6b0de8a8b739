package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production" - controls test URL validation
	Server      ServerConfig     `toml:"server"`
	Archive     ArchiveConfig    `toml:"archive"`
	JobEngine   JobEngineConfig  `toml:"job_engine"`
	Storage     StorageConfig    `toml:"storage"`
	Filter      FilterConfig     `toml:"filter"`
	Extractor   ExtractorConfig  `toml:"extractor"`
	DualWrite   DualWriteConfig  `toml:"dual_write"`
	CDC         CDCConfig        `toml:"cdc"`
	Consistency ConsistencyConfig `toml:"consistency"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// ArchiveConfig configures the Archive Source Router and its strategies.
type ArchiveConfig struct {
	WaybackEnabled     bool          `toml:"wayback_enabled"`
	CommonCrawlEnabled bool          `toml:"common_crawl_enabled"`
	FallbackPolicy     string        `toml:"fallback_policy"` // "immediate", "retry_then_fallback", "circuit_breaker"
	HybridMergeEnabled bool          `toml:"hybrid_merge_enabled"`
	RequestTimeout     time.Duration `toml:"request_timeout"`
	MaxRetries         int           `toml:"max_retries"`
	InitialBackoff     time.Duration `toml:"initial_backoff"`
	MaxBackoff         time.Duration `toml:"max_backoff"`
	RateLimitPerSecond float64       `toml:"rate_limit_per_second"`
	CircuitBreaker     CircuitBreakerConfig `toml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the per-source circuit breaker.
type CircuitBreakerConfig struct {
	MaxRequestsHalfOpen uint32        `toml:"max_requests_half_open"`
	OpenInterval        time.Duration `toml:"open_interval"`
	BaseTimeout         time.Duration `toml:"base_timeout"`
	MaxTimeout          time.Duration `toml:"max_timeout"`
	FailureThreshold    float64       `toml:"failure_threshold"` // ratio of failures in the sampled window that trips the breaker
	MinRequests         uint32        `toml:"min_requests"`
}

// JobEngineConfig configures the named priority queues and worker pool.
type JobEngineConfig struct {
	PollInterval      string `toml:"poll_interval"`
	VisibilityTimeout string `toml:"visibility_timeout"`
	MaxReceive        int    `toml:"max_receive"` // times a job may be redelivered before moving to the dead-letter queue
	QuickWorkers      int    `toml:"quick_workers"`
	ScrapingWorkers   int    `toml:"scraping_workers"`
	IndexingWorkers   int    `toml:"indexing_workers"`
	DefaultWorkers    int    `toml:"default_workers"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	StaleAfter        string `toml:"stale_after"`
}

type StorageConfig struct {
	Badger     BadgerConfig     `toml:"badger"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration, used for the
// dual-write outbox, dead-letter store, and CDC checkpoint.
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// SQLiteConfig configures the transactional store backing the Persistence Facade.
type SQLiteConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
	Environment    string `toml:"-"` // populated from Config.Environment at load time
	CacheSizeMB    int    `toml:"cache_size_mb"`
	BusyTimeoutMS  int    `toml:"busy_timeout_ms"`
	WALMode        bool   `toml:"wal_mode"`
}

type FilesystemConfig struct {
	Attachments string `toml:"attachments"`
}

// FilterConfig configures the Intelligent Filter's rule pipeline.
type FilterConfig struct {
	ExcludedExtensions   []string `toml:"excluded_extensions"`
	AttachmentExtensions []string `toml:"attachment_extensions"`
	MaxSizeBytes         int64    `toml:"max_size_bytes"`
	MinSizeBytes         int64    `toml:"min_size_bytes"`
	ListPagePatterns     []string `toml:"list_page_patterns"`
}

// ExtractorConfig configures the Tiered Extractor.
type ExtractorConfig struct {
	MinQualityScore   float64 `toml:"min_quality_score"`
	PDFExtractEnabled bool    `toml:"pdf_extract_enabled"`
}

// DualWriteConfig configures the Dual-Write Synchronizer.
type DualWriteConfig struct {
	ConsistencyLevel string `toml:"consistency_level"` // "strong", "eventual", "weak"
	MaxRetries       int    `toml:"max_retries"`
	RetryBackoff     string `toml:"retry_backoff"`
}

// CDCConfig configures the Change Data Capture Bridge.
type CDCConfig struct {
	Enabled           bool   `toml:"enabled"`
	PollInterval      string `toml:"poll_interval"`
	BatchSize         int    `toml:"batch_size"`
	CheckpointKey     string `toml:"checkpoint_key"`
}

// ConsistencyConfig configures the Consistency Validator's periodic run.
type ConsistencyConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron schedule format
	Limit    int    `toml:"limit"`
}

type LoggingConfig struct {
	Level         string   `toml:"level"`
	Format        string   `toml:"format"`
	Output        []string `toml:"output"`
	TimeFormat    string   `toml:"time_format"`
	MinEventLevel string   `toml:"min_event_level"`
}

// NewDefaultConfig returns a Config populated with sane development defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Archive: ArchiveConfig{
			WaybackEnabled:     true,
			CommonCrawlEnabled: true,
			FallbackPolicy:     "retry_then_fallback",
			HybridMergeEnabled: false,
			RequestTimeout:     30 * time.Second,
			MaxRetries:         3,
			InitialBackoff:     time.Second,
			MaxBackoff:         30 * time.Second,
			RateLimitPerSecond: 2.0,
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequestsHalfOpen: 1,
				OpenInterval:        60 * time.Second,
				BaseTimeout:         30 * time.Second,
				MaxTimeout:          10 * time.Minute,
				FailureThreshold:    0.6,
				MinRequests:         5,
			},
		},
		JobEngine: JobEngineConfig{
			PollInterval:      "1s",
			VisibilityTimeout: "5m",
			MaxReceive:        5,
			QuickWorkers:      4,
			ScrapingWorkers:   8,
			IndexingWorkers:   4,
			DefaultWorkers:    2,
			HeartbeatInterval: "15s",
			StaleAfter:        "2m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/badger",
				ResetOnStartup: false,
			},
			SQLite: SQLiteConfig{
				Path:           "./data/chrono.db",
				ResetOnStartup: false,
				CacheSizeMB:    64,
				BusyTimeoutMS:  5000,
				WALMode:        true,
			},
			Filesystem: FilesystemConfig{
				Attachments: "./data/attachments",
			},
		},
		Filter: FilterConfig{
			ExcludedExtensions:   []string{".css", ".js", ".woff", ".woff2", ".ttf", ".ico", ".map"},
			AttachmentExtensions: []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx"},
			MaxSizeBytes:         20 * 1024 * 1024,
			MinSizeBytes:         128,
			ListPagePatterns:     []string{`(?i)/(page|tag|category)/\d+/?$`, `(?i)\?(page|p)=\d+$`},
		},
		Extractor: ExtractorConfig{
			MinQualityScore:   0.4,
			PDFExtractEnabled: true,
		},
		DualWrite: DualWriteConfig{
			ConsistencyLevel: "eventual",
			MaxRetries:       5,
			RetryBackoff:     "2s",
		},
		CDC: CDCConfig{
			Enabled:       true,
			PollInterval:  "5s",
			BatchSize:     200,
			CheckpointKey: "cdc/checkpoint",
		},
		Consistency: ConsistencyConfig{
			Enabled:  true,
			Schedule: "@every 1h",
			Limit:    10000,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "text",
			Output:        []string{"stdout", "file"},
			TimeFormat:    "15:04:05.000",
			MinEventLevel: "info",
		},
	}
}

// LoadFromFile loads a single configuration file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones,
// matching the command's repeated "-config" flag semantics.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	config.Storage.SQLite.Environment = config.Environment

	return config, nil
}

// applyEnvOverrides applies environment variable overrides, taking priority
// over file-based configuration.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CHRONO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("CHRONO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CHRONO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if wayback := os.Getenv("CHRONO_ARCHIVE_WAYBACK_ENABLED"); wayback != "" {
		config.Archive.WaybackEnabled = wayback == "true"
	}
	if cc := os.Getenv("CHRONO_ARCHIVE_COMMON_CRAWL_ENABLED"); cc != "" {
		config.Archive.CommonCrawlEnabled = cc == "true"
	}

	if path := os.Getenv("CHRONO_STORAGE_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}
	if path := os.Getenv("CHRONO_STORAGE_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
}

// ApplyFlagOverrides applies CLI flag overrides, which take priority over
// both files and environment variables.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowTestURLs reports whether non-production target domains (localhost,
// 127.0.0.1, etc.) may be registered without a warning escalating to an error.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}

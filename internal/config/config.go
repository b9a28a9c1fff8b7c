// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/places-crawler/internal/crawler"
	"github.com/JakeFAU/places-crawler/internal/source/headless"
	"github.com/JakeFAU/places-crawler/internal/storage"
)

// EnvPrefix namespaces environment overrides, e.g. PLACES_STORAGE_FORMAT=csv.
const EnvPrefix = "PLACES"

// Record source kinds.
const (
	SourceHeadless = "headless"
	SourceSnapshot = "snapshot"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Browser BrowserConfig `mapstructure:"browser"`
	Source  SourceConfig  `mapstructure:"source"`
	Storage StorageConfig `mapstructure:"storage"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Status  StatusConfig  `mapstructure:"status"`
	Journal JournalConfig `mapstructure:"journal"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs pacing and limits of the crawl engine.
type CrawlerConfig struct {
	DelayMin           time.Duration `mapstructure:"delay_min"`
	DelayMax           time.Duration `mapstructure:"delay_max"`
	MaxScrolls         int           `mapstructure:"max_scrolls"`
	ScrollPause        time.Duration `mapstructure:"scroll_pause"`
	MaxImages          int           `mapstructure:"max_images"`
	ImageColumns       int           `mapstructure:"image_columns"`
	OpenQPS            float64       `mapstructure:"open_qps"`
	SessionURLCapacity int           `mapstructure:"session_url_capacity"`
	SearchAttempts     int           `mapstructure:"search_attempts"`
	Slow               bool          `mapstructure:"slow"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
	ListingTimeout    time.Duration `mapstructure:"listing_timeout"`
	FieldTimeout      time.Duration `mapstructure:"field_timeout"`
	OpenSettle        time.Duration `mapstructure:"open_settle"`
	ScrollDelta       float64       `mapstructure:"scroll_delta"`
}

// SourceConfig selects where listings come from.
type SourceConfig struct {
	Kind         string `mapstructure:"kind"`
	SnapshotPath string `mapstructure:"snapshot_path"`
	PageSize     int    `mapstructure:"page_size"`
}

// StorageConfig selects the table backend.
type StorageConfig struct {
	Format         string `mapstructure:"format"`
	Dir            string `mapstructure:"dir"`
	Sheet          string `mapstructure:"sheet"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	PostgresSchema string `mapstructure:"postgres_schema"`
}

// ArchiveConfig controls where finished tables are copied.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// StatusConfig controls the optional status server.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// JournalConfig controls the run event feed.
type JournalConfig struct {
	// Dir holds one JSON-lines journal per table; "" disables the journal.
	Dir string `mapstructure:"dir"`
	// LogEvents also logs every event.
	LogEvents bool `mapstructure:"log_events"`
}

// Enabled reports whether any event sink is configured.
func (j JournalConfig) Enabled() bool {
	return j.Dir != "" || j.LogEvents
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Option adjusts the Viper instance before the config is decoded.
type Option func(v *viper.Viper) error

// WithFlags binds command-line flags to config keys. Only flags the user
// set override file and environment values.
func WithFlags(fs *pflag.FlagSet, bindings map[string]string) Option {
	return func(v *viper.Viper) error {
		for key, name := range bindings {
			flag := fs.Lookup(name)
			if flag == nil {
				return fmt.Errorf("bind %s: unknown flag --%s", key, name)
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("bind %s: %w", key, err)
			}
		}
		return nil
	}
}

// WithDotEnv loads variables from the given .env files into the process
// environment before env overrides are read. Missing files are ignored;
// variables already set are not overwritten.
func WithDotEnv(paths ...string) Option {
	return func(_ *viper.Viper) error {
		for _, p := range paths {
			if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err := godotenv.Load(p); err != nil {
				return fmt.Errorf("load %s: %w", p, err)
			}
		}
		return nil
	}
}

// Load builds a Config from defaults, an optional file, the environment and
// any options, then validates it.
func Load(path string, opts ...Option) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := crawler.DefaultConfig()
	v.SetDefault("crawler.delay_min", def.DelayMin)
	v.SetDefault("crawler.delay_max", def.DelayMax)
	v.SetDefault("crawler.max_scrolls", def.MaxScrolls)
	v.SetDefault("crawler.scroll_pause", def.ScrollPause)
	v.SetDefault("crawler.max_images", def.MaxImages)
	v.SetDefault("crawler.image_columns", 20)
	v.SetDefault("crawler.open_qps", 0.0)
	v.SetDefault("crawler.session_url_capacity", def.SessionURLCapacity)
	v.SetDefault("crawler.search_attempts", def.SearchAttempts)
	v.SetDefault("crawler.slow", false)

	v.SetDefault("browser.base_url", headless.DefaultBaseURL)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.navigation_timeout", 60*time.Second)
	v.SetDefault("browser.ready_timeout", 15*time.Second)
	v.SetDefault("browser.listing_timeout", 20*time.Second)
	v.SetDefault("browser.field_timeout", 2*time.Second)
	v.SetDefault("browser.open_settle", 3*time.Second)
	v.SetDefault("browser.scroll_delta", 6000.0)

	v.SetDefault("source.kind", SourceHeadless)
	v.SetDefault("source.snapshot_path", "")
	v.SetDefault("source.page_size", 20)

	v.SetDefault("storage.format", storage.FormatXLSX)
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.sheet", "Places")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.postgres_schema", "public")

	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.local_dir", "")
	v.SetDefault("archive.prefix", "places")

	v.SetDefault("status.addr", "")

	v.SetDefault("journal.dir", "")
	v.SetDefault("journal.log_events", false)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if err := c.CrawlerSettings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("crawler: %w", err))
	}
	if c.Crawler.ImageColumns <= 0 {
		errs = append(errs, fmt.Errorf("crawler.image_columns must be > 0"))
	} else if c.Crawler.ImageColumns < c.Crawler.MaxImages {
		errs = append(errs, fmt.Errorf("crawler.image_columns (%d) must be >= crawler.max_images (%d)",
			c.Crawler.ImageColumns, c.Crawler.MaxImages))
	}
	if c.Browser.FieldTimeout <= 0 {
		errs = append(errs, fmt.Errorf("browser.field_timeout must be > 0"))
	}
	switch c.Source.Kind {
	case SourceHeadless:
	case SourceSnapshot:
		if c.Source.SnapshotPath == "" {
			errs = append(errs, fmt.Errorf("source.snapshot_path must be set when source.kind is %q", SourceSnapshot))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind must be %q or %q, got %q", SourceHeadless, SourceSnapshot, c.Source.Kind))
	}
	if !slices.Contains(storage.Formats(), c.Storage.Format) {
		errs = append(errs, fmt.Errorf("storage.format must be one of %v, got %q", storage.Formats(), c.Storage.Format))
	}
	if c.Storage.Format == storage.FormatPostgres && c.Storage.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("storage.postgres_dsn must be set for the postgres format"))
	}
	if c.Archive.GCSBucket != "" && c.Archive.LocalDir != "" {
		errs = append(errs, fmt.Errorf("archive.gcs_bucket and archive.local_dir are mutually exclusive"))
	}
	return errors.Join(errs...)
}

// CrawlerSettings returns the immutable engine configuration, with the slow
// preset applied when requested.
func (c Config) CrawlerSettings() crawler.Config {
	cfg := crawler.Config{
		DelayMin:           c.Crawler.DelayMin,
		DelayMax:           c.Crawler.DelayMax,
		MaxScrolls:         c.Crawler.MaxScrolls,
		ScrollPause:        c.Crawler.ScrollPause,
		MaxImages:          c.Crawler.MaxImages,
		OpenQPS:            c.Crawler.OpenQPS,
		SessionURLCapacity: c.Crawler.SessionURLCapacity,
		SearchAttempts:     c.Crawler.SearchAttempts,
	}
	if c.Crawler.Slow {
		cfg = crawler.SlowPreset(cfg)
	}
	return cfg
}

// BrowserSettings returns the headless source configuration.
func (c Config) BrowserSettings() headless.Config {
	return headless.Config{
		BaseURL:           c.Browser.BaseURL,
		Headless:          c.Browser.Headless,
		ExecPath:          c.Browser.ExecPath,
		UserAgent:         c.Browser.UserAgent,
		NavigationTimeout: c.Browser.NavigationTimeout,
		ReadyTimeout:      c.Browser.ReadyTimeout,
		ListingTimeout:    c.Browser.ListingTimeout,
		FieldTimeout:      c.Browser.FieldTimeout,
		OpenSettle:        c.Browser.OpenSettle,
		ScrollDelta:       c.Browser.ScrollDelta,
	}
}

// StorageOptions returns the table backend options.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		Format:         c.Storage.Format,
		Dir:            c.Storage.Dir,
		Sheet:          c.Storage.Sheet,
		PostgresDSN:    c.Storage.PostgresDSN,
		PostgresSchema: c.Storage.PostgresSchema,
	}
}

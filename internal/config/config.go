// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Renderer drivers.
const (
	DriverChromedp = "chromedp"
	DriverStatic   = "static"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	MainPageURL string           `mapstructure:"main_page_url"`
	ScrollCount int              `mapstructure:"scroll_count"`
	Selectors   SelectorsConfig  `mapstructure:"selectors"`
	Output      OutputConfig     `mapstructure:"output"`
	Checkpoint  CheckpointConfig `mapstructure:"checkpoint"`
	Scraper     ScraperConfig    `mapstructure:"scraper"`
	Fallback    FallbackConfig   `mapstructure:"fallback"`
	Renderer    RendererConfig   `mapstructure:"renderer"`
	Pipeline    PipelineConfig   `mapstructure:"pipeline"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Storage     StorageConfig    `mapstructure:"storage"`
	DB          DBConfig         `mapstructure:"db"`
	PubSub      PubSubConfig     `mapstructure:"pubsub"`
}

// SelectorsConfig holds the site-specific CSS rules.
type SelectorsConfig struct {
	ProductLinks   string               `mapstructure:"product_links"`
	ProductTitle   string               `mapstructure:"product_title"`
	Categories     []string             `mapstructure:"categories"`
	Specifications SpecificationsConfig `mapstructure:"specifications"`
}

// SpecificationsConfig locates and classifies spec items.
type SpecificationsConfig struct {
	KeySpecsSection        string `mapstructure:"key_specs_section"`
	GeneralSpecsSection    string `mapstructure:"general_specs_section"`
	SpecItems              string `mapstructure:"spec_items"`
	SpecTitle              string `mapstructure:"spec_title"`
	SpecValue              string `mapstructure:"spec_value"`
	DiscriminatorAttribute string `mapstructure:"discriminator_attribute"`
}

// OutputConfig names the result file.
type OutputConfig struct {
	Filename string `mapstructure:"filename"`
}

// CheckpointConfig controls resumability.
type CheckpointConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Filename      string `mapstructure:"filename"`
	RetryUntitled bool   `mapstructure:"retry_untitled"`
}

// ScraperConfig bounds field waits and listing scroll pacing.
type ScraperConfig struct {
	TitleWait   time.Duration `mapstructure:"title_wait"`
	SpecsWait   time.Duration `mapstructure:"specs_wait"`
	ScrollPause time.Duration `mapstructure:"scroll_pause"`
}

// FallbackConfig tunes the marker-based spec heuristic.
type FallbackConfig struct {
	Marker      string   `mapstructure:"marker"`
	MinTitleLen int      `mapstructure:"min_title_len"`
	MaxTitleLen int      `mapstructure:"max_title_len"`
	MinValueLen int      `mapstructure:"min_value_len"`
	MaxValueLen int      `mapstructure:"max_value_len"`
	KeyKeywords []string `mapstructure:"key_keywords"`
}

// RendererConfig selects and tunes the rendering backend.
type RendererConfig struct {
	Driver            string        `mapstructure:"driver"`
	Contexts          int           `mapstructure:"contexts"`
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	HostQPS           float64       `mapstructure:"host_qps"`
	ExecPath          string        `mapstructure:"exec_path"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
}

// PipelineConfig paces the worker batches.
type PipelineConfig struct {
	ExtractionTimeout time.Duration `mapstructure:"extraction_timeout"`
	BatchDelayMin     time.Duration `mapstructure:"batch_delay_min"`
	BatchDelayMax     time.Duration `mapstructure:"batch_delay_max"`
}

// LoggingConfig toggles zap development features and an extra file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig identifies the service for tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// StorageConfig enables mirroring output files to GCS.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres record sink.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for per-product notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load reads, unmarshals and validates the configuration.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read builds a Config from disk and environment without validating it.
// Environment variables use the SCRAPER_ prefix with dots replaced by
// underscores, e.g. SCRAPER_RENDERER_CONTEXTS=4.
func Read(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("main_page_url", "")
	v.SetDefault("scroll_count", 0)
	v.SetDefault("selectors.product_links", "")
	v.SetDefault("selectors.product_title", "")
	v.SetDefault("selectors.categories", []string{})
	v.SetDefault("selectors.specifications.key_specs_section", "key_specs_section")
	v.SetDefault("selectors.specifications.general_specs_section", "general_specs_section")
	v.SetDefault("selectors.specifications.spec_items", "")
	v.SetDefault("selectors.specifications.spec_title", "")
	v.SetDefault("selectors.specifications.spec_value", "")
	v.SetDefault("selectors.specifications.discriminator_attribute", "class")
	v.SetDefault("output.filename", "scraped_products.json")
	v.SetDefault("checkpoint.enabled", true)
	v.SetDefault("checkpoint.filename", "checkpoint.json")
	v.SetDefault("checkpoint.retry_untitled", true)
	v.SetDefault("scraper.title_wait", "8s")
	v.SetDefault("scraper.specs_wait", "5s")
	v.SetDefault("scraper.scroll_pause", "2s")
	v.SetDefault("fallback.marker", "Specifications")
	v.SetDefault("fallback.min_title_len", 2)
	v.SetDefault("fallback.max_title_len", 60)
	v.SetDefault("fallback.min_value_len", 1)
	v.SetDefault("fallback.max_value_len", 200)
	v.SetDefault("fallback.key_keywords", []string{})
	v.SetDefault("renderer.driver", DriverChromedp)
	v.SetDefault("renderer.contexts", 2)
	v.SetDefault("renderer.headless", true)
	v.SetDefault("renderer.user_agent", "")
	v.SetDefault("renderer.navigation_timeout", "30s")
	v.SetDefault("renderer.host_qps", 0)
	v.SetDefault("renderer.exec_path", "")
	v.SetDefault("renderer.window_width", 1366)
	v.SetDefault("renderer.window_height", 768)
	v.SetDefault("pipeline.extraction_timeout", "60s")
	v.SetDefault("pipeline.batch_delay_min", "2s")
	v.SetDefault("pipeline.batch_delay_max", "5s")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("telemetry.service_name", "catalog-scraper")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "product_records")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.MainPageURL)
	if c.MainPageURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("main_page_url must be an absolute http(s) URL")
	}
	if c.ScrollCount < 0 {
		return fmt.Errorf("scroll_count must be >= 0")
	}
	if c.Selectors.ProductLinks == "" {
		return fmt.Errorf("selectors.product_links is required")
	}
	if c.Selectors.ProductTitle == "" {
		return fmt.Errorf("selectors.product_title is required")
	}
	if c.Output.Filename == "" {
		return fmt.Errorf("output.filename is required")
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Filename == "" {
		return fmt.Errorf("checkpoint.filename is required when checkpointing is enabled")
	}
	switch c.Renderer.Driver {
	case DriverChromedp, DriverStatic:
	default:
		return fmt.Errorf("renderer.driver must be %q or %q", DriverChromedp, DriverStatic)
	}
	if c.Renderer.Contexts <= 0 {
		return fmt.Errorf("renderer.contexts must be > 0")
	}
	if c.Renderer.NavigationTimeout <= 0 {
		return fmt.Errorf("renderer.navigation_timeout must be > 0")
	}
	if c.Pipeline.BatchDelayMin < 0 || c.Pipeline.BatchDelayMax < c.Pipeline.BatchDelayMin {
		return fmt.Errorf("pipeline batch delays must satisfy 0 <= min <= max")
	}
	if c.Pipeline.ExtractionTimeout < 0 {
		return fmt.Errorf("pipeline.extraction_timeout must be >= 0")
	}
	if c.Fallback.MinTitleLen > c.Fallback.MaxTitleLen || c.Fallback.MinValueLen > c.Fallback.MaxValueLen {
		return fmt.Errorf("fallback length bounds must satisfy min <= max")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

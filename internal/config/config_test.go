package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const validYAML = `
main_page_url: https://shop.test/catalog/phones
scroll_count: 3
selectors:
  product_links: a.product-card
  product_title: h1.product-title
  categories:
    - nav .crumb:nth-child(1)
    - nav .crumb:nth-child(2)
  specifications:
    spec_items: li.spec
    spec_title: .spec-title
    spec_value: .spec-value
output:
  filename: out/products.json
checkpoint:
  filename: state/checkpoint.json
  retry_untitled: false
scraper:
  title_wait: 3s
renderer:
  driver: static
  contexts: 4
  host_qps: 1.5
pipeline:
  batch_delay_min: 500ms
  batch_delay_max: 1s
fallback:
  key_keywords: ["Weight", "Screen"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	require.Equal(t, "https://shop.test/catalog/phones", cfg.MainPageURL)
	require.Equal(t, 3, cfg.ScrollCount)
	require.Equal(t, []string{"nav .crumb:nth-child(1)", "nav .crumb:nth-child(2)"}, cfg.Selectors.Categories)
	require.Equal(t, "li.spec", cfg.Selectors.Specifications.SpecItems)
	require.Equal(t, "class", cfg.Selectors.Specifications.DiscriminatorAttribute)
	require.Equal(t, "key_specs_section", cfg.Selectors.Specifications.KeySpecsSection)
	require.Equal(t, "out/products.json", cfg.Output.Filename)
	require.True(t, cfg.Checkpoint.Enabled)
	require.False(t, cfg.Checkpoint.RetryUntitled)
	require.Equal(t, "state/checkpoint.json", cfg.Checkpoint.Filename)
	require.Equal(t, 3*time.Second, cfg.Scraper.TitleWait)
	require.Equal(t, 5*time.Second, cfg.Scraper.SpecsWait)
	require.Equal(t, DriverStatic, cfg.Renderer.Driver)
	require.Equal(t, 4, cfg.Renderer.Contexts)
	require.InDelta(t, 1.5, cfg.Renderer.HostQPS, 1e-9)
	require.Equal(t, 500*time.Millisecond, cfg.Pipeline.BatchDelayMin)
	require.Equal(t, time.Second, cfg.Pipeline.BatchDelayMax)
	require.Equal(t, []string{"Weight", "Screen"}, cfg.Fallback.KeyKeywords)
	require.Equal(t, "Specifications", cfg.Fallback.Marker)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCRAPER_RENDERER_CONTEXTS", "6")
	t.Setenv("SCRAPER_OUTPUT_FILENAME", "env.json")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	require.Equal(t, 6, cfg.Renderer.Contexts)
	require.Equal(t, "env.json", cfg.Output.Filename)
}

func TestReadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Read("")
	require.NoError(t, err)
	require.Equal(t, "scraped_products.json", cfg.Output.Filename)
	require.Equal(t, "checkpoint.json", cfg.Checkpoint.Filename)
	require.True(t, cfg.Checkpoint.RetryUntitled)
	require.Equal(t, 8*time.Second, cfg.Scraper.TitleWait)
	require.Equal(t, DriverChromedp, cfg.Renderer.Driver)
	require.Equal(t, 2, cfg.Renderer.Contexts)
	require.True(t, cfg.Renderer.Headless)
	require.Equal(t, "catalog-scraper", cfg.Telemetry.ServiceName)

	require.Error(t, cfg.Validate(), "defaults alone lack a listing URL")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.MainPageURL = "/catalog" }},
		{"ftp url", func(c *Config) { c.MainPageURL = "ftp://shop.test/" }},
		{"negative scroll", func(c *Config) { c.ScrollCount = -1 }},
		{"no link rule", func(c *Config) { c.Selectors.ProductLinks = "" }},
		{"no title rule", func(c *Config) { c.Selectors.ProductTitle = "" }},
		{"no output", func(c *Config) { c.Output.Filename = "" }},
		{"no checkpoint file", func(c *Config) { c.Checkpoint.Filename = "" }},
		{"unknown driver", func(c *Config) { c.Renderer.Driver = "rod" }},
		{"zero contexts", func(c *Config) { c.Renderer.Contexts = 0 }},
		{"delay inverted", func(c *Config) { c.Pipeline.BatchDelayMax = time.Millisecond }},
		{"fallback inverted", func(c *Config) { c.Fallback.MinTitleLen = 100 }},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "products" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	disabled := base
	disabled.Checkpoint.Enabled = false
	disabled.Checkpoint.Filename = ""
	require.NoError(t, disabled.Validate())
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/checkpoint"
	"github.com/JakeFAU/catalog-scraper/internal/config"
)

const shopListing = `<html><body>
<a class="product" href="/p/1">Lamp</a>
<a class="product" href="/p/2">Phone</a>
<a class="product" href="/p/3">Mystery</a>
<a class="product" href="/p/1">Lamp again</a>
</body></html>`

const lampPage = `<html><body>
<h1 class="title">Desk Lamp</h1>
<nav><span class="c1">Home</span><span class="c2">Lighting</span></nav>
<ul><li class="item key_specs_section"><b>Power</b><i>9 W</i></li></ul>
</body></html>`

const phonePage = `<html><body>
<h1 class="title">Galaxy S24</h1>
<nav><span class="c1">Phones</span><span class="c2">Samsung (Galaxy)</span></nav>
<ul><li class="item"><b>Weight</b><i>167 g</i></li></ul>
</body></html>`

const untitledPage = `<html><body><p>Coming soon</p></body></html>`

func newShop(t *testing.T, listing string) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/list": listing,
		"/p/1":  lampPage,
		"/p/2":  phonePage,
		"/p/3":  untitledPage,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server) config.Config {
	t.Helper()
	dir := t.TempDir()
	var cfg config.Config
	cfg.MainPageURL = srv.URL + "/list"
	cfg.Selectors = config.SelectorsConfig{
		ProductLinks: "a.product",
		ProductTitle: "h1.title",
		Categories:   []string{"span.c1", "span.c2", "span.c3"},
		Specifications: config.SpecificationsConfig{
			KeySpecsSection:        "key_specs_section",
			SpecItems:              "li.item",
			SpecTitle:              "b",
			SpecValue:              "i",
			DiscriminatorAttribute: "class",
		},
	}
	cfg.Output.Filename = filepath.Join(dir, "out", "products.json")
	cfg.Checkpoint = config.CheckpointConfig{
		Enabled:       true,
		Filename:      filepath.Join(dir, "state", "checkpoint.json"),
		RetryUntitled: true,
	}
	cfg.Scraper = config.ScraperConfig{TitleWait: time.Second, SpecsWait: time.Second}
	cfg.Renderer = config.RendererConfig{
		Driver:            config.DriverStatic,
		Contexts:          2,
		NavigationTimeout: 5 * time.Second,
	}
	cfg.Pipeline.ExtractionTimeout = 10 * time.Second
	cfg.Telemetry.ServiceName = "catalog-scraper-test"
	require.NoError(t, cfg.Validate())
	return cfg
}

func build(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func readRecords(t *testing.T, path string) []catalog.ProductRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []catalog.ProductRecord
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestRunScrapesCatalogEndToEnd(t *testing.T) {
	srv := newShop(t, shopListing)
	cfg := testConfig(t, srv)
	a := build(t, cfg)

	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.RunID(), sum.RunID)
	assert.Equal(t, 3, sum.Discovered)
	assert.Equal(t, 3, sum.Dispatched)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Untitled)
	assert.False(t, sum.Interrupted)

	records := readRecords(t, cfg.Output.Filename)
	require.Len(t, records, 2)
	assert.Equal(t, srv.URL+"/p/1", records[0].URL)
	assert.Equal(t, "Desk Lamp", *records[0].Title)
	assert.Nil(t, records[0].Brand)
	assert.Equal(t, []catalog.Spec{{Title: "Power", Body: "9 W"}}, records[0].KeySpecs)

	assert.Equal(t, srv.URL+"/p/2", records[1].URL)
	require.NotNil(t, records[1].Brand)
	assert.Equal(t, "Samsung (Galaxy)", *records[1].Brand)
	assert.Equal(t, []catalog.Category{{Level: 1, Name: "Phones"}}, records[1].Categories)
	assert.Equal(t, []catalog.Spec{{Title: "Weight", Body: "167 g"}}, records[1].GeneralSpecs)

	store, err := OpenCheckpoint(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, store.Load(context.Background()))
	st := store.State()
	assert.ElementsMatch(t, []string{srv.URL + "/p/1", srv.URL + "/p/2"}, st.Processed)
	assert.Equal(t, []string{srv.URL + "/p/3"}, st.Failed)
	assert.Equal(t, "untitled", st.FailureReasons[srv.URL+"/p/3"])
	assert.Equal(t, 3, st.DiscoveredTotal)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	srv := newShop(t, shopListing)
	cfg := testConfig(t, srv)

	first := build(t, cfg)
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	second := build(t, cfg)
	sum, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Requeued)
	assert.Equal(t, 1, sum.Remaining)
	assert.Equal(t, 1, sum.Dispatched)
	assert.Equal(t, 1, sum.Untitled)
	assert.Len(t, readRecords(t, cfg.Output.Filename), 2)

	cfg.Checkpoint.RetryUntitled = false
	third := build(t, cfg)
	sum, err = third.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Dispatched)
	assert.Zero(t, sum.Remaining)
}

func TestRunEmptyDiscoveryLeavesResultsUntouched(t *testing.T) {
	srv := newShop(t, `<html><body><p>No products today</p></body></html>`)
	cfg := testConfig(t, srv)
	a := build(t, cfg)

	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Discovered)
	assert.NoFileExists(t, cfg.Output.Filename)
	assert.NoFileExists(t, cfg.Checkpoint.Filename)
}

func TestRunWithoutCheckpoint(t *testing.T) {
	srv := newShop(t, shopListing)
	cfg := testConfig(t, srv)
	cfg.Checkpoint.Enabled = false
	a := build(t, cfg)

	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Len(t, readRecords(t, cfg.Output.Filename), 2)
	assert.NoFileExists(t, cfg.Checkpoint.Filename)
}

func TestRunRejectsCorruptCheckpoint(t *testing.T) {
	srv := newShop(t, shopListing)
	cfg := testConfig(t, srv)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Checkpoint.Filename), 0o750))
	require.NoError(t, os.WriteFile(cfg.Checkpoint.Filename, []byte("{not json"), 0o600))
	a := build(t, cfg)

	_, err := a.Run(context.Background())
	require.ErrorIs(t, err, checkpoint.ErrCorrupt)
	assert.NoFileExists(t, cfg.Output.Filename)
}

func TestOpenCheckpointRequiresFilename(t *testing.T) {
	_, err := OpenCheckpoint(config.Config{}, nil)
	require.Error(t, err)
}

func TestRunWithDefaultBareFilenames(t *testing.T) {
	srv := newShop(t, shopListing)
	cfg := testConfig(t, srv)
	dir := t.TempDir()
	t.Chdir(dir)
	cfg.Output.Filename = "scraped_products.json"
	cfg.Checkpoint.Filename = "checkpoint.json"
	a := build(t, cfg)

	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Len(t, readRecords(t, filepath.Join(dir, "scraped_products.json")), 2)
	assert.FileExists(t, filepath.Join(dir, "checkpoint.json"))

	store, err := OpenCheckpoint(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, store.Load(context.Background()))
	assert.Len(t, store.State().Processed, 2)
}

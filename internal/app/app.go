// Package app builds the scraper's dependencies from configuration and runs
// one discovery and extraction pass.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/checkpoint"
	"github.com/JakeFAU/catalog-scraper/internal/clock"
	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
	"github.com/JakeFAU/catalog-scraper/internal/hash/sha256"
	"github.com/JakeFAU/catalog-scraper/internal/id/uuid"
	"github.com/JakeFAU/catalog-scraper/internal/logging"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/pipeline"
	"github.com/JakeFAU/catalog-scraper/internal/publisher"
	gcppublisher "github.com/JakeFAU/catalog-scraper/internal/publisher/pubsub"
	chromedprenderer "github.com/JakeFAU/catalog-scraper/internal/renderer/chromedp"
	staticrenderer "github.com/JakeFAU/catalog-scraper/internal/renderer/static"
	"github.com/JakeFAU/catalog-scraper/internal/results"
	gcsstorage "github.com/JakeFAU/catalog-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-scraper/internal/storage/local"
	pgstore "github.com/JakeFAU/catalog-scraper/internal/storage/postgres"
	"github.com/JakeFAU/catalog-scraper/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string
	clock  catalog.Clock

	session    catalog.Session
	discoverer *extract.Discoverer
	extractor  *extract.Extractor
	checkpoint *checkpoint.Store
	results    *results.Accumulator
	sinks      []catalog.RecordSink

	metricsServer   *http.Server
	storageClient   *storage.Client
	recordStore     *pgstore.RecordStore
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	tracerShutdown  func(context.Context) error
}

// Build creates the application's dependencies. On failure everything built
// so far is released.
func Build(ctx context.Context, cfg config.Config) (_ *App, err error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	runID, err := uuid.NewGenerator().NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		runID:  runID,
		clock:  clock.System{},
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()
	a.logger.Info("building application dependencies",
		zap.String("run_id", a.runID),
		zap.String("main_page_url", cfg.MainPageURL),
		zap.String("driver", cfg.Renderer.Driver),
		zap.Int("contexts", cfg.Renderer.Contexts),
	)

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		ProjectID:   cfg.Telemetry.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown

	if cfg.Metrics.Addr != "" {
		metrics.Init()
		a.metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	if err = a.setupRenderer(); err != nil {
		return nil, err
	}
	a.setupExtraction()
	if err = a.setupPersistence(ctx); err != nil {
		return nil, err
	}
	if err = a.setupDatabase(ctx); err != nil {
		return nil, err
	}
	if err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// RunID identifies this run in logs, database rows and notifications.
func (a *App) RunID() string { return a.runID }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Run discovers product URLs and extracts the ones the checkpoint has not
// seen. SIGINT and SIGTERM stop the run after a final checkpoint save. An
// empty discovery is logged and leaves the result file untouched.
func (a *App) Run(ctx context.Context) (pipeline.Summary, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.startMetricsServer(stop)

	if a.checkpoint != nil {
		if err := a.checkpoint.Load(ctx); err != nil {
			return pipeline.Summary{}, fmt.Errorf("load checkpoint: %w", err)
		}
		st := a.checkpoint.State()
		a.logger.Info("checkpoint loaded",
			zap.String("path", a.cfg.Checkpoint.Filename),
			zap.Int("processed", len(st.Processed)),
			zap.Int("failed", len(st.Failed)),
		)
	}

	tabs := a.session.Tabs()
	urls, err := a.discoverer.Discover(ctx, tabs[0])
	if err != nil {
		return pipeline.Summary{RunID: a.runID}, fmt.Errorf("discover products: %w", err)
	}
	if len(urls) == 0 {
		a.logger.Warn("no product links found; nothing to scrape", zap.String("main_page_url", a.cfg.MainPageURL))
		return pipeline.Summary{RunID: a.runID}, nil
	}

	deps := pipeline.Deps{
		Extractor:  a.extractor,
		Tabs:       tabs,
		Checkpoint: a.checkpoint,
		Results:    a.results,
		Sinks:      a.sinks,
		RunID:      a.runID,
	}
	coord, err := pipeline.New(deps, pipeline.Config{
		ExtractionTimeout: a.cfg.Pipeline.ExtractionTimeout,
		BatchDelayMin:     a.cfg.Pipeline.BatchDelayMin,
		BatchDelayMax:     a.cfg.Pipeline.BatchDelayMax,
		RetryUntitled:     a.cfg.Checkpoint.RetryUntitled,
	}, a.logger.Named("pipeline"))
	if err != nil {
		return pipeline.Summary{RunID: a.runID}, fmt.Errorf("pipeline init failed: %w", err)
	}
	return coord.Run(ctx, urls)
}

func (a *App) startMetricsServer(stop context.CancelFunc) {
	if a.metricsServer == nil {
		return
	}
	go func() {
		a.logger.Info("metrics server started", zap.String("addr", a.metricsServer.Addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", zap.Error(err))
			stop()
		}
	}()
}

// Close releases the renderer and every client. It is safe to call on a
// partially built App.
func (a *App) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	if a.session != nil {
		if err := a.session.Close(ctx); err != nil {
			a.logger.Warn("renderer close failed", zap.Error(err))
		}
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.recordStore != nil {
		a.recordStore.Close()
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *App) setupRenderer() error {
	rc := a.cfg.Renderer
	logger := a.logger.Named("renderer")
	switch rc.Driver {
	case config.DriverStatic:
		session, err := staticrenderer.NewSession(staticrenderer.Config{
			Contexts:       rc.Contexts,
			UserAgent:      rc.UserAgent,
			RequestTimeout: rc.NavigationTimeout,
			HostQPS:        rc.HostQPS,
		}, logger)
		if err != nil {
			return fmt.Errorf("static renderer init failed: %w", err)
		}
		a.session = session
	default:
		session, err := chromedprenderer.NewSession(chromedprenderer.Config{
			Contexts:          rc.Contexts,
			Headless:          rc.Headless,
			UserAgent:         rc.UserAgent,
			ExecPath:          rc.ExecPath,
			WindowWidth:       rc.WindowWidth,
			WindowHeight:      rc.WindowHeight,
			NavigationTimeout: rc.NavigationTimeout,
			HostQPS:           rc.HostQPS,
		}, logger)
		if err != nil {
			return fmt.Errorf("chromedp renderer init failed: %w", err)
		}
		a.session = session
	}
	a.logger.Info("renderer ready", zap.String("driver", rc.Driver), zap.Int("tabs", len(a.session.Tabs())))
	return nil
}

func (a *App) setupExtraction() {
	cfg := a.cfg
	a.discoverer = extract.NewDiscoverer(extract.DiscoveryConfig{
		ListingURL:        cfg.MainPageURL,
		LinkRule:          cfg.Selectors.ProductLinks,
		ScrollCount:       cfg.ScrollCount,
		ScrollPause:       cfg.Scraper.ScrollPause,
		NavigationTimeout: cfg.Renderer.NavigationTimeout,
	}, a.logger.Named("discover"))

	spec := cfg.Selectors.Specifications
	a.extractor = extract.NewExtractor(
		extract.Selectors{
			ProductLinks: cfg.Selectors.ProductLinks,
			ProductTitle: cfg.Selectors.ProductTitle,
			Categories:   cfg.Selectors.Categories,
			Specifications: extract.SpecSelectors{
				KeySpecsSection:        spec.KeySpecsSection,
				GeneralSpecsSection:    spec.GeneralSpecsSection,
				SpecItems:              spec.SpecItems,
				SpecTitle:              spec.SpecTitle,
				SpecValue:              spec.SpecValue,
				DiscriminatorAttribute: spec.DiscriminatorAttribute,
			},
		},
		extract.Waits{
			Title: cfg.Scraper.TitleWait,
			Specs: cfg.Scraper.SpecsWait,
		},
		extract.Fallback{
			Marker:      cfg.Fallback.Marker,
			MinTitleLen: cfg.Fallback.MinTitleLen,
			MaxTitleLen: cfg.Fallback.MaxTitleLen,
			MinValueLen: cfg.Fallback.MinValueLen,
			MaxValueLen: cfg.Fallback.MaxValueLen,
			KeyKeywords: cfg.Fallback.KeyKeywords,
		},
		a.logger.Named("extract"),
	)
}

func (a *App) setupPersistence(ctx context.Context) error {
	outDir, outName := filepath.Split(a.cfg.Output.Filename)
	local, err := localstorage.New(localstorage.Config{BaseDir: dirOrDot(outDir)})
	if err != nil {
		return fmt.Errorf("output store init failed: %w", err)
	}

	var mirror catalog.BlobStore
	if a.cfg.Storage.GCSBucket != "" {
		a.storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		gcs, err := gcsstorage.New(a.storageClient, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		mirror = gcs
		a.logger.Info("mirroring results to GCS",
			zap.String("bucket", a.cfg.Storage.GCSBucket),
			zap.String("prefix", a.cfg.Storage.Prefix),
		)
	}
	a.results = results.New(results.Config{Path: outName}, local, mirror, sha256.New(), a.logger.Named("results"))

	if !a.cfg.Checkpoint.Enabled {
		a.logger.Warn("checkpointing disabled; an interrupted run starts over")
		return nil
	}
	a.checkpoint, err = OpenCheckpoint(a.cfg, a.clock)
	return err
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no database DSN configured, skipping record store")
		return nil
	}
	var err error
	a.recordStore, err = pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	}, a.clock)
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	a.sinks = append(a.sinks, a.recordStore)
	a.logger.Info("record store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Topic == "" {
		a.logger.Debug("no Pub/Sub topic configured, skipping notifications")
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(a.pubsubClient.Topic(a.cfg.PubSub.Topic))
	a.sinks = append(a.sinks, publisher.NewSink(
		a.pubsubPublisher,
		a.cfg.PubSub.Topic,
		a.clock,
		a.logger.Named("publisher"),
	))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

// OpenCheckpoint returns the checkpoint store named by cfg without loading
// it. It does not require a valid scrape configuration.
func OpenCheckpoint(cfg config.Config, clk catalog.Clock) (*checkpoint.Store, error) {
	if cfg.Checkpoint.Filename == "" {
		return nil, fmt.Errorf("checkpoint.filename is required")
	}
	dir, name := filepath.Split(cfg.Checkpoint.Filename)
	objects, err := localstorage.New(localstorage.Config{BaseDir: dirOrDot(dir)})
	if err != nil {
		return nil, fmt.Errorf("checkpoint store init failed: %w", err)
	}
	if clk == nil {
		clk = clock.System{}
	}
	return checkpoint.New(objects, name, clk), nil
}

func dirOrDot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

// Package pipeline runs product extractions in bounded parallel batches and
// records their outcomes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/checkpoint"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/results"
	"github.com/JakeFAU/catalog-scraper/internal/telemetry"
)

const finalizeTimeout = 30 * time.Second

// Extractor turns one product URL into an outcome using the given tab.
type Extractor interface {
	Extract(ctx context.Context, tab catalog.Tab, productURL string) catalog.Outcome
}

// Config controls batching and pacing.
type Config struct {
	// ExtractionTimeout bounds each extraction. Zero disables the deadline.
	ExtractionTimeout time.Duration
	BatchDelayMin     time.Duration
	BatchDelayMax     time.Duration
	// RetryUntitled requeues URLs that previously rendered without a title.
	RetryUntitled bool
}

// Deps are the collaborators of a Coordinator. Checkpoint may be nil, which
// makes the run non-resumable.
type Deps struct {
	Extractor  Extractor
	Tabs       []catalog.Tab
	Checkpoint *checkpoint.Store
	Results    *results.Accumulator
	Sinks      []catalog.RecordSink
	RunID      string
}

// Summary describes a finished run.
type Summary struct {
	RunID       string
	Discovered  int
	Remaining   int
	Dispatched  int
	Processed   int
	Untitled    int
	Failed      int
	TimedOut    int
	Batches     int
	Requeued    int
	Interrupted bool
	Results     results.Summary
}

// Coordinator owns the tabs, the checkpoint store and the accumulator for
// the duration of a run. All shared state is mutated on the coordinator's
// goroutine after each batch joins.
type Coordinator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// New builds a Coordinator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if len(deps.Tabs) == 0 {
		return nil, fmt.Errorf("at least one tab is required")
	}
	if deps.Results == nil {
		return nil, fmt.Errorf("results accumulator is required")
	}
	if cfg.BatchDelayMax < cfg.BatchDelayMin {
		return nil, fmt.Errorf("batch delay max %s is below min %s", cfg.BatchDelayMax, cfg.BatchDelayMin)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(zap.String("run_id", deps.RunID)),
		sleep:  sleepContext,
	}, nil
}

// Run extracts every URL not yet recorded in the checkpoint. Batches hold at
// most one URL per tab. When ctx is canceled the in-flight batch is discarded,
// the state persisted so far is saved once more and Run returns with
// Summary.Interrupted set.
func (c *Coordinator) Run(ctx context.Context, urls []string) (Summary, error) {
	sum := Summary{RunID: c.deps.RunID, Discovered: len(urls)}
	metrics.SetDiscovered(len(urls))

	remaining := c.prepare(urls, &sum)
	sum.Remaining = len(remaining)
	c.logger.Info("starting extraction",
		zap.Int("discovered", len(urls)),
		zap.Int("remaining", len(remaining)),
		zap.Int("workers", len(c.deps.Tabs)),
	)

	k := len(c.deps.Tabs)
	for start := 0; start < len(remaining); start += k {
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}
		end := min(start+k, len(remaining))
		batch := remaining[start:end]

		outcomes := c.runBatch(ctx, sum.Batches, batch)
		if ctx.Err() != nil {
			c.logger.Warn("interrupted; discarding in-flight batch", zap.Int("batch_size", len(batch)))
			sum.Interrupted = true
			break
		}
		sum.Batches++
		sum.Dispatched += len(batch)
		c.apply(ctx, outcomes, &sum)
		c.persist(ctx)

		if end < len(remaining) {
			if err := c.sleep(ctx, c.batchDelay()); err != nil {
				sum.Interrupted = true
				break
			}
		}
	}

	err := c.finalize()
	sum.Results = c.deps.Results.Summary()
	c.logger.Info("extraction finished",
		zap.Int("dispatched", sum.Dispatched),
		zap.Int("processed", sum.Processed),
		zap.Int("untitled", sum.Untitled),
		zap.Int("failed", sum.Failed),
		zap.Int("timed_out", sum.TimedOut),
		zap.Int("records", sum.Results.Total),
		zap.Int("with_brand", sum.Results.WithBrand),
		zap.Int("with_specs", sum.Results.WithSpecs),
		zap.Bool("interrupted", sum.Interrupted),
	)
	return sum, err
}

// prepare seeds the accumulator from the checkpoint and returns the backlog.
func (c *Coordinator) prepare(urls []string, sum *Summary) []string {
	acc := c.deps.Results
	cp := c.deps.Checkpoint
	if cp == nil {
		acc.SetOrder(urls)
		return dedupe(urls)
	}

	cp.SetDiscoveredTotal(len(urls))
	if c.cfg.RetryUntitled {
		sum.Requeued = cp.Requeue(catalog.OutcomeUntitled)
		if sum.Requeued > 0 {
			c.logger.Info("requeued untitled products", zap.Int("count", sum.Requeued))
		}
	}
	for _, rec := range cp.State().Records {
		acc.Add(rec)
	}
	acc.SetOrder(urls)
	return cp.Remaining(urls)
}

func (c *Coordinator) runBatch(ctx context.Context, index int, batch []string) []catalog.Outcome {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.batch")
	span.SetAttributes(attribute.Int("batch.index", index), attribute.Int("batch.size", len(batch)))
	defer span.End()

	started := time.Now()
	outcomes := make([]catalog.Outcome, len(batch))
	var wg sync.WaitGroup
	for i, u := range batch {
		tab := c.deps.Tabs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			outcomes[i] = c.extractOne(ctx, tab, u)
		}()
	}
	wg.Wait()
	metrics.ObserveBatch(time.Since(started))
	return outcomes
}

func (c *Coordinator) extractOne(ctx context.Context, tab catalog.Tab, productURL string) (out catalog.Outcome) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.extract")
	span.SetAttributes(attribute.String("product.url", productURL), attribute.Int("tab.id", tab.ID()))
	defer span.End()

	xctx := ctx
	if c.cfg.ExtractionTimeout > 0 {
		var cancel context.CancelFunc
		xctx, cancel = context.WithTimeout(ctx, c.cfg.ExtractionTimeout)
		defer cancel()
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = catalog.Failure(productURL, catalog.OutcomeFailed, fmt.Errorf("extraction panic: %v", r))
			out.Duration = time.Since(started)
		}
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, string(out.Kind))
		}
	}()

	out = c.deps.Extractor.Extract(xctx, tab, productURL)
	if ctx.Err() == nil && errors.Is(xctx.Err(), context.DeadlineExceeded) {
		out = catalog.Failure(productURL, catalog.OutcomeTimeout,
			fmt.Errorf("%w after %s", catalog.ErrExtractionTimeout, c.cfg.ExtractionTimeout))
		out.Duration = time.Since(started)
	}
	out.URL = productURL
	return out
}

func (c *Coordinator) apply(ctx context.Context, outcomes []catalog.Outcome, sum *Summary) {
	successes := make([]catalog.ProductRecord, 0, len(outcomes))
	for _, o := range outcomes {
		o = o.ApplyTitlePolicy()
		metrics.ObserveExtraction(o.URL, string(o.Kind), o.Duration)
		if c.deps.Checkpoint != nil {
			c.deps.Checkpoint.RecordOutcome(o)
		}
		switch o.Kind {
		case catalog.OutcomeSucceeded:
			sum.Processed++
			c.deps.Results.Add(*o.Record)
			successes = append(successes, *o.Record)
		case catalog.OutcomeUntitled:
			sum.Untitled++
			c.logger.Warn("product has no title", zap.String("url", o.URL))
		case catalog.OutcomeTimeout:
			sum.TimedOut++
			c.logger.Warn("product extraction timed out", zap.String("url", o.URL), zap.Error(o.Err))
		default:
			sum.Failed++
			c.logger.Warn("product extraction failed", zap.String("url", o.URL), zap.Error(o.Err))
		}
	}

	if len(successes) == 0 {
		return
	}
	for _, sink := range c.deps.Sinks {
		if err := sink.StoreRecords(ctx, c.deps.RunID, successes); err != nil {
			c.logger.Error("record sink failed", zap.Int("records", len(successes)), zap.Error(err))
		}
	}
}

// persist saves the checkpoint and flushes results. Failures are logged and
// the run continues.
func (c *Coordinator) persist(ctx context.Context) {
	if c.deps.Checkpoint != nil {
		if err := c.deps.Checkpoint.Save(ctx); err != nil {
			c.logger.Error("checkpoint save failed", zap.Error(err))
		}
	}
	if err := c.deps.Results.Flush(ctx); err != nil {
		c.logger.Error("results flush failed", zap.Error(err))
	}
}

// finalize performs the last save with a context that outlives an interrupt.
func (c *Coordinator) finalize() error {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	var errs []error
	if c.deps.Checkpoint != nil {
		if err := c.deps.Checkpoint.Save(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final checkpoint save: %w", err))
		}
	}
	if err := c.deps.Results.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final results flush: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Coordinator) batchDelay() time.Duration {
	spread := c.cfg.BatchDelayMax - c.cfg.BatchDelayMin
	if spread <= 0 {
		return c.cfg.BatchDelayMin
	}
	return c.cfg.BatchDelayMin + rand.N(spread+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("batch delay: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

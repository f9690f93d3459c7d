package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
)

// Extractor pulls a ProductRecord out of a product page.
type Extractor struct {
	selectors Selectors
	waits     Waits
	fallback  Fallback
	logger    *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(selectors Selectors, waits Waits, fallback Fallback, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	selectors.Specifications = selectors.Specifications.withDefaults()
	return &Extractor{
		selectors: selectors,
		waits:     waits,
		fallback:  fallback.withDefaults(),
		logger:    logger,
	}
}

// Extract navigates tab to productURL and reads every field. Only a
// navigation failure produces a failed outcome; individual field misses leave
// the field empty.
func (e *Extractor) Extract(ctx context.Context, tab catalog.Tab, productURL string) catalog.Outcome {
	start := time.Now()
	logger := e.logger.With(zap.String("url", productURL), zap.Int("tab", tab.ID()))

	if err := tab.Navigate(ctx, productURL); err != nil {
		logger.Warn("product navigation failed", zap.Error(err))
		out := catalog.Failure(productURL, catalog.OutcomeFailed, err)
		out.Duration = time.Since(start)
		return out
	}

	record := catalog.ProductRecord{URL: productURL}
	record.Title = e.title(ctx, tab, logger)

	categories := e.categories(ctx, tab, logger)
	record.Brand, record.Categories = InferBrand(categories)
	if record.Brand != nil {
		logger.Debug("brand inferred from breadcrumb", zap.String("brand", *record.Brand))
	}

	record.KeySpecs, record.GeneralSpecs = e.specs(ctx, tab, logger)

	out := catalog.Success(productURL, record)
	out.Duration = time.Since(start)
	return out
}

func (e *Extractor) title(ctx context.Context, tab catalog.Tab, logger *zap.Logger) *string {
	if e.selectors.ProductTitle == "" {
		return nil
	}
	el, err := tab.Find(ctx, e.selectors.ProductTitle, e.waits.Title)
	if err != nil {
		metrics.ObserveFieldMiss("title")
		logger.Warn("product title not found", zap.Error(err))
		return nil
	}
	text, err := el.Text(ctx)
	if err != nil {
		metrics.ObserveFieldMiss("title")
		logger.Warn("product title unreadable", zap.Error(err))
		return nil
	}
	return catalog.StringPtr(text)
}

// categories reads the breadcrumb rules in order. The first rule that finds
// nothing ends the breadcrumb.
func (e *Extractor) categories(ctx context.Context, tab catalog.Tab, logger *zap.Logger) []catalog.Category {
	categories := []catalog.Category{}
	for i, rule := range e.selectors.Categories {
		el, err := tab.Find(ctx, rule, 0)
		if errors.Is(err, catalog.ErrNotFound) {
			break
		}
		if err != nil {
			logger.Warn("category lookup failed", zap.Int("level", i+1), zap.Error(err))
			continue
		}
		text, err := el.Text(ctx)
		if err != nil {
			logger.Warn("category unreadable", zap.Int("level", i+1), zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}
		categories = append(categories, catalog.Category{Level: i + 1, Name: text})
	}
	if len(categories) == 0 {
		metrics.ObserveFieldMiss("categories")
	}
	return categories
}

func (e *Extractor) specs(ctx context.Context, tab catalog.Tab, logger *zap.Logger) (key, general []catalog.Spec) {
	key, general = []catalog.Spec{}, []catalog.Spec{}
	sel := e.selectors.Specifications
	if sel.SpecItems == "" {
		return key, general
	}

	items, err := tab.FindAll(ctx, sel.SpecItems, e.waits.Specs)
	switch {
	case errors.Is(err, catalog.ErrFieldTimeout):
		metrics.ObserveFieldMiss("specifications")
		return e.fallbackSpecs(ctx, tab, logger)
	case err != nil:
		metrics.ObserveFieldMiss("specifications")
		logger.Warn("spec lookup failed", zap.Error(err))
		return key, general
	}

	for _, item := range items {
		spec, ok := readSpec(ctx, item, sel)
		if !ok {
			continue
		}
		switch e.classify(ctx, item) {
		case bucketKey:
			key = append(key, spec)
		case bucketGeneral:
			general = append(general, spec)
		default:
			logger.Debug("spec item unclassified, treating as general", zap.String("title", spec.Title))
			general = append(general, spec)
		}
	}
	return key, general
}

func readSpec(ctx context.Context, item catalog.Element, sel SpecSelectors) (catalog.Spec, bool) {
	titleEl, err := item.Find(ctx, sel.SpecTitle)
	if err != nil {
		return catalog.Spec{}, false
	}
	valueEl, err := item.Find(ctx, sel.SpecValue)
	if err != nil {
		return catalog.Spec{}, false
	}
	title, err := titleEl.Text(ctx)
	if err != nil {
		return catalog.Spec{}, false
	}
	body, err := valueEl.Text(ctx)
	if err != nil {
		return catalog.Spec{}, false
	}
	return catalog.Spec{Title: title, Body: body}, true
}

type specBucket int

const (
	bucketUnknown specBucket = iota
	bucketKey
	bucketGeneral
)

// classify reads the discriminator attribute of a spec item. The key token
// wins when an item carries both.
func (e *Extractor) classify(ctx context.Context, item catalog.Element) specBucket {
	sel := e.selectors.Specifications
	value, ok, err := item.Attr(ctx, sel.DiscriminatorAttribute)
	if err != nil || !ok {
		return bucketUnknown
	}
	bucket := bucketUnknown
	for _, token := range strings.Fields(value) {
		switch token {
		case sel.KeySpecsSection:
			return bucketKey
		case sel.GeneralSpecsSection:
			bucket = bucketGeneral
		}
	}
	return bucket
}

func (e *Extractor) fallbackSpecs(ctx context.Context, tab catalog.Tab, logger *zap.Logger) (key, general []catalog.Spec) {
	key, general = []catalog.Spec{}, []catalog.Spec{}
	html, err := tab.HTML(ctx)
	if err != nil {
		logger.Warn("spec fallback snapshot failed", zap.Error(err))
		return key, general
	}
	k, g, err := FallbackSpecs(html, e.fallback)
	if err != nil {
		logger.Warn("spec fallback failed", zap.Error(err))
		return key, general
	}
	key = append(key, k...)
	general = append(general, g...)
	if len(key)+len(general) > 0 {
		metrics.ObserveFallbackSpecs()
		logger.Info("specs recovered by fallback",
			zap.Int("key_specs", len(key)),
			zap.Int("general_specs", len(general)),
		)
	}
	return key, general
}

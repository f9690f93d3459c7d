package extract

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// Discoverer collects product URLs from the listing page.
type Discoverer struct {
	listingURL        string
	linkRule          string
	scrollCount       int
	scrollPause       time.Duration
	navigationTimeout time.Duration
	logger            *zap.Logger
}

// DiscoveryConfig configures a Discoverer.
type DiscoveryConfig struct {
	ListingURL        string
	LinkRule          string
	ScrollCount       int
	ScrollPause       time.Duration
	NavigationTimeout time.Duration
}

// NewDiscoverer builds a Discoverer.
func NewDiscoverer(cfg DiscoveryConfig, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		listingURL:        cfg.ListingURL,
		linkRule:          cfg.LinkRule,
		scrollCount:       cfg.ScrollCount,
		scrollPause:       cfg.ScrollPause,
		navigationTimeout: cfg.NavigationTimeout,
		logger:            logger,
	}
}

// Discover loads the listing, triggers incremental loading and returns the
// absolute product URLs in first-seen order without duplicates. An empty
// result is not an error.
func (d *Discoverer) Discover(ctx context.Context, tab catalog.Tab) ([]string, error) {
	base, err := url.Parse(d.listingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}

	navCtx := ctx
	if d.navigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, d.navigationTimeout)
		defer cancel()
	}
	if err := tab.Navigate(navCtx, d.listingURL); err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrDiscoveryTimeout, err)
	}

	for i := 0; i < d.scrollCount; i++ {
		if err := tab.Scroll(ctx, false); err != nil {
			d.logger.Warn("listing scroll failed", zap.Int("step", i+1), zap.Error(err))
			break
		}
		if err := sleep(ctx, d.scrollPause); err != nil {
			return nil, err
		}
	}
	if d.scrollCount > 0 {
		if err := tab.Scroll(ctx, true); err != nil {
			d.logger.Warn("listing scroll reset failed", zap.Error(err))
		}
	}

	elements, err := tab.FindAll(ctx, d.linkRule, 0)
	if err != nil {
		return nil, fmt.Errorf("find product links: %w", err)
	}

	seen := make(map[string]struct{}, len(elements))
	links := make([]string, 0, len(elements))
	for _, el := range elements {
		href, ok, err := el.Attr(ctx, "href")
		if err != nil || !ok || href == "" {
			d.logger.Debug("product link without href skipped", zap.Error(err))
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			d.logger.Warn("unparseable product link skipped", zap.String("href", href), zap.Error(err))
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			d.logger.Warn("non-http product link skipped", zap.String("href", href))
			continue
		}
		link := abs.String()
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	d.logger.Info("product links discovered", zap.Int("count", len(links)), zap.Int("elements", len(elements)))
	return links, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("discovery canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

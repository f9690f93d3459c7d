// Package renderer holds helpers shared by the renderer session implementations.
package renderer

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/catalog-scraper/internal/metrics"
)

// Throttle spaces out navigations per host so every tab in a session shares
// one request budget against the catalog site.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewThrottle creates a Throttle allowing qps navigations per second per host.
// A non-positive qps disables throttling.
func NewThrottle(qps float64, burst int) *Throttle {
	limit := rate.Limit(qps)
	if qps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a navigation to rawURL is allowed, respecting the context.
func (t *Throttle) Wait(ctx context.Context, rawURL string) error {
	if t == nil || t.limit == rate.Inf {
		return nil
	}
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}
	t.mu.Lock()
	limiter, ok := t.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(t.limit, t.burst)
		t.limiters[domain] = limiter
	}
	t.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("navigation throttle wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveNavigationDelay(domain, waited)
	}
	return nil
}

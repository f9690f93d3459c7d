// Package static implements the renderer session over plain HTTP using colly
// and goquery. It serves sites that render their catalog server-side and the
// end-to-end tests, where no browser is available.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/renderer"
)

const defaultRequestTimeout = 15 * time.Second

// Config controls the static session.
type Config struct {
	Contexts       int
	UserAgent      string
	RequestTimeout time.Duration
	HostQPS        float64
	Transport      http.RoundTripper
}

// Session holds a base collector and one Tab per configured context.
type Session struct {
	tabs   []*Tab
	logger *zap.Logger
}

// NewSession builds a session with cfg.Contexts tabs.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.Contexts < 0 {
		return nil, fmt.Errorf("contexts must be >= 0")
	}
	if cfg.Contexts == 0 {
		cfg.Contexts = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}

	base := colly.NewCollector(colly.Async(false))
	base.WithTransport(transport)
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	base.SetRequestTimeout(cfg.RequestTimeout)

	throttle := renderer.NewThrottle(cfg.HostQPS, 1)
	s := &Session{logger: logger}
	for i := 0; i < cfg.Contexts; i++ {
		s.tabs = append(s.tabs, &Tab{id: i, base: base, throttle: throttle})
	}
	logger.Info("static session ready", zap.Int("tabs", len(s.tabs)))
	return s, nil
}

// Tabs returns the session's tabs.
func (s *Session) Tabs() []catalog.Tab {
	out := make([]catalog.Tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		out = append(out, t)
	}
	return out
}

// Close releases the session. Static tabs hold no external resources.
func (s *Session) Close(context.Context) error {
	s.logger.Info("static session closed")
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Package chromedp implements the renderer session on top of headless Chrome.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/renderer"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultQueryTimeout      = 5 * time.Second
	hideWebdriverScript      = "Object.defineProperty(navigator, 'webdriver', {get: () => undefined})"
)

// Config controls the browser session.
type Config struct {
	Contexts          int
	Headless          bool
	UserAgent         string
	ExecPath          string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	QueryTimeout      time.Duration
	HostQPS           float64
}

// Session owns one browser and a fixed set of reusable tabs.
type Session struct {
	cfg             Config
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	tabs            []*Tab
	logger          *zap.Logger
}

// NewSession launches the browser and opens cfg.Contexts tabs.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	s := &Session{
		cfg:             cfg,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
	}
	throttle := renderer.NewThrottle(cfg.HostQPS, 1)
	for i := 0; i < cfg.Contexts; i++ {
		tab, err := s.openTab(i, throttle)
		if err != nil {
			_ = s.Close(context.Background())
			return nil, err
		}
		s.tabs = append(s.tabs, tab)
	}
	logger.Info("browser session ready", zap.Int("tabs", len(s.tabs)), zap.Bool("headless", cfg.Headless))
	return s, nil
}

func (s *Session) openTab(id int, throttle *renderer.Throttle) (*Tab, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx); err != nil {
			return fmt.Errorf("install webdriver override: %w", err)
		}
		return nil
	})
	if err := chromedp.Run(tabCtx, setup); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab %d: %w", id, err)
	}
	return &Tab{
		id:       id,
		ctx:      tabCtx,
		cancel:   tabCancel,
		cfg:      s.cfg,
		throttle: throttle,
	}, nil
}

// Tabs returns the session's tabs as catalog.Tab handles.
func (s *Session) Tabs() []catalog.Tab {
	out := make([]catalog.Tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		out = append(out, t)
	}
	return out
}

// Close tears down tabs, the browser and the allocator.
func (s *Session) Close(context.Context) error {
	if s == nil {
		return nil
	}
	for _, t := range s.tabs {
		t.cancel()
	}
	s.browserCancel()
	s.allocatorCancel()
	s.logger.Info("browser session closed")
	return nil
}

func normalize(cfg Config) (Config, error) {
	if cfg.Contexts < 0 {
		return cfg, fmt.Errorf("contexts must be >= 0")
	}
	if cfg.Contexts == 0 {
		cfg.Contexts = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	return cfg, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	return opts
}

// classify maps a chromedp error onto the catalog taxonomy. waited reports
// whether the action was a bounded wait for an element.
func classify(ctx context.Context, err error, waited bool) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("tab action canceled: %w", ctx.Err())
	case waited && errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", catalog.ErrFieldTimeout, err)
	default:
		return fmt.Errorf("%w: %w", catalog.ErrRender, err)
	}
}

func nodeIDs(nodes ...*cdp.Node) []cdp.NodeID {
	ids := make([]cdp.NodeID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.NodeID)
	}
	return ids
}

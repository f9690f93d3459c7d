package chromedp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/renderer"
)

const (
	scrollStepScript = "window.scrollBy(0, window.innerHeight); document.body.scrollHeight"
	scrollTopScript  = "window.scrollTo(0, 0); document.body.scrollHeight"
)

// Tab is one chromedp target reused across extraction attempts.
type Tab struct {
	id       int
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      Config
	throttle *renderer.Throttle
}

// ID identifies the tab within its session.
func (t *Tab) ID() int { return t.id }

// Navigate loads rawURL and waits for the body to be ready.
func (t *Tab) Navigate(ctx context.Context, rawURL string) error {
	if err := t.throttle.Wait(ctx, rawURL); err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrNavigation, err)
	}
	err := t.run(ctx, t.cfg.NavigationTimeout,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: navigate %s: %w", catalog.ErrNavigation, rawURL, err)
	}
	return nil
}

// Find locates the first element matching rule.
func (t *Tab) Find(ctx context.Context, rule string, wait time.Duration) (catalog.Element, error) {
	nodes, err := t.query(ctx, rule, wait, nil)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, rule)
	}
	return &element{tab: t, node: nodes[0]}, nil
}

// FindAll locates every element matching rule.
func (t *Tab) FindAll(ctx context.Context, rule string, wait time.Duration) ([]catalog.Element, error) {
	nodes, err := t.query(ctx, rule, wait, nil)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{tab: t, node: n})
	}
	return out, nil
}

// Scroll advances the viewport by one screen, or back to the top.
func (t *Tab) Scroll(ctx context.Context, toTop bool) error {
	script := scrollStepScript
	if toTop {
		script = scrollTopScript
	}
	var height float64
	if err := t.run(ctx, t.cfg.QueryTimeout, chromedp.Evaluate(script, &height)); err != nil {
		return classify(ctx, err, false)
	}
	return nil
}

// HTML snapshots the current document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.run(ctx, t.cfg.QueryTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", classify(ctx, err, false)
	}
	return html, nil
}

// query runs a node lookup. A non-positive wait checks once; otherwise it
// waits up to wait for at least one match.
func (t *Tab) query(ctx context.Context, rule string, wait time.Duration, from *cdp.Node) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.ByQueryAll}
	timeout := wait
	if wait <= 0 {
		opts = append(opts, chromedp.AtLeast(0))
		timeout = t.cfg.QueryTimeout
	}
	if from != nil {
		opts = append(opts, chromedp.FromNode(from))
	}
	if err := t.run(ctx, timeout, chromedp.Nodes(rule, &nodes, opts...)); err != nil {
		return nil, classify(ctx, err, wait > 0)
	}
	return nodes, nil
}

// run executes actions on the tab's target, bounded by timeout and by the
// caller's context. Cancelling the derived context never closes the tab.
func (t *Tab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancelTask := context.WithTimeout(t.ctx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

type element struct {
	tab  *Tab
	node *cdp.Node
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.tab.run(ctx, e.tab.cfg.QueryTimeout,
		chromedp.JavascriptAttribute(nodeIDs(e.node), "innerText", &text, chromedp.ByNodeID),
	)
	if err != nil {
		return "", classify(ctx, err, false)
	}
	return strings.TrimSpace(text), nil
}

func (e *element) Attr(_ context.Context, name string) (string, bool, error) {
	value, ok := e.node.Attribute(name)
	return value, ok, nil
}

func (e *element) Find(ctx context.Context, rule string) (catalog.Element, error) {
	nodes, err := e.tab.query(ctx, rule, 0, e.node)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, rule)
	}
	return &element{tab: e.tab, node: nodes[0]}, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

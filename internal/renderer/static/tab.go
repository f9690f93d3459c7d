package static

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/renderer"
)

// Tab holds the most recently fetched document.
type Tab struct {
	id       int
	base     *colly.Collector
	throttle *renderer.Throttle

	mu  sync.Mutex
	doc *goquery.Document
}

// ID identifies the tab within its session.
func (t *Tab) ID() int { return t.id }

// Navigate fetches rawURL and parses the response body.
func (t *Tab) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: navigate %s: %w", catalog.ErrNavigation, rawURL, err)
	}
	if err := t.throttle.Wait(ctx, rawURL); err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrNavigation, err)
	}

	var (
		body     []byte
		fetchErr error
	)
	collector := t.base.Clone()
	collector.AllowURLRevisit = true
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: navigate %s: %w", catalog.ErrNavigation, rawURL, ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			err = fetchErr
		}
		if err != nil {
			return fmt.Errorf("%w: navigate %s: %w", catalog.ErrNavigation, rawURL, err)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: parse %s: %w", catalog.ErrNavigation, rawURL, err)
	}
	t.mu.Lock()
	t.doc = doc
	t.mu.Unlock()
	return nil
}

// Find locates the first element matching rule. A static document never
// changes, so a miss with a positive wait is reported as a field timeout
// without sleeping.
func (t *Tab) Find(ctx context.Context, rule string, wait time.Duration) (catalog.Element, error) {
	sel, err := t.selectAll(ctx, rule)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, miss(rule, wait)
	}
	return &element{sel: sel.First()}, nil
}

// FindAll locates every element matching rule.
func (t *Tab) FindAll(ctx context.Context, rule string, wait time.Duration) ([]catalog.Element, error) {
	sel, err := t.selectAll(ctx, rule)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 && wait > 0 {
		return nil, miss(rule, wait)
	}
	return wrap(sel), nil
}

// Scroll is a no-op for static documents.
func (t *Tab) Scroll(ctx context.Context, _ bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// HTML renders the current document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	doc, err := t.document(ctx)
	if err != nil {
		return "", err
	}
	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("%w: %w", catalog.ErrRender, err)
	}
	return html, nil
}

func (t *Tab) document(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tab action canceled: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doc == nil {
		return nil, fmt.Errorf("%w: no document loaded", catalog.ErrRender)
	}
	return t.doc, nil
}

// selectAll matches rule against the current document. goquery treats an
// invalid rule as matching nothing.
func (t *Tab) selectAll(ctx context.Context, rule string) (*goquery.Selection, error) {
	doc, err := t.document(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Find(rule), nil
}

func miss(rule string, wait time.Duration) error {
	if wait > 0 {
		return fmt.Errorf("%w: %s after %s", catalog.ErrFieldTimeout, rule, wait)
	}
	return fmt.Errorf("%w: %s", catalog.ErrNotFound, rule)
}

func wrap(sel *goquery.Selection) []catalog.Element {
	out := make([]catalog.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{sel: s})
	})
	return out
}

type element struct {
	sel *goquery.Selection
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("element text: %w", err)
	}
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *element) Attr(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("element attr: %w", err)
	}
	value, ok := e.sel.Attr(name)
	return value, ok, nil
}

func (e *element) Find(ctx context.Context, rule string) (catalog.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("element find: %w", err)
	}
	sel := e.sel.Find(rule)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, rule)
	}
	return &element{sel: sel.First()}, nil
}

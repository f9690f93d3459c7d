package static

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

const productPage = `<html><body>
<h1 class="title">Trail Runner 2</h1>
<ul class="crumbs"><li><a>Shoes</a></li><li><a>Running</a></li></ul>
<div class="spec key_specs_section"><span class="t">Weight</span><span class="b">240 g</span></div>
<a class="product-link" href="/p/1">One</a>
<a class="product-link" href="/p/2">Two</a>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/product", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productPage))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTab(t *testing.T) catalog.Tab {
	t.Helper()
	session, err := NewSession(Config{Contexts: 2}, nil)
	require.NoError(t, err)
	tabs := session.Tabs()
	require.Len(t, tabs, 2)
	require.Equal(t, 0, tabs[0].ID())
	require.Equal(t, 1, tabs[1].ID())
	return tabs[0]
}

func TestNewSessionRejectsNegativeContexts(t *testing.T) {
	t.Parallel()

	_, err := NewSession(Config{Contexts: -1}, nil)
	require.Error(t, err)
}

func TestTabNavigateAndQuery(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	tab := newTab(t)
	ctx := context.Background()

	require.NoError(t, tab.Navigate(ctx, srv.URL+"/product"))

	title, err := tab.Find(ctx, "h1.title", time.Second)
	require.NoError(t, err)
	text, err := title.Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "Trail Runner 2", text)

	links, err := tab.FindAll(ctx, "a.product-link", 0)
	require.NoError(t, err)
	require.Len(t, links, 2)
	href, ok, err := links[1].Attr(ctx, "href")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/p/2", href)

	spec, err := tab.Find(ctx, ".spec", 0)
	require.NoError(t, err)
	body, err := spec.Find(ctx, ".b")
	require.NoError(t, err)
	bodyText, err := body.Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "240 g", bodyText)

	_, err = spec.Find(ctx, ".nope")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	html, err := tab.HTML(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "key_specs_section")

	require.NoError(t, tab.Scroll(ctx, false))
}

func TestTabMissesDistinguishWaits(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	tab := newTab(t)
	ctx := context.Background()
	require.NoError(t, tab.Navigate(ctx, srv.URL+"/product"))

	_, err := tab.Find(ctx, ".absent", 0)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = tab.Find(ctx, ".absent", 50*time.Millisecond)
	require.ErrorIs(t, err, catalog.ErrFieldTimeout)

	all, err := tab.FindAll(ctx, ".absent", 0)
	require.NoError(t, err)
	require.Empty(t, all)

	_, err = tab.FindAll(ctx, ".absent", time.Millisecond)
	require.ErrorIs(t, err, catalog.ErrFieldTimeout)
}

func TestTabNavigateFailures(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	tab := newTab(t)

	err := tab.Navigate(context.Background(), srv.URL+"/missing")
	require.ErrorIs(t, err, catalog.ErrNavigation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = tab.Navigate(ctx, srv.URL+"/product")
	require.True(t, errors.Is(err, catalog.ErrNavigation))
}

func TestTabQueryBeforeNavigate(t *testing.T) {
	t.Parallel()

	tab := newTab(t)
	_, err := tab.Find(context.Background(), "h1", 0)
	require.ErrorIs(t, err, catalog.ErrRender)
}

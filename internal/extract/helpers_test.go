package extract

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/renderer/static"
)

const listingPage = `<html><body>
<div class="grid">
  <a class="product" href="/p/1">One</a>
  <a class="product" href="https://shop.test/p/2">Two</a>
  <a class="product" href="/p/1">One again</a>
  <a class="product">No href</a>
  <a class="product" href="mailto:sales@shop.test">Mail</a>
  <a class="product" href="p/3">Three</a>
</div>
</body></html>`

const fullProductPage = `<html><body>
<h1 class="title">Galaxy S24</h1>
<nav>
  <span class="c1">Electronics</span>
  <span class="c2">Phones</span>
  <span class="c3">Samsung (Galaxy)</span>
</nav>
<ul class="specs">
  <li class="item key_specs_section"><span class="t">Screen</span><span class="v">6.2 in</span></li>
  <li class="item"><span class="t">Weight</span><span class="v">167 g</span></li>
  <li class="item"><span class="t">Orphan</span></li>
</ul>
</body></html>`

const taggedSpecsPage = `<html><body>
<h1 class="title">Kettle</h1>
<ul>
  <li class="item rest"><span class="t">Cord</span><span class="v">1 m</span></li>
  <li class="item top"><span class="t">Capacity</span><span class="v">1.7 l</span></li>
  <li class="item"><span class="t">Color</span><span class="v">Steel</span></li>
  <li class="item rest top"><span class="t">Power</span><span class="v">2 kW</span></li>
</ul>
</body></html>`

const gappyProductPage = `<html><body>
<nav>
  <span class="c1">Home</span>
  <span class="c2">   </span>
  <span class="c4">Never read</span>
</nav>
</body></html>`

const fallbackProductPage = `<html><body>
<h1 class="title">Desk Lamp</h1>
<section>
  <h2>Specifications</h2>
  <ul>
    <li><span>Power rating</span><span>9 W</span></li>
    <li><span>Color</span><span>Black</span></li>
    <li><span>Power rating</span><span>9 W</span></li>
  </ul>
</section>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/list":     listingPage,
		"/full":     fullProductPage,
		"/gappy":    gappyProductPage,
		"/fallback": fallbackProductPage,
		"/tagged":   taggedSpecsPage,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newStaticTab(t *testing.T) catalog.Tab {
	t.Helper()
	session, err := static.NewSession(static.Config{Contexts: 1}, nil)
	require.NoError(t, err)
	return session.Tabs()[0]
}

func testSelectors() Selectors {
	return Selectors{
		ProductLinks: "a.product",
		ProductTitle: "h1.title",
		Categories:   []string{".c1", ".c2", ".c3", ".c4"},
		Specifications: SpecSelectors{
			SpecItems: "li.item",
			SpecTitle: ".t",
			SpecValue: ".v",
		},
	}
}

package results

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/hash/sha256"
	"github.com/JakeFAU/catalog-scraper/internal/storage/memory"
)

func rec(u string) catalog.ProductRecord {
	return catalog.ProductRecord{URL: u, Title: catalog.StringPtr("title " + u)}
}

func urls(records []catalog.ProductRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.URL)
	}
	return out
}

func TestRecordsFollowDiscoveryOrder(t *testing.T) {
	t.Parallel()

	acc := New(Config{Path: "out.json"}, memory.NewBlobStore(), nil, nil, nil)
	acc.Add(rec("stale-b"))
	acc.Add(rec("u3"))
	acc.Add(rec("stale-a"))
	acc.Add(rec("u1"))
	acc.SetOrder([]string{"u1", "u2", "u3"})

	require.Equal(t, []string{"u1", "u3", "stale-b", "stale-a"}, urls(acc.Records()))
}

func TestAddKeepsOneRecordPerURL(t *testing.T) {
	t.Parallel()

	acc := New(Config{Path: "out.json"}, memory.NewBlobStore(), nil, nil, nil)
	acc.Add(rec("u1"))
	updated := rec("u1")
	updated.Brand = catalog.StringPtr("Acme (A)")
	acc.Add(updated)

	require.Equal(t, 1, acc.Len())
	require.Equal(t, "Acme (A)", *acc.Records()[0].Brand)
	require.Equal(t, Summary{Total: 1, WithTitle: 1, WithBrand: 1}, acc.Summary())
}

func TestFlushIsIdempotentAndSkipsUnchangedMirror(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	local := memory.NewBlobStore()
	mirror := memory.NewBlobStore()
	acc := New(Config{Path: "scraped_products.json"}, local, mirror, sha256.New(), nil)
	acc.Add(rec("u1"))
	acc.SetOrder([]string{"u1"})

	require.NoError(t, acc.Flush(ctx))
	first, err := local.GetObject(ctx, "scraped_products.json")
	require.NoError(t, err)

	require.NoError(t, acc.Flush(ctx))
	second, err := local.GetObject(ctx, "scraped_products.json")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, mirror.Puts("scraped_products.json"))

	acc.Add(rec("u2"))
	require.NoError(t, acc.Flush(ctx))
	require.Equal(t, 2, mirror.Puts("scraped_products.json"))

	var decoded []catalog.ProductRecord
	mirrored, err := mirror.GetObject(ctx, "scraped_products.json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(mirrored, &decoded))
	require.Equal(t, []string{"u1", "u2"}, urls(decoded))
}

func TestFlushEmptyWritesEmptyArray(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	local := memory.NewBlobStore()
	acc := New(Config{Path: "out.json"}, local, nil, nil, nil)
	require.NoError(t, acc.Flush(ctx))

	data, err := local.GetObject(ctx, "out.json")
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(data))
}

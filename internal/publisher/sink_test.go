package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/clock"
	"github.com/JakeFAU/catalog-scraper/internal/publisher/memory"
)

func TestSinkPublishesEachRecord(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := NewSink(pub, "products", clock.Fixed(now), nil)

	records := []catalog.ProductRecord{{URL: "https://shop.test/p/1"}, {URL: "https://shop.test/p/2"}}
	require.NoError(t, sink.StoreRecords(context.Background(), "run-9", records))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	for i, msg := range msgs {
		require.Equal(t, "products", msg.Topic)
		payload, ok := msg.Payload.(ProductMessage)
		require.True(t, ok)
		require.Equal(t, "run-9", payload.RunID)
		require.Equal(t, now, payload.ScrapedAt)
		require.Equal(t, records[i].URL, payload.Product.URL)
	}
}

func TestSinkReportsFailures(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("quota"))
	sink := NewSink(pub, "products", nil, nil)

	err := sink.StoreRecords(context.Background(), "run-9", []catalog.ProductRecord{{URL: "https://shop.test/p/1"}})
	require.ErrorContains(t, err, "https://shop.test/p/1")
	require.ErrorContains(t, err, "quota")
}

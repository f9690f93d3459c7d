// Package publisher adapts a catalog.Publisher into a record sink that emits
// one notification per scraped product.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// ProductMessage is the payload published for every successful record.
type ProductMessage struct {
	RunID     string                `json:"run_id"`
	ScrapedAt time.Time             `json:"scraped_at"`
	Product   catalog.ProductRecord `json:"product"`
}

// Sink publishes records to a topic.
type Sink struct {
	pub    catalog.Publisher
	topic  string
	clock  catalog.Clock
	logger *zap.Logger
}

// NewSink builds a Sink.
func NewSink(pub catalog.Publisher, topic string, clock catalog.Clock, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pub: pub, topic: topic, clock: clock, logger: logger}
}

// StoreRecords publishes each record. Every record is attempted; the joined
// error reports the ones that failed.
func (s *Sink) StoreRecords(ctx context.Context, runID string, records []catalog.ProductRecord) error {
	now := time.Now().UTC()
	if s.clock != nil {
		now = s.clock.Now()
	}
	var errs []error
	for _, rec := range records {
		id, err := s.pub.Publish(ctx, s.topic, ProductMessage{RunID: runID, ScrapedAt: now, Product: rec})
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", rec.URL, err))
			continue
		}
		s.logger.Debug("product published", zap.String("url", rec.URL), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Package results accumulates product records and writes the result file.
package results

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// Hasher digests flushed content so unchanged files are not mirrored twice.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Summary counts what the accumulator holds.
type Summary struct {
	Total      int
	WithTitle  int
	WithBrand  int
	WithSpecs  int
	Categories int
}

// Accumulator holds at most one record per URL, ordered by discovery.
// It is owned by the coordinator and not safe for concurrent use.
type Accumulator struct {
	path   string
	local  catalog.BlobStore
	mirror catalog.BlobStore
	hasher Hasher
	logger *zap.Logger

	records   map[string]catalog.ProductRecord
	insertion map[string]int
	order     map[string]int
	seq       int
	lastHash  string
}

// Config names the result file.
type Config struct {
	Path string
}

// New builds an Accumulator writing to cfg.Path in local and, when mirror is
// non-nil, uploading the same bytes to mirror.
func New(cfg Config, local, mirror catalog.BlobStore, hasher Hasher, logger *zap.Logger) *Accumulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accumulator{
		path:      cfg.Path,
		local:     local,
		mirror:    mirror,
		hasher:    hasher,
		logger:    logger,
		records:   make(map[string]catalog.ProductRecord),
		insertion: make(map[string]int),
		order:     make(map[string]int),
	}
}

// SetOrder fixes the discovery order used by Records.
func (a *Accumulator) SetOrder(urls []string) {
	a.order = make(map[string]int, len(urls))
	for i, u := range urls {
		if _, ok := a.order[u]; !ok {
			a.order[u] = i
		}
	}
}

// Add stores rec, replacing any earlier record for the same URL.
func (a *Accumulator) Add(rec catalog.ProductRecord) {
	if _, ok := a.records[rec.URL]; !ok {
		a.insertion[rec.URL] = a.seq
		a.seq++
	}
	a.records[rec.URL] = rec
}

// Len is the number of distinct records held.
func (a *Accumulator) Len() int { return len(a.records) }

// Records returns the records in discovery order. Records whose URL is not
// part of the discovery order follow in insertion order.
func (a *Accumulator) Records() []catalog.ProductRecord {
	urls := make([]string, 0, len(a.records))
	for u := range a.records {
		urls = append(urls, u)
	}
	sort.Slice(urls, func(i, j int) bool {
		oi, iKnown := a.order[urls[i]]
		oj, jKnown := a.order[urls[j]]
		switch {
		case iKnown && jKnown:
			return oi < oj
		case iKnown != jKnown:
			return iKnown
		default:
			return a.insertion[urls[i]] < a.insertion[urls[j]]
		}
	})
	out := make([]catalog.ProductRecord, 0, len(urls))
	for _, u := range urls {
		out = append(out, a.records[u])
	}
	return out
}

// Summary reports counts over the held records.
func (a *Accumulator) Summary() Summary {
	var s Summary
	for _, rec := range a.records {
		s.Total++
		if rec.HasTitle() {
			s.WithTitle++
		}
		if rec.HasBrand() {
			s.WithBrand++
		}
		if rec.HasSpecs() {
			s.WithSpecs++
		}
		if len(rec.Categories) > 0 {
			s.Categories++
		}
	}
	return s
}

// Flush writes the full ordered record list. Identical state produces
// byte-identical output, and the mirror upload is skipped when the content
// hash matches the last upload.
func (a *Accumulator) Flush(ctx context.Context) error {
	data, err := catalog.EncodeJSON(a.Records())
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if _, err := a.local.PutObject(ctx, a.path, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	a.logger.Debug("results flushed", zap.String("path", a.path), zap.Int("records", len(a.records)))

	if a.mirror == nil {
		return nil
	}
	hash := ""
	if a.hasher != nil {
		hash, err = a.hasher.Hash(data)
		if err != nil {
			return fmt.Errorf("hash results: %w", err)
		}
		if hash == a.lastHash {
			return nil
		}
	}
	uri, err := a.mirror.PutObject(ctx, a.path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("mirror results: %w", err)
	}
	a.lastHash = hash
	a.logger.Info("results mirrored", zap.String("uri", uri), zap.String("digest", hash))
	return nil
}

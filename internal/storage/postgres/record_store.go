// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "product_records"

// RecordStoreConfig controls the Postgres connection pool used for product rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore upserts product records keyed by URL.
type RecordStore struct {
	pool  txBeginner
	table string
	clock catalog.Clock
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig, clock catalog.Clock) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: pool, table: table, clock: clock}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool txBeginner, table string, clock catalog.Clock) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: name, clock: clock}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreRecords upserts every record in one transaction.
func (s *RecordStore) StoreRecords(ctx context.Context, runID string, records []catalog.ProductRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	run_id,
	title,
	brand,
	categories,
	key_specs,
	general_specs,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (url) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	title = EXCLUDED.title,
	brand = EXCLUDED.brand,
	categories = EXCLUDED.categories,
	key_specs = EXCLUDED.key_specs,
	general_specs = EXCLUDED.general_specs,
	scraped_at = EXCLUDED.scraped_at`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.now()
	for _, rec := range records {
		args, err := recordArgs(runID, rec, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

func (s *RecordStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func recordArgs(runID string, rec catalog.ProductRecord, now time.Time) ([]any, error) {
	categories, err := jsonList(rec.Categories)
	if err != nil {
		return nil, fmt.Errorf("marshal categories: %w", err)
	}
	keySpecs, err := jsonList(rec.KeySpecs)
	if err != nil {
		return nil, fmt.Errorf("marshal key specs: %w", err)
	}
	generalSpecs, err := jsonList(rec.GeneralSpecs)
	if err != nil {
		return nil, fmt.Errorf("marshal general specs: %w", err)
	}
	return []any{
		rec.URL,
		runID,
		rec.Title,
		rec.Brand,
		categories,
		keySpecs,
		generalSpecs,
		now,
	}, nil
}

// jsonList marshals a slice, writing nil slices as an empty JSON array.
func jsonList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

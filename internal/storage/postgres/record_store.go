// Package postgres provides the Postgres-backed record store and its schema
// migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/og-worker/internal/og"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Tables          Tables
}

// Tables names the table holding each record kind.
type Tables struct {
	Articles string
	Episodes string
	Podcasts string
}

func (t Tables) withDefaults() Tables {
	if t.Articles == "" {
		t.Articles = "articles"
	}
	if t.Episodes == "" {
		t.Episodes = "episodes"
	}
	if t.Podcasts == "" {
		t.Podcasts = "podcasts"
	}
	return t
}

func (t Tables) validate() error {
	for _, name := range []string{t.Articles, t.Episodes, t.Podcasts} {
		if !validTableName.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

func (t Tables) forKind(kind og.RecordKind) (string, error) {
	switch kind {
	case og.KindArticle:
		return t.Articles, nil
	case og.KindEpisode:
		return t.Episodes, nil
	case og.KindPodcast:
		return t.Podcasts, nil
	default:
		return "", fmt.Errorf("no table for %s", kind)
	}
}

type pool interface {
	QueryRow(context.Context, string, ...any) pgx.Row
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// RecordStore implements og.RecordStore over Postgres. The images column is
// jsonb.
type RecordStore struct {
	pool   pool
	tables Tables
}

// NewPool opens a pgx pool from cfg.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// NewRecordStore connects to Postgres and returns a RecordStore that owns the pool.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	p, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewRecordStoreWithPool(p, cfg.Tables)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, tables Tables) (*RecordStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	tables = tables.withDefaults()
	if err := tables.validate(); err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, tables: tables}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// FindOne returns the record of the given kind whose lookup column equals
// value, or (nil, nil) when there is none.
func (s *RecordStore) FindOne(ctx context.Context, kind og.RecordKind, value string) (*og.Record, error) {
	table, err := s.tables.forKind(kind)
	if err != nil {
		return nil, err
	}
	field := kind.LookupField()
	query := fmt.Sprintf(`SELECT id::text, %[1]s, images FROM %[2]s WHERE %[1]s = $1 LIMIT 1`, field, table)

	var (
		rec       = og.Record{Kind: kind}
		rawImages []byte
	)
	err = s.pool.QueryRow(ctx, query, value).Scan(&rec.ID, &rec.Lookup, &rawImages)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	images, err := decodeImages(rawImages)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s images: %w", table, rec.ID, err)
	}
	rec.Images = images
	return &rec, nil
}

// decodeImages keeps the string entries of an images object. Null and
// non-string values read as absent.
func decodeImages(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, nil
	}
	images := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			images[k] = s
		}
	}
	return images, nil
}

// UpdateImages writes images onto one record and touches no other column.
// Keys already stored but absent from images, such as non-string entries
// FindOne skipped, are kept.
func (s *RecordStore) UpdateImages(ctx context.Context, kind og.RecordKind, id string, images map[string]string) error {
	table, err := s.tables.forKind(kind)
	if err != nil {
		return err
	}
	if images == nil {
		images = map[string]string{}
	}
	payload, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET images = COALESCE(images, '{}'::jsonb) || $2::jsonb WHERE id = $1`, table)
	tag, err := s.pool.Exec(ctx, query, id, payload)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", table, id, og.ErrRecordNotFound)
	}
	return nil
}

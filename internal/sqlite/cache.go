// Package sqlite provides a [cache.Store] backed by a sqlite file, so several
// processes on one host can share rendered feeds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/diggfeed/internal/cache"
)

const table = "cache_entries"

// Ensure Cache implements the Store interface
var _ cache.Store = (*Cache)(nil)

type Cache struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *Cache {
	return &Cache{db: db, now: time.Now}
}

// Open connects to the sqlite file at path.
func Open(path string) (*sqlx.DB, error) {
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %s", err)
	}

	return dbx, nil
}

type entryRow struct {
	Key          string `db:"cache_key"`
	Body         []byte `db:"body"`
	ContentType  string `db:"content_type"`
	CacheControl string `db:"cache_control"`
	ExpiresAt    int64  `db:"expires_at"` // unix millis
}

func (c *Cache) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	query, args, err := sq.Select("*").
		From(table).
		Where(sq.Eq{"cache_key": key}).
		Where(sq.Gt{"expires_at": c.now().UnixMilli()}).
		ToSql()
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("error constructing sql: %s", err)
	}

	var row entryRow
	err = c.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("error fetching cache entry: %w", err)
	}

	return cache.Entry{
		Body:         row.Body,
		ContentType:  row.ContentType,
		CacheControl: row.CacheControl,
		ExpiresAt:    time.UnixMilli(row.ExpiresAt),
	}, true, nil
}

func (c *Cache) Put(ctx context.Context, key string, e cache.Entry, ttl time.Duration) error {
	query, args, err := sq.Insert(table).
		Columns("cache_key", "body", "content_type", "cache_control", "expires_at").
		Values(key, e.Body, e.ContentType, e.CacheControl, c.now().Add(ttl).UnixMilli()).
		Suffix(`ON CONFLICT(cache_key) DO UPDATE SET
			body = excluded.body,
			content_type = excluded.content_type,
			cache_control = excluded.cache_control,
			expires_at = excluded.expires_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error writing cache entry: %w", err)
	}

	return nil
}

// Purge deletes every expired entry, returning how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	query, args, err := sq.Delete(table).Where(sq.LtOrEq{"expires_at": c.now().UnixMilli()}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("error constructing sql: %s", err)
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("error purging cache: %w", err)
	}

	return res.RowsAffected()
}

// PurgeEvery runs [Cache.Purge] on an interval until the context is done.
func (c *Cache) PurgeEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := c.Purge(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "error purging cache", "error", err)
			continue
		}
		slog.DebugContext(ctx, "purged cache", "removed", n)
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/static-mirror/internal/crawler"
)

// CrawlQueue is the crawl frontier table.
type CrawlQueue struct {
	db    *DB
	table string
}

// CrawlQueue returns the crawl frontier backed by d.
func (d *DB) CrawlQueue() *CrawlQueue {
	return &CrawlQueue{db: d, table: d.table("crawl_queue")}
}

// Enqueue inserts urls in one statement; duplicates are ignored.
func (q *CrawlQueue) Enqueue(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	encoded := make([]string, len(urls))
	for i, u := range urls {
		encoded[i] = crawler.EncodeURL(u)
	}
	query := fmt.Sprintf(`INSERT INTO %s (url) SELECT unnest($1::text[]) ON CONFLICT DO NOTHING`, q.table)
	if _, err := q.db.pool.Exec(ctx, query, encoded); err != nil {
		return fmt.Errorf("enqueue urls: %w", err)
	}
	return nil
}

// DequeueBatch reads up to limit URLs. Rows stay until Remove.
func (q *CrawlQueue) DequeueBatch(ctx context.Context, limit int) ([]string, error) {
	stored, err := q.db.strings(ctx, fmt.Sprintf(`SELECT url FROM %s ORDER BY url COLLATE "C" LIMIT $1`, q.table), limit)
	if err != nil {
		return nil, fmt.Errorf("select crawl batch: %w", err)
	}
	for i, s := range stored {
		stored[i] = crawler.DecodeURL(s)
	}
	return stored, nil
}

// Remove deletes url from the frontier.
func (q *CrawlQueue) Remove(ctx context.Context, url string) error {
	if _, err := q.db.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE url = $1`, q.table), crawler.EncodeURL(url)); err != nil {
		return fmt.Errorf("remove %s: %w", url, err)
	}
	return nil
}

// Total counts queued URLs.
func (q *CrawlQueue) Total(ctx context.Context) (int, error) {
	n, err := q.db.count(ctx, "SELECT COUNT(*) FROM "+q.table)
	if err != nil {
		return 0, fmt.Errorf("count crawl queue: %w", err)
	}
	return n, nil
}

// Truncate empties the frontier.
func (q *CrawlQueue) Truncate(ctx context.Context) error {
	return q.db.truncate(ctx, q.table)
}

// CrawlLog is the crawl history table.
type CrawlLog struct {
	db    *DB
	table string
}

// CrawlLog returns the crawl history backed by d.
func (d *DB) CrawlLog() *CrawlLog {
	return &CrawlLog{db: d, table: d.table("crawl_log")}
}

// Add appends records in one statement.
func (l *CrawlLog) Add(ctx context.Context, records []crawler.URLRecord) error {
	if len(records) == 0 {
		return nil
	}
	urls := make([]string, len(records))
	statuses := make([]int32, len(records))
	notes := make([]string, len(records))
	for i, r := range records {
		urls[i] = crawler.EncodeURL(r.URL)
		statuses[i] = int32(r.Status) //nolint:gosec // HTTP and sentinel codes fit in int32
		notes[i] = r.Note
	}
	query := fmt.Sprintf(`INSERT INTO %s (url, status, note)
SELECT * FROM unnest($1::text[], $2::int[], $3::text[])`, l.table)
	if _, err := l.db.pool.Exec(ctx, query, urls, statuses, notes); err != nil {
		return fmt.Errorf("insert crawl log: %w", err)
	}
	return nil
}

// RecordStatus updates every entry for url, inserting one if none exist.
func (l *CrawlLog) RecordStatus(ctx context.Context, url string, status int) error {
	key := crawler.EncodeURL(url)
	tag, err := l.db.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET status = $1 WHERE url = $2`, l.table), status, key)
	if err != nil {
		return fmt.Errorf("update status for %s: %w", url, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := l.db.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (url, status, note) VALUES ($1, $2, '')`, l.table), key, status); err != nil {
		return fmt.Errorf("insert status for %s: %w", url, err)
	}
	return nil
}

// Lookup returns the oldest entry for url.
func (l *CrawlLog) Lookup(ctx context.Context, url string) (crawler.URLRecord, bool, error) {
	var r crawler.URLRecord
	err := l.db.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT url, status, note FROM %s WHERE url = $1 ORDER BY id LIMIT 1`, l.table),
		crawler.EncodeURL(url)).Scan(&r.URL, &r.Status, &r.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.URLRecord{}, false, nil
	}
	if err != nil {
		return crawler.URLRecord{}, false, fmt.Errorf("lookup %s: %w", url, err)
	}
	r.URL = crawler.DecodeURL(r.URL)
	return r, true, nil
}

// Contains reports whether url was ever logged.
func (l *CrawlLog) Contains(ctx context.Context, url string) (bool, error) {
	_, ok, err := l.Lookup(ctx, url)
	return ok, err
}

// Pending lists discovered URLs that are still unfetched.
func (l *CrawlLog) Pending(ctx context.Context) ([]string, error) {
	stored, err := l.db.strings(ctx,
		fmt.Sprintf(`SELECT DISTINCT url COLLATE "C" AS url FROM %s WHERE status = $1 AND note = $2 ORDER BY url`, l.table),
		crawler.StatusPending, crawler.NoteDiscovered)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	for i, s := range stored {
		stored[i] = crawler.DecodeURL(s)
	}
	return stored, nil
}

// Count returns the number of log rows.
func (l *CrawlLog) Count(ctx context.Context) (int, error) {
	n, err := l.db.count(ctx, "SELECT COUNT(*) FROM "+l.table)
	if err != nil {
		return 0, fmt.Errorf("count crawl log: %w", err)
	}
	return n, nil
}

// Truncate clears the history.
func (l *CrawlLog) Truncate(ctx context.Context) error {
	return l.db.truncate(ctx, l.table)
}

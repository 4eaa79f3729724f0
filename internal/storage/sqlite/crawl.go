package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

// Enqueue inserts urls; duplicates are ignored.
func (q *CrawlQueue) Enqueue(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (url) VALUES (?) ON CONFLICT DO NOTHING`, q.table)
	return q.db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare enqueue: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, u := range urls {
			if _, err := stmt.ExecContext(ctx, crawler.EncodeURL(u)); err != nil {
				return fmt.Errorf("enqueue %s: %w", u, err)
			}
		}
		return nil
	})
}

// DequeueBatch reads up to limit URLs in stored order. Rows stay until Remove.
func (q *CrawlQueue) DequeueBatch(ctx context.Context, limit int) ([]string, error) {
	rows, err := q.db.db.QueryContext(ctx, fmt.Sprintf(`SELECT url FROM %s ORDER BY url LIMIT ?`, q.table), limit)
	if err != nil {
		return nil, fmt.Errorf("select crawl batch: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan crawl batch: %w", err)
		}
		out = append(out, crawler.DecodeURL(u))
	}
	return out, rows.Err()
}

// Remove deletes url from the frontier.
func (q *CrawlQueue) Remove(ctx context.Context, url string) error {
	if _, err := q.db.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE url = ?`, q.table), crawler.EncodeURL(url)); err != nil {
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

// Add appends records without de-duplicating.
func (l *CrawlLog) Add(ctx context.Context, records []crawler.URLRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (url, status, note) VALUES (?, ?, ?)`, l.table)
	return l.db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare log insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, crawler.EncodeURL(r.URL), r.Status, r.Note); err != nil {
				return fmt.Errorf("log %s: %w", r.URL, err)
			}
		}
		return nil
	})
}

// RecordStatus updates every entry for url, inserting one if none exist.
func (l *CrawlLog) RecordStatus(ctx context.Context, url string, status int) error {
	key := crawler.EncodeURL(url)
	res, err := l.db.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET status = ? WHERE url = ?`, l.table), status, key)
	if err != nil {
		return fmt.Errorf("update status for %s: %w", url, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	if _, err := l.db.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (url, status, note) VALUES (?, ?, '')`, l.table), key, status); err != nil {
		return fmt.Errorf("insert status for %s: %w", url, err)
	}
	return nil
}

// Lookup returns the oldest entry for url.
func (l *CrawlLog) Lookup(ctx context.Context, url string) (crawler.URLRecord, bool, error) {
	var r crawler.URLRecord
	err := l.db.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT url, status, note FROM %s WHERE url = ? ORDER BY id LIMIT 1`, l.table),
		crawler.EncodeURL(url)).Scan(&r.URL, &r.Status, &r.Note)
	if errors.Is(err, sql.ErrNoRows) {
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
	rows, err := l.db.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT url FROM %s WHERE status = ? AND note = ? ORDER BY url`, l.table),
		crawler.StatusPending, crawler.NoteDiscovered)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, crawler.DecodeURL(u))
	}
	return out, rows.Err()
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

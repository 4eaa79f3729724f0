package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JakeFAU/static-mirror/internal/deployer"
)

// DeployQueue is the deploy worklist table.
type DeployQueue struct {
	db    *DB
	table string
}

// DeployQueue returns the deploy worklist backed by d.
func (d *DB) DeployQueue() *DeployQueue {
	return &DeployQueue{db: d, table: d.table("deploy_queue")}
}

// Add inserts items, replacing the remote path of existing rows.
func (q *DeployQueue) Add(ctx context.Context, items []deployer.Item) error {
	if len(items) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (local_path, remote_path) VALUES (?, ?)
		ON CONFLICT (local_path) DO UPDATE SET remote_path = excluded.remote_path`, q.table)
	return q.db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare deploy insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, it := range items {
			if _, err := stmt.ExecContext(ctx, it.LocalPath, it.RemotePath); err != nil {
				return fmt.Errorf("queue %s: %w", it.LocalPath, err)
			}
		}
		return nil
	})
}

// Remaining counts queued items.
func (q *DeployQueue) Remaining(ctx context.Context) (int, error) {
	n, err := q.db.count(ctx, "SELECT COUNT(*) FROM "+q.table)
	if err != nil {
		return 0, fmt.Errorf("count deploy queue: %w", err)
	}
	return n, nil
}

// Batch reads up to limit items ordered by local path.
func (q *DeployQueue) Batch(ctx context.Context, limit int) ([]deployer.Item, error) {
	rows, err := q.db.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT local_path, remote_path FROM %s ORDER BY local_path LIMIT ?`, q.table), limit)
	if err != nil {
		return nil, fmt.Errorf("select deploy batch: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []deployer.Item
	for rows.Next() {
		var it deployer.Item
		if err := rows.Scan(&it.LocalPath, &it.RemotePath); err != nil {
			return nil, fmt.Errorf("scan deploy batch: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Remove deletes the row for localPath.
func (q *DeployQueue) Remove(ctx context.Context, localPath string) error {
	if _, err := q.db.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE local_path = ?`, q.table), localPath); err != nil {
		return fmt.Errorf("remove %s: %w", localPath, err)
	}
	return nil
}

// Truncate empties the worklist.
func (q *DeployQueue) Truncate(ctx context.Context) error {
	return q.db.truncate(ctx, q.table)
}

// DeployCache is the content cache table.
type DeployCache struct {
	db    *DB
	table string
}

// DeployCache returns the content cache backed by d.
func (d *DB) DeployCache() *DeployCache {
	return &DeployCache{db: d, table: d.table("deploy_cache")}
}

// Get returns the cached entry for pathHash in namespace.
func (c *DeployCache) Get(ctx context.Context, pathHash, namespace string) (deployer.CacheEntry, bool, error) {
	e := deployer.CacheEntry{PathHash: pathHash, Namespace: namespace}
	err := c.db.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT local_path, content_hash FROM %s WHERE path_hash = ? AND namespace = ?`, c.table),
		pathHash, namespace).Scan(&e.LocalPath, &e.ContentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return deployer.CacheEntry{}, false, nil
	}
	if err != nil {
		return deployer.CacheEntry{}, false, fmt.Errorf("read deploy cache: %w", err)
	}
	return e, true, nil
}

// Upsert writes entry; the latest hash wins.
func (c *DeployCache) Upsert(ctx context.Context, e deployer.CacheEntry) error {
	_, err := c.db.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (path_hash, namespace, local_path, content_hash) VALUES (?, ?, ?, ?)
		ON CONFLICT (path_hash, namespace) DO UPDATE SET
			local_path = excluded.local_path,
			content_hash = excluded.content_hash`, c.table),
		e.PathHash, e.Namespace, e.LocalPath, e.ContentHash)
	if err != nil {
		return fmt.Errorf("upsert deploy cache: %w", err)
	}
	return nil
}

// Clear deletes every entry in namespace.
func (c *DeployCache) Clear(ctx context.Context, namespace string) error {
	if _, err := c.db.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = ?`, c.table), namespace); err != nil {
		return fmt.Errorf("clear deploy cache: %w", err)
	}
	return nil
}

// Count returns the number of entries in namespace.
func (c *DeployCache) Count(ctx context.Context, namespace string) (int, error) {
	n, err := c.db.count(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE namespace = ?`, c.table), namespace)
	if err != nil {
		return 0, fmt.Errorf("count deploy cache: %w", err)
	}
	return n, nil
}

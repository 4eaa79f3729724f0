package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

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

// Add inserts items; the last remote path for a local path wins.
func (q *DeployQueue) Add(ctx context.Context, items []deployer.Item) error {
	if len(items) == 0 {
		return nil
	}
	// ON CONFLICT DO UPDATE rejects a key appearing twice in one statement.
	index := make(map[string]int, len(items))
	var locals, remotes []string
	for _, it := range items {
		if i, ok := index[it.LocalPath]; ok {
			remotes[i] = it.RemotePath
			continue
		}
		index[it.LocalPath] = len(locals)
		locals = append(locals, it.LocalPath)
		remotes = append(remotes, it.RemotePath)
	}
	query := fmt.Sprintf(`INSERT INTO %s (local_path, remote_path)
SELECT * FROM unnest($1::text[], $2::text[])
ON CONFLICT (local_path) DO UPDATE SET remote_path = EXCLUDED.remote_path`, q.table)
	if _, err := q.db.pool.Exec(ctx, query, locals, remotes); err != nil {
		return fmt.Errorf("queue deploy items: %w", err)
	}
	return nil
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
	rows, err := q.db.pool.Query(ctx,
		fmt.Sprintf(`SELECT local_path, remote_path FROM %s ORDER BY local_path COLLATE "C" LIMIT $1`, q.table), limit)
	if err != nil {
		return nil, fmt.Errorf("select deploy batch: %w", err)
	}
	defer rows.Close()
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
	if _, err := q.db.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE local_path = $1`, q.table), localPath); err != nil {
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
	err := c.db.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT local_path, content_hash FROM %s WHERE path_hash = $1 AND namespace = $2`, c.table),
		pathHash, namespace).Scan(&e.LocalPath, &e.ContentHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return deployer.CacheEntry{}, false, nil
	}
	if err != nil {
		return deployer.CacheEntry{}, false, fmt.Errorf("read deploy cache: %w", err)
	}
	return e, true, nil
}

// Upsert writes entry; the latest hash wins.
func (c *DeployCache) Upsert(ctx context.Context, e deployer.CacheEntry) error {
	_, err := c.db.pool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (path_hash, namespace, local_path, content_hash) VALUES ($1, $2, $3, $4)
ON CONFLICT (path_hash, namespace) DO UPDATE SET
	local_path = EXCLUDED.local_path,
	content_hash = EXCLUDED.content_hash`, c.table),
		e.PathHash, e.Namespace, e.LocalPath, e.ContentHash)
	if err != nil {
		return fmt.Errorf("upsert deploy cache: %w", err)
	}
	return nil
}

// Clear deletes every entry in namespace.
func (c *DeployCache) Clear(ctx context.Context, namespace string) error {
	if _, err := c.db.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1`, c.table), namespace); err != nil {
		return fmt.Errorf("clear deploy cache: %w", err)
	}
	return nil
}

// Count returns the number of entries in namespace.
func (c *DeployCache) Count(ctx context.Context, namespace string) (int, error) {
	n, err := c.db.count(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE namespace = $1`, c.table), namespace)
	if err != nil {
		return 0, fmt.Errorf("count deploy cache: %w", err)
	}
	return n, nil
}

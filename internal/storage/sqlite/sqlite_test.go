package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/crawler"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestOpenRejectsBadPrefix(t *testing.T) {
	t.Parallel()
	_, err := Open(":memory:", "bad-prefix;", zap.NewNop())
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	var n int
	require.NoError(t, db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestCrawlQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newTestDB(t).CrawlQueue()

	require.NoError(t, q.Enqueue(ctx, []string{
		"https://site.test/b",
		"https://site.test/a b",
		"https://site.test/b",
	}))
	total, err := q.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	batch, err := q.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://site.test/a b", "https://site.test/b"}, batch)

	total, err = q.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total, "dequeue does not remove")

	require.NoError(t, q.Remove(ctx, "https://site.test/a b"))
	batch, err = q.DequeueBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.test/b"}, batch)

	require.NoError(t, q.Truncate(ctx))
	total, err = q.Total(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCrawlLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := newTestDB(t).CrawlLog()

	require.NoError(t, log.Add(ctx, []crawler.URLRecord{
		{URL: "https://site.test/", Note: "seed"},
		{URL: "https://site.test/x", Note: crawler.NoteDiscovered},
		{URL: "https://site.test/x", Note: crawler.NoteDiscovered},
		{URL: "https://site.test/y", Note: crawler.NoteDiscovered},
	}))

	pending, err := log.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.test/x", "https://site.test/y"}, pending)

	require.NoError(t, log.RecordStatus(ctx, "https://site.test/x", 200))
	rec, ok, err := log.Lookup(ctx, "https://site.test/x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, rec.Status)
	assert.Equal(t, crawler.NoteDiscovered, rec.Note)

	pending, err = log.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.test/y"}, pending)

	require.NoError(t, log.RecordStatus(ctx, "https://site.test/new", crawler.StatusFetchFailed))
	ok, err = log.Contains(ctx, "https://site.test/new")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	_, ok, err = log.Lookup(ctx, "https://site.test/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, log.Truncate(ctx))
	count, err = log.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeployQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := newTestDB(t).DeployQueue()

	require.NoError(t, q.Add(ctx, []deployer.Item{
		{LocalPath: "/a/z.html", RemotePath: "z.html"},
		{LocalPath: "/a/index.html", RemotePath: "index.html"},
	}))
	require.NoError(t, q.Add(ctx, []deployer.Item{{LocalPath: "/a/z.html", RemotePath: "zz.html"}}))

	n, err := q.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	batch, err := q.Batch(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []deployer.Item{
		{LocalPath: "/a/index.html", RemotePath: "index.html"},
		{LocalPath: "/a/z.html", RemotePath: "zz.html"},
	}, batch)

	require.NoError(t, q.Remove(ctx, "/a/index.html"))
	n, err = q.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, q.Truncate(ctx))
	n, err = q.Remaining(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeployCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestDB(t).DeployCache()

	_, ok, err := c.Get(ctx, "h1", "gcs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Upsert(ctx, deployer.CacheEntry{PathHash: "h1", Namespace: "gcs", LocalPath: "/a", ContentHash: "c1"}))
	require.NoError(t, c.Upsert(ctx, deployer.CacheEntry{PathHash: "h1", Namespace: "gcs", LocalPath: "/b", ContentHash: "c2"}))
	require.NoError(t, c.Upsert(ctx, deployer.CacheEntry{PathHash: "h1", Namespace: "s3", LocalPath: "/a", ContentHash: "c1"}))

	got, ok, err := c.Get(ctx, "h1", "gcs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, deployer.CacheEntry{PathHash: "h1", Namespace: "gcs", LocalPath: "/b", ContentHash: "c2"}, got)

	n, err := c.Count(ctx, "gcs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Clear(ctx, "gcs"))
	n, err = c.Count(ctx, "gcs")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = c.Count(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "other namespaces survive")
}

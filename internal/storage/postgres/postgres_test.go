package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/static-mirror/internal/crawler"
	"github.com/JakeFAU/static-mirror/internal/deployer"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	db, err := NewWithPool(mock, "test", zap.NewNop())
	require.NoError(t, err)
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()
	_, err := NewWithPool(nil, "test", nil)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "drop table;", nil)
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS test_crawl_queue")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS test_crawl_log")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q("CREATE INDEX IF NOT EXISTS test_crawl_log_url")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS test_deploy_queue")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS test_deploy_cache")).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, db.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	mock.ExpectExec(q("CREATE TABLE")).WillReturnError(errors.New("permission denied"))

	err := db.EnsureSchema(context.Background())
	require.ErrorContains(t, err, "permission denied")
}

func TestCrawlQueueEncodesURLs(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	ctx := context.Background()
	queue := db.CrawlQueue()

	mock.ExpectExec(q("INSERT INTO test_crawl_queue (url) SELECT unnest")).
		WithArgs([]string{"https://site.test/a%20b", "https://site.test/c"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectQuery(q("SELECT url FROM test_crawl_queue ORDER BY url COLLATE \"C\" LIMIT $1")).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"url"}).AddRow("https://site.test/a%20b").AddRow("https://site.test/c"))
	mock.ExpectExec(q("DELETE FROM test_crawl_queue WHERE url = $1")).
		WithArgs("https://site.test/a%20b").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM test_crawl_queue")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, queue.Enqueue(ctx, []string{"https://site.test/a b", "https://site.test/c"}))
	batch, err := queue.DequeueBatch(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.test/a b", "https://site.test/c"}, batch)
	require.NoError(t, queue.Remove(ctx, "https://site.test/a b"))
	total, err := queue.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlQueueEnqueueEmptyIsNoop(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	require.NoError(t, db.CrawlQueue().Enqueue(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncateLogsSurvivors(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	core, logs := observer.New(zapcore.InfoLevel)
	db, err := NewWithPool(mock, "test", zap.New(core))
	require.NoError(t, err)

	mock.ExpectExec(q("TRUNCATE test_crawl_log")).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM test_crawl_log")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, db.CrawlLog().Truncate(context.Background()))
	entries := logs.FilterMessage("table not empty after truncate").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "test_crawl_log", entries[0].ContextMap()["table"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlLogAddAndPending(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	ctx := context.Background()
	log := db.CrawlLog()

	mock.ExpectExec(q("INSERT INTO test_crawl_log (url, status, note)")).
		WithArgs(
			[]string{"https://site.test/", "https://site.test/x"},
			[]int32{0, 0},
			[]string{"seed", crawler.NoteDiscovered},
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectQuery(q("SELECT DISTINCT url COLLATE \"C\" AS url FROM test_crawl_log WHERE status = $1 AND note = $2 ORDER BY url")).
		WithArgs(crawler.StatusPending, crawler.NoteDiscovered).
		WillReturnRows(pgxmock.NewRows([]string{"url"}).AddRow("https://site.test/x"))

	require.NoError(t, log.Add(ctx, []crawler.URLRecord{
		{URL: "https://site.test/", Note: "seed"},
		{URL: "https://site.test/x", Note: crawler.NoteDiscovered},
	}))
	pending, err := log.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.test/x"}, pending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlLogRecordStatus(t *testing.T) {
	t.Parallel()

	t.Run("updates existing rows", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		mock.ExpectExec(q("UPDATE test_crawl_log SET status = $1 WHERE url = $2")).
			WithArgs(200, "https://site.test/x").
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))

		require.NoError(t, db.CrawlLog().RecordStatus(context.Background(), "https://site.test/x", 200))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inserts when missing", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		mock.ExpectExec(q("UPDATE test_crawl_log")).
			WithArgs(crawler.StatusExcluded, "https://site.test/y").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectExec(q("INSERT INTO test_crawl_log (url, status, note) VALUES ($1, $2, '')")).
			WithArgs("https://site.test/y", crawler.StatusExcluded).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, db.CrawlLog().RecordStatus(context.Background(), "https://site.test/y", crawler.StatusExcluded))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCrawlLogLookup(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	ctx := context.Background()
	log := db.CrawlLog()

	mock.ExpectQuery(q("SELECT url, status, note FROM test_crawl_log WHERE url = $1")).
		WithArgs("https://site.test/a%20b").
		WillReturnRows(pgxmock.NewRows([]string{"url", "status", "note"}).AddRow("https://site.test/a%20b", 200, "seed"))
	mock.ExpectQuery(q("SELECT url, status, note FROM test_crawl_log WHERE url = $1")).
		WithArgs("https://site.test/missing").
		WillReturnError(pgx.ErrNoRows)

	rec, ok, err := log.Lookup(ctx, "https://site.test/a b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, crawler.URLRecord{URL: "https://site.test/a b", Status: 200, Note: "seed"}, rec)

	ok, err = log.Contains(ctx, "https://site.test/missing")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeployQueueAddCollapsesDuplicates(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectExec(q("INSERT INTO test_deploy_queue (local_path, remote_path)")).
		WithArgs([]string{"/a/index.html", "/a/b.css"}, []string{"index.html", "css/b.css"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectQuery(q("SELECT local_path, remote_path FROM test_deploy_queue ORDER BY local_path COLLATE \"C\" LIMIT $1")).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"local_path", "remote_path"}).
			AddRow("/a/b.css", "css/b.css").
			AddRow("/a/index.html", "index.html"))

	queue := db.DeployQueue()
	require.NoError(t, queue.Add(ctx, []deployer.Item{
		{LocalPath: "/a/index.html", RemotePath: "index.html"},
		{LocalPath: "/a/b.css", RemotePath: "b.css"},
		{LocalPath: "/a/b.css", RemotePath: "css/b.css"},
	}))
	batch, err := queue.Batch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []deployer.Item{
		{LocalPath: "/a/b.css", RemotePath: "css/b.css"},
		{LocalPath: "/a/index.html", RemotePath: "index.html"},
	}, batch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeployCache(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	ctx := context.Background()
	cache := db.DeployCache()

	mock.ExpectQuery(q("SELECT local_path, content_hash FROM test_deploy_cache")).
		WithArgs("h1", "gcs").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(q("INSERT INTO test_deploy_cache")).
		WithArgs("h1", "gcs", "/a/index.html", "c1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(q("SELECT local_path, content_hash FROM test_deploy_cache")).
		WithArgs("h1", "gcs").
		WillReturnRows(pgxmock.NewRows([]string{"local_path", "content_hash"}).AddRow("/a/index.html", "c1"))
	mock.ExpectExec(q("DELETE FROM test_deploy_cache WHERE namespace = $1")).
		WithArgs("gcs").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM test_deploy_cache WHERE namespace = $1")).
		WithArgs("gcs").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	_, ok, err := cache.Get(ctx, "h1", "gcs")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := deployer.CacheEntry{PathHash: "h1", Namespace: "gcs", LocalPath: "/a/index.html", ContentHash: "c1"}
	require.NoError(t, cache.Upsert(ctx, entry))

	got, ok, err := cache.Get(ctx, "h1", "gcs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, got)

	require.NoError(t, cache.Clear(ctx, "gcs"))
	n, err := cache.Count(ctx, "gcs")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

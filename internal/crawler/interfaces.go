package crawler

import (
	"context"

	"github.com/JakeFAU/static-mirror/internal/rewrite"
)

// Queue is the active crawl frontier.
type Queue interface {
	Enqueue(ctx context.Context, urls []string) error
	DequeueBatch(ctx context.Context, limit int) ([]string, error)
	Remove(ctx context.Context, url string) error
	Total(ctx context.Context) (int, error)
	Truncate(ctx context.Context) error
}

// Log is the history of every URL seen during a run.
type Log interface {
	Add(ctx context.Context, records []URLRecord) error
	RecordStatus(ctx context.Context, url string, status int) error
	Lookup(ctx context.Context, url string) (URLRecord, bool, error)
	Contains(ctx context.Context, url string) (bool, error)
	Pending(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Truncate(ctx context.Context) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Processor rewrites fetched documents for the deployment target.
type Processor interface {
	HTML(doc []byte, pageURL string) (rewrite.Result, error)
	CSS(doc []byte, pageURL string) (rewrite.Result, error)
	Text(doc []byte) (rewrite.Result, error)
}

// Sink persists rewritten output under an archive-relative path.
type Sink interface {
	WriteFile(ctx context.Context, relPath string, body []byte) error
}

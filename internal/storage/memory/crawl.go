// Package memory keeps crawl and deploy state in process memory. It backs
// tests and single-shot CLI runs where nothing needs to survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/static-mirror/internal/crawler"
)

// CrawlQueue is an in-memory crawl frontier.
type CrawlQueue struct {
	mu   sync.RWMutex
	urls map[string]struct{}
}

// NewCrawlQueue constructs an empty CrawlQueue.
func NewCrawlQueue() *CrawlQueue {
	return &CrawlQueue{urls: make(map[string]struct{})}
}

// Enqueue adds urls; duplicates collapse.
func (q *CrawlQueue) Enqueue(_ context.Context, urls []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, u := range urls {
		q.urls[crawler.EncodeURL(u)] = struct{}{}
	}
	return nil
}

// DequeueBatch returns up to limit URLs in stored order without removing them.
func (q *CrawlQueue) DequeueBatch(_ context.Context, limit int) ([]string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	keys := make([]string, 0, len(q.urls))
	for k := range q.urls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit >= 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = crawler.DecodeURL(k)
	}
	return out, nil
}

// Remove drops url from the frontier.
func (q *CrawlQueue) Remove(_ context.Context, url string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.urls, crawler.EncodeURL(url))
	return nil
}

// Total counts queued URLs.
func (q *CrawlQueue) Total(context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.urls), nil
}

// Truncate empties the queue.
func (q *CrawlQueue) Truncate(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.urls = make(map[string]struct{})
	return nil
}

// CrawlLog is an append-only in-memory crawl history.
type CrawlLog struct {
	mu      sync.RWMutex
	records []crawler.URLRecord
}

// NewCrawlLog constructs an empty CrawlLog.
func NewCrawlLog() *CrawlLog {
	return &CrawlLog{}
}

// Add appends records. Duplicates are kept.
func (l *CrawlLog) Add(_ context.Context, records []crawler.URLRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		r.URL = crawler.EncodeURL(r.URL)
		l.records = append(l.records, r)
	}
	return nil
}

// RecordStatus sets the status on every entry for url, appending one when
// url was never logged.
func (l *CrawlLog) RecordStatus(_ context.Context, url string, status int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := crawler.EncodeURL(url)
	found := false
	for i := range l.records {
		if l.records[i].URL == key {
			l.records[i].Status = status
			found = true
		}
	}
	if !found {
		l.records = append(l.records, crawler.URLRecord{URL: key, Status: status})
	}
	return nil
}

// Lookup returns the first entry for url.
func (l *CrawlLog) Lookup(_ context.Context, url string) (crawler.URLRecord, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	key := crawler.EncodeURL(url)
	for _, r := range l.records {
		if r.URL == key {
			r.URL = crawler.DecodeURL(r.URL)
			return r, true, nil
		}
	}
	return crawler.URLRecord{}, false, nil
}

// Contains reports whether url was ever logged.
func (l *CrawlLog) Contains(ctx context.Context, url string) (bool, error) {
	_, ok, err := l.Lookup(ctx, url)
	return ok, err
}

// Pending lists discovered URLs that have not been fetched yet.
func (l *CrawlLog) Pending(context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set := make(map[string]struct{})
	for _, r := range l.records {
		if r.Status == crawler.StatusPending && r.Note == crawler.NoteDiscovered {
			set[r.URL] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		keys[i] = crawler.DecodeURL(k)
	}
	return keys, nil
}

// Count returns the number of log entries.
func (l *CrawlLog) Count(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// Truncate clears the history.
func (l *CrawlLog) Truncate(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	return nil
}

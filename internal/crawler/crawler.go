package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/logging"
	"github.com/JakeFAU/static-mirror/internal/metrics"
	"github.com/JakeFAU/static-mirror/internal/rewrite"
)

// Config holds the knobs the crawl loop needs.
type Config struct {
	SiteURL   string
	BatchSize int
	Exclude   []string
	Discover  bool
}

// Crawler drains the crawl queue one batch per Step call.
type Crawler struct {
	cfg       Config
	queue     Queue
	log       Log
	fetcher   Fetcher
	processor Processor
	sink      Sink
	logger    *zap.Logger
}

// New wires a Crawler from its collaborators.
func New(cfg Config, queue Queue, log Log, fetcher Fetcher, processor Processor, sink Sink, logger *zap.Logger) (*Crawler, error) {
	if queue == nil || log == nil || fetcher == nil || processor == nil || sink == nil {
		return nil, errors.New("crawler: queue, log, fetcher, processor and sink are required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("crawler: batch size must be > 0, got %d", cfg.BatchSize)
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &Crawler{
		cfg:       cfg,
		queue:     queue,
		log:       log,
		fetcher:   fetcher,
		processor: processor,
		sink:      sink,
		logger:    logging.Component(logger, "crawler"),
	}, nil
}

// Prepare resets the queue and log and seeds the primary crawl.
func (c *Crawler) Prepare(ctx context.Context, seeds []string) error {
	if err := c.queue.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate crawl queue: %w", err)
	}
	if err := c.log.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate crawl log: %w", err)
	}
	unique := sortedSet(seeds)
	if len(unique) == 0 {
		return errors.New("crawler: at least one seed URL is required")
	}
	records := make([]URLRecord, 0, len(unique))
	for _, u := range unique {
		records = append(records, URLRecord{URL: u, Status: StatusPending, Note: "seed"})
	}
	if err := c.log.Add(ctx, records); err != nil {
		return fmt.Errorf("log seeds: %w", err)
	}
	if err := c.queue.Enqueue(ctx, unique); err != nil {
		return fmt.Errorf("enqueue seeds: %w", err)
	}
	c.logger.Info("crawl prepared", zap.Int("seeds", len(unique)))
	return nil
}

// Step processes a single batch. When the queue is empty it seeds the
// discovery crawl from pending discovered URLs, or reports completion.
func (c *Crawler) Step(ctx context.Context) (StepResult, error) {
	start := time.Now()
	total, err := c.queue.Total(ctx)
	if err != nil {
		return StepResult{}, fmt.Errorf("count crawl queue: %w", err)
	}
	if total == 0 {
		seeded, err := c.seedDiscovery(ctx)
		if err != nil {
			return StepResult{}, err
		}
		if seeded == 0 {
			c.logger.Info("crawl complete")
			return StepResult{Phase: PhaseDone, Done: true}, nil
		}
	}

	urls, err := c.queue.DequeueBatch(ctx, c.cfg.BatchSize)
	if err != nil {
		return StepResult{}, fmt.Errorf("dequeue crawl batch: %w", err)
	}

	result := StepResult{Phase: PhaseDiscovery}
	found := make(map[string]struct{})
	for _, u := range urls {
		primary, err := c.processURL(ctx, u, found, &result)
		if err != nil {
			return result, err
		}
		if primary {
			result.Phase = PhasePrimary
		}
	}

	added, err := c.flushDiscovered(ctx, found)
	if err != nil {
		return result, err
	}
	result.Discovered = added

	remaining, err := c.queue.Total(ctx)
	if err != nil {
		return result, fmt.Errorf("count crawl queue: %w", err)
	}
	result.Remaining = remaining
	metrics.ObserveBatch("crawl", time.Since(start))
	c.logger.Info("crawl batch finished",
		zap.String("phase", string(result.Phase)),
		zap.Int("processed", result.Processed),
		zap.Int("written", result.Written),
		zap.Int("discovered", result.Discovered),
		zap.Int("remaining", result.Remaining),
	)
	return result, nil
}

// processURL handles one queue entry. It reports whether the URL belongs to
// the primary crawl, meaning it was not itself a discovery.
func (c *Crawler) processURL(ctx context.Context, rawURL string, found map[string]struct{}, result *StepResult) (bool, error) {
	result.Processed++
	logger := c.logger.With(zap.String("url", rawURL))

	record, seen, err := c.log.Lookup(ctx, rawURL)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", rawURL, err)
	}
	primary := !seen || record.Note != NoteDiscovered
	harvest := c.cfg.Discover && primary

	if Excluded(rawURL, c.cfg.Exclude) {
		result.Excluded++
		metrics.ObserveCrawlPage("excluded", StatusExcluded, 0)
		return primary, c.finish(ctx, rawURL, StatusExcluded)
	}

	resp, err := c.fetcher.Fetch(ctx, FetchRequest{URL: c.absolute(rawURL)})
	if err != nil {
		logger.Warn("fetch failed", zap.Error(err))
		result.Failed++
		metrics.ObserveCrawlPage("failed", StatusFetchFailed, 0)
		return primary, c.finish(ctx, rawURL, StatusFetchFailed)
	}
	if err := c.finish(ctx, rawURL, resp.StatusCode); err != nil {
		return primary, err
	}
	if !IsValidStatus(resp.StatusCode) {
		logger.Warn("unexpected status", zap.Int("status", resp.StatusCode))
		result.Failed++
		metrics.ObserveCrawlPage("failed", resp.StatusCode, len(resp.Body))
		return primary, nil
	}

	body, links := c.transform(resp, rawURL, logger)
	if len(body) == 0 {
		logger.Debug("nothing to write")
		metrics.ObserveCrawlPage("empty", resp.StatusCode, 0)
		return primary, nil
	}
	out := OutputPath(rawURL)
	if err := c.sink.WriteFile(ctx, out, body); err != nil {
		logger.Error("write archive file", zap.String("path", out), zap.Error(err))
		return primary, fmt.Errorf("write %s: %w", out, err)
	}
	result.Written++
	metrics.ObserveCrawlPage("written", resp.StatusCode, len(resp.Body))

	if harvest {
		for _, link := range links {
			found[link] = struct{}{}
		}
	}
	return primary, nil
}

// finish records the status and drops the URL from the frontier.
func (c *Crawler) finish(ctx context.Context, rawURL string, status int) error {
	if err := c.log.RecordStatus(ctx, rawURL, status); err != nil {
		return fmt.Errorf("record status for %s: %w", rawURL, err)
	}
	if err := c.queue.Remove(ctx, rawURL); err != nil {
		return fmt.Errorf("remove %s from crawl queue: %w", rawURL, err)
	}
	return nil
}

// transform rewrites markup. Rewrite failures fall back to the fetched bytes.
func (c *Crawler) transform(resp FetchResponse, rawURL string, logger *zap.Logger) ([]byte, []string) {
	pageURL := c.absolute(rawURL)
	var (
		res rewrite.Result
		err error
	)
	switch Classify(rawURL, resp.ContentTypeHeader()) {
	case ContentHTML:
		res, err = c.processor.HTML(resp.Body, pageURL)
	case ContentCSS:
		res, err = c.processor.CSS(resp.Body, pageURL)
	case ContentText:
		res, err = c.processor.Text(resp.Body)
	default:
		return resp.Body, nil
	}
	if err != nil {
		if !errors.Is(err, rewrite.ErrEmptyDocument) {
			logger.Warn("rewrite failed, keeping original bytes", zap.Error(err))
		}
		return resp.Body, nil
	}
	return res.Body, res.Discovered
}

// flushDiscovered writes new URLs to the log as pending discoveries.
func (c *Crawler) flushDiscovered(ctx context.Context, found map[string]struct{}) (int, error) {
	if len(found) == 0 {
		return 0, nil
	}
	var fresh []URLRecord
	for _, u := range sortedKeys(found) {
		ok, err := c.log.Contains(ctx, u)
		if err != nil {
			return 0, fmt.Errorf("check crawl log for %s: %w", u, err)
		}
		if !ok {
			fresh = append(fresh, URLRecord{URL: u, Status: StatusPending, Note: NoteDiscovered})
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := c.log.Add(ctx, fresh); err != nil {
		return 0, fmt.Errorf("log discovered urls: %w", err)
	}
	metrics.AddDiscovered(len(fresh))
	return len(fresh), nil
}

// seedDiscovery moves pending discoveries into the queue.
func (c *Crawler) seedDiscovery(ctx context.Context) (int, error) {
	if !c.cfg.Discover {
		return 0, nil
	}
	pending, err := c.log.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending discoveries: %w", err)
	}
	pending = sortedSet(pending)
	if len(pending) == 0 {
		return 0, nil
	}
	if err := c.queue.Enqueue(ctx, pending); err != nil {
		return 0, fmt.Errorf("enqueue discoveries: %w", err)
	}
	c.logger.Info("discovery crawl seeded", zap.Int("urls", len(pending)))
	return len(pending), nil
}

func (c *Crawler) absolute(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return c.cfg.SiteURL + "/" + strings.TrimLeft(rawURL, "/")
}

func sortedSet(values []string) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/static-mirror/internal/archive"
)

// Status is a point-in-time view of queue and archive state.
type Status struct {
	CrawlQueued        int    `json:"crawl_queued"`
	CrawlLogged        int    `json:"crawl_logged"`
	PendingDiscoveries int    `json:"pending_discoveries"`
	DeployQueued       int    `json:"deploy_queued"`
	CacheEntries       int    `json:"cache_entries"`
	CacheNamespace     string `json:"cache_namespace"`
	CurrentArchive     string `json:"current_archive,omitempty"`
	ArchivePath        string `json:"archive_path,omitempty"`
}

// Status reads queue sizes and the current archive.
func (a *App) Status(ctx context.Context) (Status, error) {
	var (
		st  = Status{CacheNamespace: a.cfg.Deploy.CacheNamespace()}
		err error
	)
	if st.CrawlQueued, err = a.stores.crawlQueue.Total(ctx); err != nil {
		return Status{}, fmt.Errorf("crawl queue size: %w", err)
	}
	if st.CrawlLogged, err = a.stores.crawlLog.Count(ctx); err != nil {
		return Status{}, fmt.Errorf("crawl log size: %w", err)
	}
	pending, err := a.stores.crawlLog.Pending(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("pending discoveries: %w", err)
	}
	st.PendingDiscoveries = len(pending)
	if st.DeployQueued, err = a.stores.deployQueue.Remaining(ctx); err != nil {
		return Status{}, fmt.Errorf("deploy queue size: %w", err)
	}
	if st.CacheEntries, err = a.stores.deployCache.Count(ctx, st.CacheNamespace); err != nil {
		return Status{}, fmt.Errorf("deploy cache size: %w", err)
	}
	arc, err := a.archives.Current()
	switch {
	case err == nil:
		st.CurrentArchive = arc.Name
		st.ArchivePath = arc.Path
	case !errors.Is(err, archive.ErrNoCurrentArchive):
		return Status{}, err
	}
	return st, nil
}

// Cleanup prunes archives beyond retain.
func (a *App) Cleanup(retain int) (int, error) {
	return a.archives.Cleanup(retain)
}

// Reset empties both queues, the crawl log, and this namespace's cache.
func (a *App) Reset(ctx context.Context) error {
	if err := a.stores.crawlQueue.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate crawl queue: %w", err)
	}
	if err := a.stores.crawlLog.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate crawl log: %w", err)
	}
	if err := a.stores.deployQueue.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate deploy queue: %w", err)
	}
	return a.engine.ResetCache(ctx)
}

package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/config"
	"github.com/JakeFAU/static-mirror/internal/crawler"
	"github.com/JakeFAU/static-mirror/internal/deployer"
	"github.com/JakeFAU/static-mirror/internal/storage/memory"
	"github.com/JakeFAU/static-mirror/internal/storage/postgres"
	"github.com/JakeFAU/static-mirror/internal/storage/sqlite"
)

type stores struct {
	crawlQueue  crawler.Queue
	crawlLog    crawler.Log
	deployQueue deployer.Queue
	deployCache deployer.Cache
	close       func() error
}

func openStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (stores, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return stores{
			crawlQueue:  memory.NewCrawlQueue(),
			crawlLog:    memory.NewCrawlLog(),
			deployQueue: memory.NewDeployQueue(),
			deployCache: memory.NewDeployCache(),
			close:       func() error { return nil },
		}, nil
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath, cfg.Prefix, logger)
		if err != nil {
			return stores{}, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return stores{}, err
		}
		return stores{
			crawlQueue:  db.CrawlQueue(),
			crawlLog:    db.CrawlLog(),
			deployQueue: db.DeployQueue(),
			deployCache: db.DeployCache(),
			close:       db.Close,
		}, nil
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:      cfg.DSN,
			Prefix:   cfg.Prefix,
			MaxConns: cfg.MaxConns,
		}, logger)
		if err != nil {
			return stores{}, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return stores{}, err
		}
		return stores{
			crawlQueue:  db.CrawlQueue(),
			crawlLog:    db.CrawlLog(),
			deployQueue: db.DeployQueue(),
			deployCache: db.DeployCache(),
			close:       func() error { db.Close(); return nil },
		}, nil
	default:
		return stores{}, fmt.Errorf("storage backend %q is not supported", cfg.Backend)
	}
}

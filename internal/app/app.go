// Package app builds the long-lived services for one configuration and
// exposes the generate and deploy operations the CLI and HTTP API share.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/clock/system"
	"github.com/JakeFAU/static-mirror/internal/config"
	"github.com/JakeFAU/static-mirror/internal/crawler"
	"github.com/JakeFAU/static-mirror/internal/deployer"
	"github.com/JakeFAU/static-mirror/internal/deployer/registry"
	collyfetcher "github.com/JakeFAU/static-mirror/internal/fetcher/colly"
	"github.com/JakeFAU/static-mirror/internal/hash/sha256"
	"github.com/JakeFAU/static-mirror/internal/id/uuid"
	"github.com/JakeFAU/static-mirror/internal/logging"
	"github.com/JakeFAU/static-mirror/internal/policy/ratelimit"
	logpublisher "github.com/JakeFAU/static-mirror/internal/publisher/log"
	pubsubpublisher "github.com/JakeFAU/static-mirror/internal/publisher/pubsub"
	"github.com/JakeFAU/static-mirror/internal/rewrite"
)

// App holds every service wired from one Config.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	archives *archive.Manager
	stores   stores
	crawler  *crawler.Crawler
	engine   *deployer.Engine
	closers  []func() error
}

// Option adjusts how New wires services. Tests use it to swap collaborators.
type Option func(*options)

type options struct {
	fetcher   crawler.Fetcher
	target    deployer.Deployer
	publisher deployer.Publisher
	clock     deployer.Clock
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithTarget replaces the deployer chosen by deploy.method.
func WithTarget(d deployer.Deployer) Option {
	return func(o *options) { o.target = d }
}

// WithClock replaces the system clock.
func WithClock(c deployer.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPublisher replaces the post-deploy publisher.
func WithPublisher(p deployer.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New wires an App. Callers must Close it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	o := options{clock: system.New()}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)
	a := &App{cfg: cfg, logger: logging.Component(logger, "app")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.archives, err = archive.NewManager(cfg.Archive.Root, o.clock, logger)
	if err != nil {
		return nil, err
	}

	a.stores, err = openStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.stores.close)

	processor, err := rewrite.New(rewrite.Options{
		SiteURL:                  cfg.Site.URL,
		DestinationURL:           cfg.Rewrite.DestinationURL,
		Mode:                     rewrite.Mode(cfg.Rewrite.Mode),
		Rules:                    rewrite.ParseRules(cfg.Rewrite.Rules),
		BaseHref:                 cfg.Rewrite.BaseHref,
		ComparisonDomain:         cfg.Rewrite.ComparisonDomain,
		StripHTMLComments:        cfg.Rewrite.StripHTMLComments,
		StripConditionalComments: cfg.Rewrite.StripConditionalComments,
		StripPlatformMeta:        cfg.Rewrite.StripPlatformMeta,
	})
	if err != nil {
		return nil, err
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = newFetcher(cfg)
	}
	a.crawler, err = crawler.New(crawler.Config{
		SiteURL:   cfg.Site.URL,
		BatchSize: cfg.Crawl.BatchSize,
		Exclude:   cfg.Crawl.Exclude,
		Discover:  cfg.Crawl.Discover,
	}, a.stores.crawlQueue, a.stores.crawlLog, fetcher, processor, a.archives, logger)
	if err != nil {
		return nil, err
	}

	target := o.target
	if target == nil {
		var closeTarget registry.Closer
		target, closeTarget, err = registry.New(ctx, cfg.Deploy, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeTarget)
	}

	publisher := o.publisher
	if publisher == nil {
		publisher, err = a.newPublisher(ctx, logger)
		if err != nil {
			return nil, err
		}
	}

	a.engine, err = deployer.NewEngine(deployer.Config{
		Namespace: cfg.Deploy.CacheNamespace(),
		BatchSize: cfg.Deploy.BatchSize,
		Delay:     cfg.Deploy.Delay,
	}, deployer.Deps{
		Queue:     a.stores.deployQueue,
		Cache:     a.stores.deployCache,
		Target:    target,
		Archives:  a.archives,
		Hasher:    sha256.New(),
		Clock:     o.clock,
		IDs:       uuid.New(),
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("deploy_method", cfg.Deploy.Method),
	)
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Archives exposes the archive manager.
func (a *App) Archives() *archive.Manager {
	return a.archives
}

// Close releases clients and connections in reverse order.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
}

func newFetcher(cfg config.Config) *collyfetcher.Fetcher {
	fc := collyfetcher.Config{
		UserAgent:         cfg.Crawl.UserAgent,
		Timeout:           cfg.Crawl.Timeout,
		BasicAuthUser:     cfg.Site.BasicAuthUser,
		BasicAuthPassword: cfg.Site.BasicAuthPassword,
		Port:              cfg.Site.Port,
	}
	if cfg.Crawl.RequestsPerSecond > 0 {
		fc.Limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Crawl.RequestsPerSecond})
	}
	return collyfetcher.New(fc)
}

// newPublisher uses Pub/Sub when a topic is configured and logs events otherwise.
func (a *App) newPublisher(ctx context.Context, logger *zap.Logger) (deployer.Publisher, error) {
	if a.cfg.Notify.ProjectID == "" || a.cfg.Notify.Topic == "" {
		return logpublisher.New(logger), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client.Topic(a.cfg.Notify.Topic))
	a.closers = append(a.closers, func() error {
		pub.Stop()
		return client.Close()
	})
	return pub, nil
}

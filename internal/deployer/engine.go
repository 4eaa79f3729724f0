package deployer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/logging"
	"github.com/JakeFAU/static-mirror/internal/metrics"
)

// Config tunes the batch protocol.
type Config struct {
	Namespace string
	BatchSize int
	Delay     time.Duration
}

// Engine drives the deploy queue against one Deployer.
type Engine struct {
	cfg       Config
	queue     Queue
	cache     Cache
	target    Deployer
	archives  ArchiveSource
	hasher    Hasher
	clock     Clock
	ids       IDGenerator
	publisher Publisher
	logger    *zap.Logger

	// armed is set by Prepare and cleared by the Step that finalizes.
	armed atomic.Bool
}

// Deps groups the Engine's collaborators. Publisher and IDs are optional.
type Deps struct {
	Queue     Queue
	Cache     Cache
	Target    Deployer
	Archives  ArchiveSource
	Hasher    Hasher
	Clock     Clock
	IDs       IDGenerator
	Publisher Publisher
	Logger    *zap.Logger
}

// NewEngine validates cfg and deps.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("deploy batch size must be > 0, got %d", cfg.BatchSize)
	}
	if deps.Queue == nil || deps.Cache == nil || deps.Target == nil {
		return nil, errors.New("deployer: queue, cache and target are required")
	}
	if deps.Archives == nil || deps.Hasher == nil || deps.Clock == nil {
		return nil, errors.New("deployer: archives, hasher and clock are required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = deps.Target.Name()
	}
	return &Engine{
		cfg:       cfg,
		queue:     deps.Queue,
		cache:     deps.Cache,
		target:    deps.Target,
		archives:  deps.Archives,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		ids:       deps.IDs,
		publisher: deps.Publisher,
		logger:    logging.Component(deps.Logger, "deployer").With(zap.String("provider", deps.Target.Name())),
	}, nil
}

// Prepare rebuilds the deploy queue from every file in a.
func (e *Engine) Prepare(ctx context.Context, a archive.Archive) (int, error) {
	if err := e.queue.Truncate(ctx); err != nil {
		return 0, fmt.Errorf("truncate deploy queue: %w", err)
	}
	files, err := a.Files()
	if err != nil {
		return 0, err
	}
	items := make([]Item, 0, len(files))
	for _, rel := range files {
		local, err := a.LocalPath(rel)
		if err != nil {
			return 0, err
		}
		items = append(items, Item{LocalPath: local, RemotePath: rel})
	}
	if err := e.queue.Add(ctx, items); err != nil {
		return 0, fmt.Errorf("fill deploy queue: %w", err)
	}
	e.armed.Store(true)
	e.logger.Info("deploy queue prepared", zap.String("archive", a.Name), zap.Int("files", len(items)))
	return len(items), nil
}

// TestConnectivity checks the target without transferring anything.
func (e *Engine) TestConnectivity(ctx context.Context) error {
	if err := e.target.TestConnectivity(ctx); err != nil {
		e.logger.Warn("connectivity test failed", zap.Error(err))
		return err
	}
	return nil
}

// ResetCache forgets everything sent to this namespace.
func (e *Engine) ResetCache(ctx context.Context) error {
	if err := e.cache.Clear(ctx, e.cfg.Namespace); err != nil {
		return fmt.Errorf("clear deploy cache %s: %w", e.cfg.Namespace, err)
	}
	return nil
}

// Step processes one batch. When the batch empties the queue it finalizes
// the target and publishes the post-deploy event. A run prepared from an
// empty archive finalizes on its first Step. Any other Step that finds the
// queue already empty reports Done without finalizing again.
func (e *Engine) Step(ctx context.Context) (StepResult, error) {
	start := time.Now()
	remaining, err := e.remaining(ctx)
	if err != nil {
		return StepResult{}, err
	}
	if remaining == 0 {
		if !e.armed.CompareAndSwap(true, false) {
			return StepResult{Done: true}, nil
		}
		if err := e.finalize(ctx); err != nil {
			e.armed.Store(true)
			return StepResult{}, err
		}
		return StepResult{Done: true, Finalized: true}, nil
	}

	items, err := e.queue.Batch(ctx, min(e.cfg.BatchSize, remaining))
	if err != nil {
		return StepResult{}, fmt.Errorf("read deploy batch: %w", err)
	}

	var res StepResult
	var pending []File
	for _, item := range items {
		res.Processed++
		file, ok, err := e.load(ctx, item)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Dropped++
			metrics.ObserveDeployFile(e.target.Name(), "dropped")
			if err := e.queue.Remove(ctx, item.LocalPath); err != nil {
				return res, fmt.Errorf("remove dropped %s: %w", item.LocalPath, err)
			}
			continue
		}

		pathHash, err := e.hasher.Hash([]byte(item.RemotePath))
		if err != nil {
			return res, fmt.Errorf("hash path %s: %w", item.RemotePath, err)
		}
		cached, found, err := e.cache.Get(ctx, pathHash, e.cfg.Namespace)
		if err != nil {
			return res, fmt.Errorf("read deploy cache: %w", err)
		}
		if found && cached.ContentHash == file.Hash {
			res.Skipped++
			metrics.ObserveDeployFile(e.target.Name(), "skipped")
			if err := e.queue.Remove(ctx, item.LocalPath); err != nil {
				return res, fmt.Errorf("remove cached %s: %w", item.LocalPath, err)
			}
			continue
		}
		pending = append(pending, file)
	}

	if len(pending) > 0 {
		if err := e.target.UploadBatch(ctx, pending); err != nil {
			e.logger.Error("upload batch failed",
				zap.Int("files", len(pending)),
				zap.String("first", pending[0].RemotePath),
				zap.Error(err),
			)
			return res, fmt.Errorf("upload batch: %w", err)
		}
		for _, f := range pending {
			if err := e.commit(ctx, f); err != nil {
				return res, err
			}
			res.Uploaded++
			metrics.ObserveDeployFile(e.target.Name(), "uploaded")
		}
	}
	metrics.ObserveBatch("deploy", time.Since(start))

	res.Remaining, err = e.remaining(ctx)
	if err != nil {
		return res, err
	}
	e.logger.Info("deploy batch finished",
		zap.Int("processed", res.Processed),
		zap.Int("uploaded", res.Uploaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("dropped", res.Dropped),
		zap.Int("remaining", res.Remaining),
	)

	if res.Remaining > 0 {
		if err := e.clock.Sleep(ctx, e.cfg.Delay); err != nil {
			return res, fmt.Errorf("deploy delay: %w", err)
		}
		return res, nil
	}
	e.armed.Store(false)
	if err := e.finalize(ctx); err != nil {
		e.armed.Store(true)
		return res, err
	}
	res.Done = true
	res.Finalized = true
	return res, nil
}

func (e *Engine) remaining(ctx context.Context) (int, error) {
	n, err := e.queue.Remaining(ctx)
	if err != nil {
		return 0, fmt.Errorf("count deploy queue: %w", err)
	}
	if n < 0 {
		e.logger.Error("deploy queue reported negative size", zap.Int("remaining", n))
		return 0, fmt.Errorf("%w: remaining=%d", ErrQueueCorrupt, n)
	}
	return n, nil
}

// load reads an item. Unreadable and empty files report ok=false.
func (e *Engine) load(_ context.Context, item Item) (File, bool, error) {
	body, err := os.ReadFile(item.LocalPath)
	if err != nil {
		e.logger.Warn("dropping unreadable file", zap.String("path", item.LocalPath), zap.Error(err))
		return File{}, false, nil
	}
	if len(body) == 0 {
		e.logger.Warn("dropping empty file", zap.String("path", item.LocalPath))
		return File{}, false, nil
	}
	hash, err := e.hasher.Hash(body)
	if err != nil {
		return File{}, false, fmt.Errorf("hash %s: %w", item.LocalPath, err)
	}
	return File{Item: item, Body: body, Hash: hash}, true, nil
}

func (e *Engine) commit(ctx context.Context, f File) error {
	pathHash, err := e.hasher.Hash([]byte(f.RemotePath))
	if err != nil {
		return fmt.Errorf("hash path %s: %w", f.RemotePath, err)
	}
	entry := CacheEntry{
		PathHash:    pathHash,
		LocalPath:   f.RemotePath,
		ContentHash: f.Hash,
		Namespace:   e.cfg.Namespace,
	}
	if err := e.cache.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("update deploy cache for %s: %w", f.RemotePath, err)
	}
	if err := e.queue.Remove(ctx, f.LocalPath); err != nil {
		return fmt.Errorf("remove deployed %s: %w", f.LocalPath, err)
	}
	return nil
}

func (e *Engine) finalize(ctx context.Context) error {
	a, err := e.archives.Current()
	if err != nil {
		return fmt.Errorf("resolve archive for finalize: %w", err)
	}
	if err := e.target.Finalize(ctx, a); err != nil {
		e.logger.Error("finalize failed", zap.String("archive", a.Path), zap.Error(err))
		return fmt.Errorf("finalize %s: %w", e.target.Name(), err)
	}
	e.logger.Info("deployment finished", zap.String("archive", a.Name))

	if e.publisher == nil {
		return nil
	}
	event := Event{
		Provider:   e.target.Name(),
		Namespace:  e.cfg.Namespace,
		Archive:    a.Name,
		Path:       a.Path,
		FinishedAt: e.clock.Now(),
	}
	if e.ids != nil {
		if event.ID, err = e.ids.NewID(); err != nil {
			return fmt.Errorf("event id: %w", err)
		}
	}
	if _, err := e.publisher.Publish(ctx, EventDeployFinished, event); err != nil {
		// Fire and forget.
		e.logger.Warn("post-deploy event not published", zap.Error(err))
	}
	return nil
}

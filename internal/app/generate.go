package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/archive"
	"github.com/JakeFAU/static-mirror/internal/config"
	"github.com/JakeFAU/static-mirror/internal/crawler"
	"github.com/JakeFAU/static-mirror/internal/telemetry"
	"github.com/JakeFAU/static-mirror/internal/worker"
)

// StartGenerate creates a fresh archive and seeds the crawl.
func (a *App) StartGenerate(ctx context.Context) (archive.Archive, error) {
	arc, err := a.archives.Create()
	if err != nil {
		return archive.Archive{}, err
	}
	if err := a.crawler.Prepare(ctx, a.cfg.Site.Seeds); err != nil {
		return archive.Archive{}, err
	}
	a.logger.Info("generate started", zap.String("archive", arc.Name))
	return arc, nil
}

// GenerateStep crawls one batch. The step that reports Done also writes the
// platform files, the optional zip, and prunes old archives.
func (a *App) GenerateStep(ctx context.Context) (crawler.StepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "generate.step")
	defer span.End()

	res, err := a.crawler.Step(ctx)
	if err == nil && res.Done {
		err = a.finishGenerate()
	}
	span.SetAttributes(
		attribute.String("crawl.phase", string(res.Phase)),
		attribute.Int("crawl.processed", res.Processed),
		attribute.Int("crawl.remaining", res.Remaining),
		attribute.Bool("crawl.done", res.Done),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate step failed")
		return res, err
	}
	return res, nil
}

// Generate runs a whole crawl: start, then steps until done or ctx ends.
func (a *App) Generate(ctx context.Context, onStep func(crawler.StepResult)) (worker.Summary[crawler.StepResult], error) {
	if _, err := a.StartGenerate(ctx); err != nil {
		return worker.Summary[crawler.StepResult]{}, err
	}
	return worker.Drive(ctx, func(ctx context.Context) (crawler.StepResult, bool, error) {
		res, err := a.GenerateStep(ctx)
		return res, res.Done, err
	}, worker.Options[crawler.StepResult]{Name: "generate", OnStep: onStep, Logger: a.logger})
}

func (a *App) finishGenerate() error {
	arc, err := a.archives.Current()
	if err != nil {
		return err
	}
	if err := archive.WritePlatformFiles(arc, a.cfg.Deploy.Redirects, a.cfg.Deploy.Headers); err != nil {
		return fmt.Errorf("write platform files: %w", err)
	}
	if a.cfg.Deploy.Method == config.MethodGitLab {
		if err := archive.WriteGitLabCI(arc, a.cfg.Deploy.GitLab.Branch); err != nil {
			return fmt.Errorf("write gitlab ci: %w", err)
		}
	}
	if a.cfg.Archive.Zip {
		path, err := archive.Zip(arc)
		if err != nil {
			return err
		}
		a.logger.Info("archive zipped", zap.String("path", path))
	}
	if a.cfg.Archive.Retain > 0 {
		if _, err := a.archives.Cleanup(a.cfg.Archive.Retain); err != nil {
			return err
		}
	}
	a.logger.Info("generate finished", zap.String("archive", arc.Name))
	return nil
}

package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/deployer"
	"github.com/JakeFAU/static-mirror/internal/telemetry"
	"github.com/JakeFAU/static-mirror/internal/worker"
)

// StartDeploy queues every file of the current archive.
func (a *App) StartDeploy(ctx context.Context) (int, error) {
	arc, err := a.archives.Current()
	if err != nil {
		return 0, err
	}
	return a.engine.Prepare(ctx, arc)
}

// DeployStep uploads one batch.
func (a *App) DeployStep(ctx context.Context) (deployer.StepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "deploy.step")
	defer span.End()

	res, err := a.engine.Step(ctx)
	span.SetAttributes(
		attribute.String("deploy.method", a.cfg.Deploy.Method),
		attribute.Int("deploy.uploaded", res.Uploaded),
		attribute.Int("deploy.skipped", res.Skipped),
		attribute.Int("deploy.remaining", res.Remaining),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deploy step failed")
	}
	return res, err
}

// Deploy publishes the current archive, optionally forgetting the cache first.
func (a *App) Deploy(ctx context.Context, resetCache bool, onStep func(deployer.StepResult)) (worker.Summary[deployer.StepResult], error) {
	if resetCache {
		if err := a.engine.ResetCache(ctx); err != nil {
			return worker.Summary[deployer.StepResult]{}, err
		}
		a.logger.Info("deploy cache reset", zap.String("namespace", a.cfg.Deploy.CacheNamespace()))
	}
	if _, err := a.StartDeploy(ctx); err != nil {
		return worker.Summary[deployer.StepResult]{}, err
	}
	return worker.Drive(ctx, func(ctx context.Context) (deployer.StepResult, bool, error) {
		res, err := a.DeployStep(ctx)
		return res, res.Done, err
	}, worker.Options[deployer.StepResult]{Name: "deploy", OnStep: onStep, Logger: a.logger})
}

// TestDeploy checks the target's credentials and reachability.
func (a *App) TestDeploy(ctx context.Context) error {
	return a.engine.TestConnectivity(ctx)
}

// ResetCache forgets what was sent to the configured namespace.
func (a *App) ResetCache(ctx context.Context) error {
	return a.engine.ResetCache(ctx)
}

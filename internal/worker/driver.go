// Package worker drives batch step functions until they report completion.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/logging"
)

// StepFunc runs one batch and reports whether the work is finished.
type StepFunc[R any] func(ctx context.Context) (R, bool, error)

// Options tunes a Drive loop.
type Options[R any] struct {
	// Name labels log lines.
	Name string
	// MaxSteps stops the loop after this many batches when > 0.
	MaxSteps int
	// OnStep observes each batch result.
	OnStep func(R)
	Logger *zap.Logger
}

// Summary reports what a Drive loop did.
type Summary[R any] struct {
	Steps int
	Done  bool
	Last  R
}

// Drive calls step until it reports done, it fails, ctx is canceled between
// batches, or MaxSteps is reached.
func Drive[R any](ctx context.Context, step StepFunc[R], opts Options[R]) (Summary[R], error) {
	logger := logging.Component(opts.Logger, "worker")
	if opts.Name != "" {
		logger = logger.With(zap.String("run", opts.Name))
	}
	var summary Summary[R]
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("run canceled between batches", zap.Int("steps", summary.Steps))
			return summary, fmt.Errorf("%s canceled: %w", opts.Name, err)
		}
		res, done, err := step(ctx)
		if err != nil {
			logger.Error("batch failed", zap.Int("step", summary.Steps+1), zap.Error(err))
			return summary, err
		}
		summary.Steps++
		summary.Last = res
		if opts.OnStep != nil {
			opts.OnStep(res)
		}
		if done {
			summary.Done = true
			logger.Info("run complete", zap.Int("steps", summary.Steps))
			return summary, nil
		}
		if opts.MaxSteps > 0 && summary.Steps >= opts.MaxSteps {
			logger.Info("step limit reached", zap.Int("steps", summary.Steps))
			return summary, nil
		}
	}
}

// Package cmd defines the CLI commands for the static-mirror executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/app"
	"github.com/JakeFAU/static-mirror/internal/config"
	"github.com/JakeFAU/static-mirror/internal/logging"
	"github.com/JakeFAU/static-mirror/internal/telemetry"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to inject options.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

type rootFlags struct {
	configPath string
	overrides  []string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	var (
		logger   *zap.Logger
		instance *app.App
		shutdown telemetry.Shutdown
	)
	cmd := &cobra.Command{
		Use:   "static-mirror",
		Short: "Crawl a dynamic site into a static archive and publish it.",
		Long: `static-mirror crawls a live site, rewrites every internal link for the
destination host, stores the result in a timestamped archive, and deploys
that archive to a folder, zip, object store, git host, CDN or FTP server.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			overrides, err := parseOverrides(flags.overrides)
			if err != nil {
				return err
			}
			cfg, err := config.Load(flags.configPath, overrides)
			if err != nil {
				return err
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			if _, shutdown, err = telemetry.InitTracerProvider(cmd.Context(), cfg.Tracing); err != nil {
				return err
			}
			instance, err = newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			if instance != nil {
				instance.Close()
			}
			if shutdown != nil {
				if err := shutdown(context.Background()); err != nil && logger != nil {
					logger.Warn("trace shutdown failed", zap.Error(err))
				}
			}
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringArrayVar(&flags.overrides, "set", nil, "override a config key, e.g. --set deploy.method=s3")

	cmd.AddCommand(
		newGenerateCmd(),
		newDeployCmd(),
		newTestDeployCmd(),
		newStatusCmd(),
		newCleanupCmd(),
		newResetCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signalContext()
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	instance, ok := ctx.Value(appKey).(*app.App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}

func parseOverrides(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

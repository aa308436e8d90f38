// Package cmd defines the archiveocr CLI. Each subcommand runs one pipeline
// stage to completion and exits.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/app"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/config"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/logging"
)

const stageAnnotation = "stage"

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// loadConfig and newApp are variables so tests can substitute them.
var (
	loadConfig = func() (config.Config, error) { return config.Load("") }
	newApp     = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, logger)
	}
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archiveocr",
		Short: "Crawl, transcribe and publish the archive release PDFs.",
		Long: `archiveocr ingests the archive's released PDF documents. Every stage
reads its worklist from the catalog, so stages can be re-run at any time and
resume where the previous run stopped.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			stage := config.Stage(cmd.Annotations[stageAnnotation])
			if stage == "" {
				return nil
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateFor(stage); err != nil {
				return fmt.Errorf("invalid configuration for %s:\n%w", stage, err)
			}
			logger, err := logging.NewWithOptions(logging.Options{
				Development: cfg.Logging.Development,
				File:        cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger.With(zap.String("stage", string(stage))))
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			appInstance.StartMetrics(cmd.Context())
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.AddCommand(
		newCrawlCmd(),
		newProcessCmd(),
		newAssembleCmd(),
		newPublishCmd(),
		newRepairCmd(),
	)
	return cmd
}

func stageCmd(stage config.Stage, short, long string, run func(context.Context, *app.App) error) *cobra.Command {
	return &cobra.Command{
		Use:         string(stage),
		Short:       short,
		Long:        long,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{stageAnnotation: string(stage)},
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			err = run(cmd.Context(), appInstance)
			if errors.Is(err, context.Canceled) {
				appInstance.Logger().Warn("stage interrupted", zap.Error(err))
				return nil
			}
			return err
		},
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI until the stage finishes or SIGINT/SIGTERM arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/app"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/config"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/processor"
)

func newProcessCmd() *cobra.Command {
	return stageCmd(config.StageProcess,
		"Render, transcribe and record every missing page",
		`Walks the catalog one document at a time. Pages that are not recorded yet
are rendered from the downloaded PDF, transcribed with Gemini and stored with
their page image. Pages that fail transcription are stored as error pages.`,
		runProcess,
	)
}

func runProcess(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	ocr, err := a.Transcriber(ctx)
	if err != nil {
		return err
	}
	images, err := a.ImageStore(ctx)
	if err != nil {
		return fmt.Errorf("init image store: %w", err)
	}
	proc, err := processor.New(processor.Config{
		Workers:     cfg.Process.Workers,
		DownloadDir: cfg.Fetch.DownloadDir,
		OCRQuality:  cfg.Images.StartQuality,
	}, a.Catalog(), a.Renderer(), ocr, images, a.Clock(), a.Logger())
	if err != nil {
		return fmt.Errorf("init processor: %w", err)
	}
	if _, err := proc.Run(ctx); err != nil {
		return fmt.Errorf("process: %w", err)
	}
	return nil
}

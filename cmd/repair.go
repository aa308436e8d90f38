package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/app"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/config"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/repair"
)

func newRepairCmd() *cobra.Command {
	return stageCmd(config.StageRepair,
		"Reconcile catalog records left inconsistent by earlier runs",
		`Rewrites local document links to their public URL, fills missing numbers
and page counts, reports page count mismatches and, when enabled, back-fills
page images and re-transcribes error pages with Tesseract.`,
		runRepair,
	)
}

func runRepair(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	var (
		images   archive.ImageStore
		fallback archive.Transcriber
		err      error
	)
	if cfg.Repair.BackfillImages {
		if images, err = a.ImageStore(ctx); err != nil {
			return fmt.Errorf("init image store: %w", err)
		}
	}
	if cfg.Repair.ReOCRErrors {
		fallback = a.FallbackTranscriber()
	}
	job, err := repair.New(repair.Config{
		DownloadDir:    cfg.Fetch.DownloadDir,
		CanonicalBase:  cfg.Repair.CanonicalBase,
		BackfillImages: cfg.Repair.BackfillImages,
		ReOCRErrors:    cfg.Repair.ReOCRErrors,
		OCRQuality:     cfg.Images.StartQuality,
	}, a.Catalog(), a.Renderer(), images, fallback, a.Clock(), a.Logger())
	if err != nil {
		return fmt.Errorf("init repair: %w", err)
	}
	if _, err := job.Run(ctx); err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/app"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/assembler"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/config"
)

func newAssembleCmd() *cobra.Command {
	return stageCmd(config.StageAssemble,
		"Write one transcript per fully processed document",
		`Concatenates the valid pages of every document whose stored page count
matches its declared count into <TRANSCRIPT_DIR>/<number>.txt. Existing
transcripts are left untouched.`,
		runAssemble,
	)
}

func runAssemble(ctx context.Context, a *app.App) error {
	notifier, err := a.Notifier(ctx)
	if err != nil {
		return err
	}
	asm, err := assembler.New(assembler.Config{
		TranscriptDir: a.Config().Assemble.TranscriptDir,
	}, a.Catalog(), notifier, a.Clock(), a.Logger())
	if err != nil {
		return fmt.Errorf("init assembler: %w", err)
	}
	if _, err := asm.Run(ctx); err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/app"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/config"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/indexer/anythingllm"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/publisher"
)

func newPublishCmd() *cobra.Command {
	return stageCmd(config.StagePublish,
		"Push unpublished transcripts to the knowledge base",
		`Uploads the transcript of every unpublished document to AnythingLLM,
embeds it into the configured workspace and marks the document published.`,
		runPublish,
	)
}

func runPublish(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	index, err := anythingllm.New(anythingllm.Config{
		BaseURL: cfg.Index.BaseURL,
		Token:   cfg.Index.Token,
		Timeout: cfg.Index.Timeout,
	})
	if err != nil {
		return fmt.Errorf("init indexer: %w", err)
	}
	notifier, err := a.Notifier(ctx)
	if err != nil {
		return err
	}
	pub, err := publisher.New(publisher.Config{
		TranscriptDir: cfg.Assemble.TranscriptDir,
		Workspace:     cfg.Index.Workspace,
	}, a.Catalog(), index, notifier, a.Clock(), a.Logger())
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	if _, err := pub.Run(ctx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

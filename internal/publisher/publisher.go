// Package publisher hands assembled transcripts to the indexing service and
// marks each document published exactly once.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
)

// Outcomes of publishing one document, also used as metric labels.
const (
	OutcomePublished    = "published"
	OutcomeNoTranscript = "no_transcript"
	OutcomeFailed       = "failed"
)

// Config controls the publisher.
type Config struct {
	TranscriptDir string
	Workspace     string
}

// Stats totals a publisher run.
type Stats struct {
	Pending      int
	Published    int
	NoTranscript int
	Failed       int
}

// Publisher pushes unpublished transcripts to the indexer.
type Publisher struct {
	cfg      Config
	catalog  archive.Catalog
	indexer  archive.Indexer
	notifier archive.Notifier
	clock    archive.Clock
	logger   *zap.Logger
}

// New builds a Publisher. notifier may be nil.
func New(
	cfg Config,
	catalog archive.Catalog,
	indexer archive.Indexer,
	notifier archive.Notifier,
	clock archive.Clock,
	logger *zap.Logger,
) (*Publisher, error) {
	switch {
	case catalog == nil:
		return nil, errors.New("catalog is required")
	case indexer == nil:
		return nil, errors.New("indexer is required")
	case clock == nil:
		return nil, errors.New("clock is required")
	case cfg.TranscriptDir == "":
		return nil, errors.New("transcript dir is required")
	case cfg.Workspace == "":
		return nil, errors.New("workspace is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		cfg:      cfg,
		catalog:  catalog,
		indexer:  indexer,
		notifier: notifier,
		clock:    clock,
		logger:   logger.Named("publisher"),
	}, nil
}

// Run publishes every document that is not marked published yet.
func (p *Publisher) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	docs, err := p.catalog.ListDocuments(ctx, archive.DocumentFilter{Unpublished: true})
	if err != nil {
		return stats, fmt.Errorf("list unpublished documents: %w", err)
	}
	stats.Pending = len(docs)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("publisher canceled: %w", err)
		}
		outcome, err := p.Publish(ctx, doc)
		metrics.ObservePublish(outcome)
		switch outcome {
		case OutcomePublished:
			stats.Published++
		case OutcomeNoTranscript:
			stats.NoTranscript++
		default:
			stats.Failed++
			p.logger.Error("publish failed",
				zap.String("document", doc.Number),
				zap.String("class", archive.Classify(err)),
				zap.Error(err),
			)
		}
	}
	p.logger.Info("publishing finished",
		zap.Int("pending", stats.Pending),
		zap.Int("published", stats.Published),
		zap.Int("no_transcript", stats.NoTranscript),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// Publish uploads the transcript of doc, embeds it into the workspace and only
// then marks the document published. Any failure leaves it unmarked.
func (p *Publisher) Publish(ctx context.Context, doc archive.Document) (string, error) {
	if doc.IsPublished() {
		return OutcomePublished, nil
	}
	name := doc.Number
	if name == "" {
		name = archive.DeriveDocumentNumber(doc.URL)
	}
	logger := p.logger.With(zap.String("document", name))

	path := archive.TranscriptPath(p.cfg.TranscriptDir, name)
	text, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("no transcript yet", zap.String("path", path))
		return OutcomeNoTranscript, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("read transcript: %w", err)
	}

	location, err := p.indexer.UploadDocument(ctx, name, text)
	if err != nil {
		return OutcomeFailed, err
	}
	if err := p.indexer.UpdateEmbeddings(ctx, p.cfg.Workspace, []string{location}, nil); err != nil {
		return OutcomeFailed, err
	}
	if err := p.catalog.UpdateDocument(ctx, doc.ID, archive.DocumentUpdate{Published: archive.Ptr(true)}); err != nil {
		return OutcomeFailed, fmt.Errorf("mark published: %w", err)
	}
	logger.Info("document published", zap.String("location", location))

	if p.notifier != nil {
		event := archive.Event{
			Type:       archive.EventDocumentPublished,
			DocumentID: doc.ID,
			Number:     name,
			Location:   location,
			At:         p.clock.Now(),
		}
		if err := p.notifier.Notify(ctx, event); err != nil {
			logger.Warn("publish notification failed", zap.Error(err))
		}
	}
	return OutcomePublished, nil
}

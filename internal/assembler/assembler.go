// Package assembler concatenates the recorded pages of each complete
// document into a transcript file.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
)

// Outcomes of assembling one document, also used as metric labels.
const (
	OutcomeWritten  = "written"
	OutcomeExisting = "existing"
	OutcomeMismatch = "count_mismatch"
	OutcomeEmpty    = "no_valid_pages"
	OutcomeFailed   = "failed"
)

// Config controls the assembler.
type Config struct {
	TranscriptDir string
}

// Stats totals an assembler run.
type Stats struct {
	Documents int
	Written   int
	Existing  int
	Mismatch  int
	Empty     int
	Failed    int
}

// Assembler writes one transcript per document.
type Assembler struct {
	cfg      Config
	catalog  archive.Catalog
	notifier archive.Notifier
	clock    archive.Clock
	logger   *zap.Logger
}

// New builds an Assembler. notifier may be nil.
func New(cfg Config, catalog archive.Catalog, notifier archive.Notifier, clock archive.Clock, logger *zap.Logger) (*Assembler, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if cfg.TranscriptDir == "" {
		return nil, errors.New("transcript dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		cfg:      cfg,
		catalog:  catalog,
		notifier: notifier,
		clock:    clock,
		logger:   logger.Named("assembler"),
	}, nil
}

// Run assembles every document that has no transcript yet.
func (a *Assembler) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := os.MkdirAll(a.cfg.TranscriptDir, 0o755); err != nil {
		return stats, fmt.Errorf("create transcript dir: %w", err)
	}
	docs, err := a.catalog.ListDocuments(ctx, archive.DocumentFilter{})
	if err != nil {
		return stats, fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("assembler canceled: %w", err)
		}
		stats.Documents++
		outcome, err := a.Assemble(ctx, doc)
		metrics.ObserveTranscript(outcome)
		switch outcome {
		case OutcomeWritten:
			stats.Written++
		case OutcomeExisting:
			stats.Existing++
		case OutcomeMismatch:
			stats.Mismatch++
		case OutcomeEmpty:
			stats.Empty++
		default:
			stats.Failed++
			a.logger.Error("assembly failed", zap.String("document", transcriptName(doc)), zap.Error(err))
		}
	}
	a.logger.Info("assembly finished",
		zap.Int("documents", stats.Documents),
		zap.Int("written", stats.Written),
		zap.Int("existing", stats.Existing),
		zap.Int("count_mismatch", stats.Mismatch),
		zap.Int("no_valid_pages", stats.Empty),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// Assemble writes the transcript of doc unless it already exists or the
// document is incomplete.
func (a *Assembler) Assemble(ctx context.Context, doc archive.Document) (string, error) {
	name := transcriptName(doc)
	path := archive.TranscriptPath(a.cfg.TranscriptDir, name)
	logger := a.logger.With(zap.String("document", name))

	if _, err := os.Stat(path); err == nil {
		logger.Debug("transcript already exists")
		return OutcomeExisting, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return OutcomeFailed, fmt.Errorf("stat %s: %w", path, err)
	}

	all, err := a.catalog.FindPages(ctx, doc.ID, archive.PageFilter{})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load pages: %w", err)
	}
	live := len(all)
	declared, ok := doc.DeclaredPages()
	switch {
	case !ok:
		if err := a.catalog.UpdateDocument(ctx, doc.ID, archive.DocumentUpdate{PageCount: archive.Ptr(live)}); err != nil {
			return OutcomeFailed, fmt.Errorf("store page count: %w", err)
		}
		logger.Info("page count filled from stored pages", zap.Int("pages", live))
	case declared != live:
		logger.Warn("skipping incomplete document",
			zap.String("class", archive.ClassConsistency),
			zap.Int("declared", declared),
			zap.Int("stored", live),
		)
		return OutcomeMismatch, fmt.Errorf("%d of %d pages: %w", live, declared, archive.ErrCountMismatch)
	}

	valid, err := a.catalog.FindPages(ctx, doc.ID, archive.PageFilter{OnlyValid: true})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load valid pages: %w", err)
	}
	if len(valid) == 0 {
		logger.Warn("no valid pages")
		return OutcomeEmpty, nil
	}

	if err := writeFileAtomic(path, []byte(Concatenate(valid))); err != nil {
		return OutcomeFailed, err
	}
	logger.Info("transcript written", zap.Int("pages", len(valid)), zap.String("path", path))
	a.notify(ctx, doc, name, path)
	return OutcomeWritten, nil
}

func (a *Assembler) notify(ctx context.Context, doc archive.Document, name, path string) {
	if a.notifier == nil {
		return
	}
	event := archive.Event{
		Type:       archive.EventTranscriptReady,
		DocumentID: doc.ID,
		Number:     name,
		Location:   path,
		At:         a.clock.Now(),
	}
	if err := a.notifier.Notify(ctx, event); err != nil {
		a.logger.Warn("transcript notification failed", zap.String("document", name), zap.Error(err))
	}
}

// transcriptName is the document number, or the document ID when no number is known.
func transcriptName(doc archive.Document) string {
	if doc.Number != "" {
		return doc.Number
	}
	if n := archive.DeriveDocumentNumber(doc.URL); n != "" {
		return n
	}
	return doc.ID
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".transcript-*")
	if err != nil {
		return fmt.Errorf("create temp transcript: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close transcript: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename transcript into %s: %w", path, err)
	}
	return nil
}

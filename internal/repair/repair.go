// Package repair reconciles catalog records left inconsistent by earlier runs.
//
// Every step is idempotent: a second Run over a repaired catalog changes nothing.
package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/imagestore"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/render"
)

const ocrMIME = "image/jpeg"

// Config selects the optional repair steps.
type Config struct {
	DownloadDir   string
	CanonicalBase string
	// BackfillImages re-renders and uploads pages recorded without an image.
	BackfillImages bool
	// ReOCRErrors re-transcribes error pages with the fallback engine.
	ReOCRErrors bool
	// OCRQuality is the JPEG quality of the page sent to the fallback engine.
	OCRQuality int
}

// Mismatch is a document whose declared page count disagrees with the catalog.
type Mismatch struct {
	DocumentID string
	Number     string
	Declared   int
	Live       int
}

// Report summarizes one repair run.
type Report struct {
	LinksCanonicalized int
	NumbersFilled      int
	NumberConflicts    int
	PageCountsFilled   int
	SourcesMissing     int
	Mismatches         []Mismatch
	ImagesBackfilled   int
	ImagesFailed       int
	PagesReOCRed       int
	ReOCRFailed        int
}

// Job runs the repair steps against a catalog.
type Job struct {
	cfg        Config
	catalog    archive.Catalog
	renderer   *render.Renderer
	images     archive.ImageStore
	ocr        archive.Transcriber
	clock      archive.Clock
	logger     *zap.Logger
	countPages func(path string) (int, error)
}

// New builds a Job. renderer and images are required only when BackfillImages
// is set; renderer and ocr only when ReOCRErrors is set.
func New(
	cfg Config,
	catalog archive.Catalog,
	renderer *render.Renderer,
	images archive.ImageStore,
	ocr archive.Transcriber,
	clock archive.Clock,
	logger *zap.Logger,
) (*Job, error) {
	switch {
	case catalog == nil:
		return nil, errors.New("catalog is required")
	case clock == nil:
		return nil, errors.New("clock is required")
	case cfg.DownloadDir == "":
		return nil, errors.New("download dir is required")
	case cfg.BackfillImages && (renderer == nil || images == nil):
		return nil, errors.New("image backfill needs a renderer and an image store")
	case cfg.ReOCRErrors && (renderer == nil || ocr == nil):
		return nil, errors.New("error re-ocr needs a renderer and a transcriber")
	}
	if cfg.CanonicalBase == "" {
		cfg.CanonicalBase = archive.DefaultCanonicalBase
	}
	if cfg.OCRQuality <= 0 || cfg.OCRQuality > 100 {
		cfg.OCRQuality = imagestore.DefaultStartQuality
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		cfg:        cfg,
		catalog:    catalog,
		renderer:   renderer,
		images:     images,
		ocr:        ocr,
		clock:      clock,
		logger:     logger.Named("repair"),
		countPages: render.CountPages,
	}, nil
}

type step struct {
	name string
	fn   func(context.Context, *Report) error
}

// Run performs every enabled step in order. Per-record failures are logged
// and counted; catalog listing failures and cancellation stop the run.
func (j *Job) Run(ctx context.Context) (Report, error) {
	var report Report
	steps := []step{
		{"canonical_links", j.canonicalizeLinks},
		{"document_numbers", j.fillNumbers},
		{"page_counts", j.fillPageCounts},
		{"count_mismatches", j.reportMismatches},
	}
	if j.cfg.BackfillImages {
		steps = append(steps, step{"image_backfill", j.backfillImages})
	}
	if j.cfg.ReOCRErrors {
		steps = append(steps, step{"error_reocr", j.reOCRErrors})
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("repair canceled: %w", err)
		}
		if err := s.fn(ctx, &report); err != nil {
			return report, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	j.logger.Info("repair finished",
		zap.Int("links_canonicalized", report.LinksCanonicalized),
		zap.Int("numbers_filled", report.NumbersFilled),
		zap.Int("page_counts_filled", report.PageCountsFilled),
		zap.Int("mismatches", len(report.Mismatches)),
		zap.Int("images_backfilled", report.ImagesBackfilled),
		zap.Int("pages_reocred", report.PagesReOCRed),
	)
	return report, nil
}

func (j *Job) canonicalizeLinks(ctx context.Context, report *Report) error {
	docs, err := j.catalog.ListDocuments(ctx, archive.DocumentFilter{URLPrefix: archive.LocalLinkPrefix})
	if err != nil {
		return fmt.Errorf("list local links: %w", err)
	}
	for _, doc := range docs {
		if !archive.IsLocalLink(doc.URL) {
			continue
		}
		canonical := archive.DeriveCanonicalURL(j.cfg.CanonicalBase, path.Base(doc.URL))
		if err := j.catalog.UpdateDocument(ctx, doc.ID, archive.DocumentUpdate{URL: &canonical}); err != nil {
			j.logger.Warn("canonical link not stored", zap.String("document", doc.ID), zap.Error(err))
			continue
		}
		report.LinksCanonicalized++
		j.logger.Debug("link canonicalized", zap.String("from", doc.URL), zap.String("to", canonical))
	}
	return nil
}

func (j *Job) fillNumbers(ctx context.Context, report *Report) error {
	docs, err := j.catalog.ListDocuments(ctx, archive.DocumentFilter{MissingNumber: true})
	if err != nil {
		return fmt.Errorf("list documents without number: %w", err)
	}
	for _, doc := range docs {
		number := archive.DeriveDocumentNumber(doc.URL)
		if number == "" {
			j.logger.Warn("no number derivable", zap.String("document", doc.ID), zap.String("url", doc.URL))
			continue
		}
		if other, err := j.catalog.FindDocumentByNumber(ctx, number); err == nil && other.ID != doc.ID {
			report.NumberConflicts++
			j.logger.Warn("number already taken",
				zap.String("document", doc.ID),
				zap.String("number", number),
				zap.String("holder", other.ID),
			)
			continue
		}
		if err := j.catalog.UpdateDocument(ctx, doc.ID, archive.DocumentUpdate{Number: &number}); err != nil {
			if errors.Is(err, archive.ErrDuplicate) {
				report.NumberConflicts++
			}
			j.logger.Warn("number not stored", zap.String("document", doc.ID), zap.Error(err))
			continue
		}
		report.NumbersFilled++
	}
	return nil
}

func (j *Job) fillPageCounts(ctx context.Context, report *Report) error {
	docs, err := j.catalog.ListDocuments(ctx, archive.DocumentFilter{MissingPageCount: true})
	if err != nil {
		return fmt.Errorf("list documents without page count: %w", err)
	}
	for _, doc := range docs {
		number := documentNumber(doc)
		if number == "" {
			continue
		}
		n, err := j.countPages(archive.SourcePath(j.cfg.DownloadDir, number))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				report.SourcesMissing++
				j.logger.Debug("source not downloaded", zap.String("document", number))
				continue
			}
			j.logger.Warn("page count unreadable",
				zap.String("document", number),
				zap.String("class", archive.Classify(err)),
				zap.Error(err),
			)
			continue
		}
		if err := j.catalog.UpdateDocument(ctx, doc.ID, archive.DocumentUpdate{PageCount: &n}); err != nil {
			j.logger.Warn("page count not stored", zap.String("document", number), zap.Error(err))
			continue
		}
		report.PageCountsFilled++
	}
	return nil
}

func (j *Job) reportMismatches(ctx context.Context, report *Report) error {
	docs, err := j.catalog.ListDocuments(ctx, archive.DocumentFilter{})
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		declared, ok := doc.DeclaredPages()
		if !ok {
			continue
		}
		pages, err := j.catalog.FindPages(ctx, doc.ID, archive.PageFilter{})
		if err != nil {
			return fmt.Errorf("load pages of %s: %w", doc.ID, err)
		}
		if len(pages) == declared {
			continue
		}
		m := Mismatch{DocumentID: doc.ID, Number: documentNumber(doc), Declared: declared, Live: len(pages)}
		report.Mismatches = append(report.Mismatches, m)
		j.logger.Warn("page count mismatch",
			zap.String("document", m.Number),
			zap.Int("declared", m.Declared),
			zap.Int("live", m.Live),
			zap.String("class", archive.ClassConsistency),
		)
	}
	return nil
}

// pageFix repairs one page from an open source and reports whether it changed.
type pageFix func(ctx context.Context, number string, src *render.Source, page archive.Page) (bool, error)

func (j *Job) backfillImages(ctx context.Context, report *Report) error {
	return j.eachPage(ctx, archive.PageFilter{MissingImage: true, OnlyValid: true}, j.backfillImage,
		&report.ImagesBackfilled, &report.ImagesFailed)
}

func (j *Job) reOCRErrors(ctx context.Context, report *Report) error {
	return j.eachPage(ctx, archive.PageFilter{OnlyErrors: true}, j.reOCR,
		&report.PagesReOCRed, &report.ReOCRFailed)
}

// eachPage applies fix to every page matching filter whose source PDF is
// available locally. Sources are opened once per document.
func (j *Job) eachPage(ctx context.Context, filter archive.PageFilter, fix pageFix, fixed, failed *int) error {
	docs, err := j.catalog.ListDocuments(ctx, archive.DocumentFilter{})
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		pages, err := j.catalog.FindPages(ctx, doc.ID, filter)
		if err != nil {
			return fmt.Errorf("load pages of %s: %w", doc.ID, err)
		}
		if len(pages) == 0 {
			continue
		}
		number := documentNumber(doc)
		srcPath := archive.SourcePath(j.cfg.DownloadDir, number)
		if _, err := os.Stat(srcPath); err != nil {
			j.logger.Debug("source not available", zap.String("document", number), zap.Error(err))
			continue
		}
		src, err := j.renderer.Open(srcPath)
		if err != nil {
			*failed += len(pages)
			j.logger.Warn("open source", zap.String("document", number), zap.Error(err))
			continue
		}
		for _, page := range pages {
			changed, err := fix(ctx, number, src, page)
			switch {
			case err != nil:
				*failed++
				j.logger.Warn("page not repaired",
					zap.String("document", number),
					zap.Int("page", page.Number),
					zap.String("class", archive.Classify(err)),
					zap.Error(err),
				)
			case changed:
				*fixed++
			}
		}
		if err := src.Close(); err != nil {
			j.logger.Warn("close source", zap.String("document", number), zap.Error(err))
		}
	}
	return nil
}

func (j *Job) backfillImage(ctx context.Context, number string, src *render.Source, page archive.Page) (bool, error) {
	raster, err := src.Render(page.Number)
	if err != nil {
		return false, err
	}
	defer raster.Release()
	ref, err := j.images.Upload(ctx, raster.Image(), archive.ImageName(number, page.Number))
	if err != nil {
		return false, fmt.Errorf("upload image: %w", err)
	}
	if err := j.catalog.UpdatePage(ctx, page.ID, archive.PageUpdate{Image: ref, UpdatedAt: j.clock.Now()}); err != nil {
		return false, fmt.Errorf("store image reference: %w", err)
	}
	return true, nil
}

func (j *Job) reOCR(ctx context.Context, _ string, src *render.Source, page archive.Page) (bool, error) {
	raster, err := src.Render(page.Number)
	if err != nil {
		return false, err
	}
	defer raster.Release()
	data, err := imagestore.EncodeJPEG(raster.Image(), j.cfg.OCRQuality)
	if err != nil {
		return false, fmt.Errorf("encode page for ocr: %w", err)
	}
	text, err := j.ocr.Transcribe(ctx, data, ocrMIME)
	if err != nil {
		return false, err
	}
	if text == "" {
		return false, nil
	}
	update := archive.PageUpdate{Text: &text, Error: archive.Ptr(false), UpdatedAt: j.clock.Now()}
	if err := j.catalog.UpdatePage(ctx, page.ID, update); err != nil {
		return false, fmt.Errorf("store transcription: %w", err)
	}
	return true, nil
}

func documentNumber(doc archive.Document) string {
	if doc.Number != "" {
		return doc.Number
	}
	return archive.DeriveDocumentNumber(doc.URL)
}

// Package processor renders, transcribes and records the missing pages of
// every cataloged document.
package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/imagestore"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/render"
)

// DefaultWorkers is the number of pages of one document processed at once.
const DefaultWorkers = 10

const ocrMIME = "image/jpeg"

// Config controls the processor.
type Config struct {
	Workers     int
	DownloadDir string
	// OCRQuality is the JPEG quality of the page sent for transcription.
	// The OCR payload has no size ceiling; only stored images do.
	OCRQuality int
}

// encodedUploader is implemented by image stores that can reuse the bytes
// already encoded for OCR.
type encodedUploader interface {
	UploadEncoded(ctx context.Context, img image.Image, name string, data []byte, quality int) (*archive.ImageRef, error)
}

// Processor fills in missing pages. Documents are handled one at a time;
// the pages of a document are handled by a bounded pool.
type Processor struct {
	cfg        Config
	catalog    archive.Catalog
	renderer   *render.Renderer
	ocr        archive.Transcriber
	images     archive.ImageStore
	clock      archive.Clock
	logger     *zap.Logger
	countPages func(path string) (int, error)
}

// New builds a Processor.
func New(
	cfg Config,
	catalog archive.Catalog,
	renderer *render.Renderer,
	ocr archive.Transcriber,
	images archive.ImageStore,
	clock archive.Clock,
	logger *zap.Logger,
) (*Processor, error) {
	switch {
	case catalog == nil:
		return nil, errors.New("catalog is required")
	case renderer == nil:
		return nil, errors.New("renderer is required")
	case ocr == nil:
		return nil, errors.New("transcriber is required")
	case images == nil:
		return nil, errors.New("image store is required")
	case clock == nil:
		return nil, errors.New("clock is required")
	case cfg.DownloadDir == "":
		return nil, errors.New("download dir is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.OCRQuality <= 0 || cfg.OCRQuality > 100 {
		cfg.OCRQuality = imagestore.DefaultStartQuality
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:        cfg,
		catalog:    catalog,
		renderer:   renderer,
		ocr:        ocr,
		images:     images,
		clock:      clock,
		logger:     logger.Named("processor"),
		countPages: render.CountPages,
	}, nil
}

// Run processes every cataloged document. A failing document is logged and
// counted; only catalog listing failures and cancellation stop the run.
func (p *Processor) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	docs, err := p.catalog.ListDocuments(ctx, archive.DocumentFilter{})
	if err != nil {
		return stats, fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("processor canceled: %w", err)
		}
		stats.Documents++
		summary, err := p.ProcessDocument(ctx, doc)
		stats.PagesRecorded += summary.Recorded
		stats.PagesErrored += summary.ClassifiedError
		stats.PagesUnexpected += summary.Unexpected
		if err != nil {
			stats.Failed++
			p.logger.Error("document failed",
				zap.String("document", documentNumber(doc)),
				zap.String("class", archive.Classify(err)),
				zap.Error(err),
			)
			continue
		}
		if summary.Unexpected == 0 {
			stats.Complete++
		}
	}
	p.logger.Info("processing finished",
		zap.Int("documents", stats.Documents),
		zap.Int("complete", stats.Complete),
		zap.Int("failed", stats.Failed),
		zap.Int("pages_recorded", stats.PagesRecorded),
		zap.Int("pages_errored", stats.PagesErrored),
		zap.Int("pages_unexpected", stats.PagesUnexpected),
	)
	return stats, nil
}

// ProcessDocument records every page of doc that is not in the catalog yet.
// When nothing is missing it performs no rendering or network calls.
func (p *Processor) ProcessDocument(ctx context.Context, doc archive.Document) (Summary, error) {
	var summary Summary
	number := documentNumber(doc)
	if number == "" {
		return summary, fmt.Errorf("document %s has no number: %w", doc.ID, archive.ErrMalformedSource)
	}
	path := archive.SourcePath(p.cfg.DownloadDir, number)
	logger := p.logger.With(zap.String("document", number))

	declared, ok := doc.DeclaredPages()
	if !ok {
		n, err := p.declarePages(ctx, doc, path)
		if err != nil {
			return summary, err
		}
		declared = n
		logger.Info("page count filled from source", zap.Int("pages", n))
	}

	recorded, err := p.catalog.FindPages(ctx, doc.ID, archive.PageFilter{})
	if err != nil {
		return summary, fmt.Errorf("load pages of %s: %w", number, err)
	}
	numbers := make([]int, 0, len(recorded))
	for _, page := range recorded {
		numbers = append(numbers, page.Number)
	}
	missing := MissingPages(declared, numbers)
	summary.Missing = len(missing)
	if len(missing) == 0 {
		logger.Debug("all pages recorded", zap.Int("pages", declared))
		return summary, nil
	}

	src, err := p.renderer.Open(path)
	if err != nil {
		return summary, fmt.Errorf("open source of %s: %w", number, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("close source", zap.Error(err))
		}
	}()
	logger.Info("processing document",
		zap.Int("declared", declared),
		zap.Int("recorded", len(recorded)),
		zap.Int("missing", len(missing)),
	)

	var (
		mu       sync.Mutex
		outcomes = make([]PageOutcome, 0, len(missing))
	)
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, n := range missing {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, withImage := p.processPage(ctx, doc.ID, number, src, n)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			if outcome.Kind == KindRecorded && !withImage {
				summary.WithoutImage++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		summary.add(o)
	}
	logger.Info("document processed",
		zap.Int("recorded", summary.Recorded),
		zap.Int("classified_errors", summary.ClassifiedError),
		zap.Int("unexpected", summary.Unexpected),
		zap.Int("skipped", summary.Skipped),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("process %s canceled: %w", number, err)
	}
	return summary, nil
}

func (p *Processor) declarePages(ctx context.Context, doc archive.Document, path string) (int, error) {
	n, err := p.countPages(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("source %s not downloaded: %w", path, err)
		}
		return 0, fmt.Errorf("count pages of %s: %w", path, err)
	}
	if err := p.catalog.UpdateDocument(ctx, doc.ID, archive.DocumentUpdate{PageCount: archive.Ptr(n)}); err != nil {
		return 0, fmt.Errorf("store page count: %w", err)
	}
	return n, nil
}

// processPage runs one page end to end. It never panics and never returns an
// error: every failure is folded into the outcome. The second result reports
// whether the stored page has an image.
func (p *Processor) processPage(ctx context.Context, docID, number string, src *render.Source, n int) (outcome PageOutcome, withImage bool) {
	outcome = PageOutcome{Page: n}
	logger := p.logger.With(zap.String("document", number), zap.Int("page", n))
	metrics.IncActivePageWorkers()
	defer metrics.DecActivePageWorkers()
	defer func() {
		if r := recover(); r != nil {
			outcome = PageOutcome{Page: n, Kind: KindUnexpected, Class: archive.ClassUnexpected, Err: fmt.Errorf("panic: %v", r)}
			withImage = false
		}
		metrics.ObservePage(string(outcome.Kind), outcome.Class)
		if outcome.Kind == KindUnexpected {
			logger.Error("page failed; will retry next run", zap.Error(outcome.Err))
		}
	}()

	raster, err := src.Render(n)
	if err != nil {
		return unexpected(n, err), false
	}
	defer raster.Release()

	page := archive.Page{DocumentID: docID, Number: n}
	text, payload, ocrErr := p.transcribe(ctx, raster)
	switch {
	case ocrErr != nil && ctx.Err() != nil:
		return unexpected(n, ocrErr), false
	case ocrErr != nil:
		page.Text = archive.Ptr("ERROR: " + ocrErr.Error())
		page.Error = true
		outcome.Kind = KindClassifiedError
		outcome.Class = archive.Classify(ocrErr)
		outcome.Err = ocrErr
		logger.Warn("page transcription failed", zap.String("class", outcome.Class), zap.Error(ocrErr))
	default:
		page.Text = archive.Ptr(text)
		outcome.Kind = KindRecorded
		outcome.Class = archive.ClassNone
		ref, err := p.upload(ctx, raster, archive.ImageName(number, n), payload)
		switch {
		case errors.Is(err, archive.ErrImageTooLarge):
			logger.Warn("recording page without image", zap.Error(err))
		case err != nil:
			return unexpected(n, fmt.Errorf("upload image: %w", err)), false
		default:
			page.Image = ref
		}
	}
	raster.Release()

	// Another run may have stored the page while this one was transcribing.
	existing, err := p.catalog.FindPages(ctx, docID, archive.PageFilter{Number: archive.Ptr(n)})
	if err != nil {
		return unexpected(n, fmt.Errorf("re-check page: %w", err)), false
	}
	if len(existing) > 0 {
		return PageOutcome{Page: n, Kind: KindSkipped, Class: archive.ClassNone}, false
	}
	page.UpdatedAt = p.clock.Now()
	if _, err := p.catalog.InsertPage(ctx, page); err != nil {
		if errors.Is(err, archive.ErrDuplicate) {
			return PageOutcome{Page: n, Kind: KindSkipped, Class: archive.ClassNone}, false
		}
		return unexpected(n, fmt.Errorf("insert page: %w", err)), false
	}
	logger.Debug("page recorded", zap.String("kind", string(outcome.Kind)), zap.Bool("image", page.Image != nil))
	return outcome, page.Image != nil
}

// transcribe returns the page text and the JPEG payload it was read from.
func (p *Processor) transcribe(ctx context.Context, raster *render.Raster) (string, []byte, error) {
	data, err := imagestore.EncodeJPEG(raster.Image(), p.cfg.OCRQuality)
	if err != nil {
		return "", nil, fmt.Errorf("encode page for ocr: %w", err)
	}
	text, err := p.ocr.Transcribe(ctx, data, ocrMIME)
	return text, data, err
}

func (p *Processor) upload(ctx context.Context, raster *render.Raster, name string, payload []byte) (*archive.ImageRef, error) {
	if up, ok := p.images.(encodedUploader); ok {
		return up.UploadEncoded(ctx, raster.Image(), name, payload, p.cfg.OCRQuality)
	}
	return p.images.Upload(ctx, raster.Image(), name)
}

func unexpected(n int, err error) PageOutcome {
	return PageOutcome{Page: n, Kind: KindUnexpected, Class: archive.ClassUnexpected, Err: err}
}

func documentNumber(doc archive.Document) string {
	if doc.Number != "" {
		return doc.Number
	}
	return archive.DeriveDocumentNumber(doc.URL)
}

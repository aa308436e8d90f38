// Package fetcher registers discovered source documents in the catalog,
// downloading each one at most once.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/render"
)

// Outcome is the result of handling one queue item.
type Outcome string

// Outcomes of Handle, also used as metric labels.
const (
	OutcomeRegistered     Outcome = "registered"
	OutcomeExists         Outcome = "exists"
	OutcomeDownloadFailed Outcome = "download_failed"
	OutcomeMalformed      Outcome = "malformed"
	OutcomeFailed         Outcome = "failed"
)

// Config controls the fetcher.
type Config struct {
	DownloadDir string
}

// Fetcher deduplicates, downloads and registers source documents.
type Fetcher struct {
	cfg        Config
	catalog    archive.Catalog
	downloader Downloader
	countPages func(path string) (int, error)
	logger     *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, catalog archive.Catalog, downloader Downloader, logger *zap.Logger) (*Fetcher, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if downloader == nil {
		return nil, errors.New("downloader is required")
	}
	if cfg.DownloadDir == "" {
		return nil, errors.New("download dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:        cfg,
		catalog:    catalog,
		downloader: downloader,
		countPages: render.CountPages,
		logger:     logger.Named("fetcher"),
	}, nil
}

// Handle processes one discovered document link. Per-item failures are
// reported through the outcome and error; they never affect other items.
func (f *Fetcher) Handle(ctx context.Context, item archive.QueueItem) (Outcome, error) {
	start := time.Now()
	outcome, err := f.handle(ctx, item)
	metrics.ObserveDocument("fetch", string(outcome))

	fields := []zap.Field{
		zap.String("url", item.URL),
		zap.Int("listing_page", item.ListingPage),
		zap.String("outcome", string(outcome)),
		zap.Duration("duration", time.Since(start)),
	}
	switch {
	case err != nil && outcome == OutcomeFailed:
		f.logger.Error("document fetch failed", append(fields, zap.Error(err))...)
	case err != nil:
		f.logger.Warn("document abandoned", append(fields, zap.String("class", archive.Classify(err)), zap.Error(err))...)
	default:
		f.logger.Debug("document handled", fields...)
	}
	return outcome, err
}

func (f *Fetcher) handle(ctx context.Context, item archive.QueueItem) (Outcome, error) {
	number := archive.DeriveDocumentNumber(item.URL)
	if number == "" {
		return OutcomeMalformed, fmt.Errorf("no document number in %q: %w", item.URL, archive.ErrMalformedSource)
	}

	_, err := f.catalog.FindDocumentByNumber(ctx, number)
	switch {
	case err == nil:
		return OutcomeExists, nil
	case !errors.Is(err, archive.ErrNotFound):
		return OutcomeFailed, fmt.Errorf("lookup %s: %w", number, err)
	}

	path := archive.SourcePath(f.cfg.DownloadDir, number)
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return OutcomeFailed, fmt.Errorf("create download dir: %w", err)
		}
		n, err := f.downloader.Download(ctx, item.URL, path)
		if err != nil {
			return OutcomeDownloadFailed, fmt.Errorf("download %s: %w", number, err)
		}
		metrics.ObserveDownload(item.URL, int(n))
	}

	pages, err := f.countPages(path)
	if err != nil {
		// Drop the unreadable copy so the next run downloads it again.
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.logger.Warn("remove unreadable download", zap.String("path", path), zap.Error(rmErr))
		}
		return OutcomeMalformed, fmt.Errorf("count pages of %s: %w", number, err)
	}

	_, err = f.catalog.InsertDocument(ctx, archive.Document{
		URL:         item.URL,
		Number:      number,
		PageCount:   archive.Ptr(pages),
		ListingPage: item.ListingPage,
	})
	switch {
	case errors.Is(err, archive.ErrDuplicate):
		return OutcomeExists, nil
	case err != nil:
		return OutcomeFailed, fmt.Errorf("register %s: %w", number, err)
	}
	f.logger.Info("document registered",
		zap.String("document", number),
		zap.Int("pages", pages),
		zap.Int("listing_page", item.ListingPage),
	)
	return OutcomeRegistered, nil
}

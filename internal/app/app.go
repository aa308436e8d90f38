// Package app builds the long-lived services shared by the pipeline stages,
// acting as a small dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/catalog/postgres"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/clock/system"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/config"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/id/uuid"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/imagestore"
	gcsstore "github.com/JakeFAU/archive-ocr-pipeline/internal/imagestore/gcs"
	localstore "github.com/JakeFAU/archive-ocr-pipeline/internal/imagestore/local"
	s3store "github.com/JakeFAU/archive-ocr-pipeline/internal/imagestore/s3"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
	pubsubnotify "github.com/JakeFAU/archive-ocr-pipeline/internal/notify/pubsub"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/ocr"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/ocr/gemini"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/ocr/tesseract"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/ratelimit"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/render"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/server"
)

// App holds the services a stage needs. Clients are created lazily so a
// stage only connects to what it uses; Close releases them in reverse order.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	catalog archive.Catalog
	clock   archive.Clock
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New connects the Postgres catalog and applies its schema.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := system.New()
	cat, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Catalog.DSN,
		MaxConns: cfg.Catalog.MaxConns,
	}, uuid.New(), clock)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := cat.Migrate(ctx); err != nil {
		cat.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	a := NewWithCatalog(cfg, cat, logger)
	a.onClose("catalog", func() error { cat.Close(); return nil })
	return a, nil
}

// NewWithCatalog builds an App around an existing catalog.
// The caller keeps ownership of the catalog.
func NewWithCatalog(cfg config.Config, catalog archive.Catalog, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger.Info("application services initialized",
		zap.String("image_backend", cfg.Images.Backend),
		zap.Bool("notifications", cfg.Notify.Topic != ""),
		zap.String("metrics_addr", cfg.Metrics.Addr),
	)
	return &App{cfg: cfg, logger: logger, catalog: catalog, clock: system.New()}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Catalog returns the document catalog.
func (a *App) Catalog() archive.Catalog { return a.catalog }

// Clock returns the wall clock.
func (a *App) Clock() archive.Clock { return a.clock }

// Renderer returns a page renderer at the configured DPI.
func (a *App) Renderer() *render.Renderer {
	return render.New(nil, a.cfg.Process.DPI)
}

// Encoder returns the adaptive JPEG encoder configured for page images.
func (a *App) Encoder() imagestore.Encoder {
	return imagestore.Encoder{
		MaxBytes:     a.cfg.Images.MaxBytes,
		StartQuality: a.cfg.Images.StartQuality,
		MinQuality:   a.cfg.Images.MinQuality,
	}
}

// ImageStore builds the page image uploader for the configured backend.
func (a *App) ImageStore(ctx context.Context) (archive.ImageStore, error) {
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	return imagestore.NewUploader(blobs, a.Encoder(), a.cfg.Images.Prefix, a.logger)
}

func (a *App) blobStore(ctx context.Context) (archive.BlobStore, error) {
	img := a.cfg.Images
	switch img.Backend {
	case "gcs":
		if img.Bucket == "" {
			return nil, errors.New("image backend is 'gcs' but IMAGE_BUCKET is not set")
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose("gcs", client.Close)
		a.logger.Info("using gcs image store", zap.String("bucket", img.Bucket))
		return gcsstore.New(client, gcsstore.Config{Bucket: img.Bucket, PublicBase: img.PublicBase})
	case "s3":
		if img.Bucket == "" {
			return nil, errors.New("image backend is 's3' but IMAGE_BUCKET is not set")
		}
		a.logger.Info("using s3 image store", zap.String("bucket", img.Bucket))
		return s3store.New(ctx, s3store.Config{Bucket: img.Bucket, PublicBase: img.PublicBase})
	case "local":
		a.logger.Info("using local image store", zap.String("dir", img.LocalDir))
		return localstore.New(localstore.Config{BaseDir: img.LocalDir})
	default:
		return nil, fmt.Errorf("unknown image backend: %s", img.Backend)
	}
}

// Transcriber builds the rate-limited, retrying Gemini client.
func (a *App) Transcriber(ctx context.Context) (archive.Transcriber, error) {
	o := a.cfg.OCR
	limiter := ratelimit.New(ratelimit.Config{RPS: o.RequestsPerSecond})
	client, err := gemini.New(ctx, gemini.Config{ProjectID: o.ProjectID, Region: o.Region, Model: o.Model}, limiter)
	if err != nil {
		return nil, fmt.Errorf("create ocr client: %w", err)
	}
	a.onClose("gemini", client.Close)
	return ocr.NewRetrying(client, ocr.RetryConfig{
		Engine:      "gemini",
		MaxAttempts: o.MaxAttempts,
		Base:        o.RetryBase,
	}, a.logger), nil
}

// FallbackTranscriber returns the local Tesseract engine used by repair.
func (a *App) FallbackTranscriber() archive.Transcriber {
	return ocr.NewRetrying(tesseract.New(a.cfg.Repair.TesseractLanguage), ocr.RetryConfig{
		Engine:      "tesseract",
		MaxAttempts: 1,
	}, a.logger)
}

// Notifier returns the Pub/Sub notifier, or nil when no topic is configured.
func (a *App) Notifier(ctx context.Context) (archive.Notifier, error) {
	n := a.cfg.Notify
	if n.Topic == "" {
		return nil, nil
	}
	if n.ProjectID == "" {
		n.ProjectID = a.cfg.OCR.ProjectID
	}
	notifier, err := pubsubnotify.New(ctx, n.ProjectID, n.Topic)
	if err != nil {
		return nil, fmt.Errorf("create notifier: %w", err)
	}
	a.onClose("pubsub", notifier.Close)
	a.logger.Info("notifications enabled", zap.String("topic", n.Topic))
	return notifier, nil
}

// StartMetrics serves /metrics, /healthz and /readyz until ctx is canceled.
// It does nothing when no address is configured.
func (a *App) StartMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	var ready server.Pinger
	if p, ok := a.catalog.(server.Pinger); ok {
		ready = p
	}
	srv := server.New(a.logger, ready)
	go func() {
		if err := srv.Serve(ctx, addr); err != nil {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close shuts every service down, newest first, and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

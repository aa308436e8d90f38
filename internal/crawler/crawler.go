package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
)

// Config holds the settings for a listing crawl.
type Config struct {
	ListingURL  string
	SettleDelay time.Duration
}

// Stats summarises a crawl.
type Stats struct {
	ListingPages int
	Discovered   int
}

// Crawler pages through the listing one page at a time.
type Crawler struct {
	cfg    Config
	nav    Navigator
	queue  archive.Queue
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// New builds a Crawler.
func New(cfg Config, nav Navigator, queue archive.Queue, logger *zap.Logger) (*Crawler, error) {
	if nav == nil {
		return nil, errors.New("navigator is required")
	}
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if cfg.ListingURL == "" {
		return nil, errors.New("listing url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:    cfg,
		nav:    nav,
		queue:  queue,
		logger: logger.Named("crawler"),
		sleep:  sleepCtx,
	}, nil
}

// Run crawls every listing page. Each page's links are fully fetched before
// the crawler advances. A navigation failure ends the crawl with an error.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.nav.Open(ctx, c.cfg.ListingURL); err != nil {
		return stats, fmt.Errorf("open listing %s: %w", c.cfg.ListingURL, err)
	}

	for page := 1; ; page++ {
		found, err := c.crawlPage(ctx, page)
		stats.Discovered += found
		if err != nil {
			c.logger.Error("listing page failed", zap.Int("listing_page", page), zap.Error(err))
			return stats, fmt.Errorf("listing page %d: %w", page, err)
		}
		stats.ListingPages = page

		state, err := c.nav.NextState(ctx)
		if err != nil {
			return stats, fmt.Errorf("listing page %d: inspect next control: %w", page, err)
		}
		if state != NextEnabled {
			c.logger.Info("reached the last listing page",
				zap.Int("listing_page", page),
				zap.Stringer("next", state),
				zap.Int("discovered", stats.Discovered),
			)
			return stats, nil
		}
		if err := c.nav.Next(ctx); err != nil {
			return stats, fmt.Errorf("listing page %d: advance: %w", page, err)
		}
		if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
			return stats, err
		}
	}
}

func (c *Crawler) crawlPage(ctx context.Context, page int) (int, error) {
	html, pageURL, err := c.nav.HTML(ctx)
	if err != nil {
		return 0, fmt.Errorf("render: %w", err)
	}
	links := ExtractDocumentLinks(html, pageURL)
	for i, link := range links {
		if err := c.queue.Enqueue(ctx, archive.QueueItem{URL: link, ListingPage: page}); err != nil {
			return i, fmt.Errorf("enqueue %s: %w", link, err)
		}
		metrics.ObserveDocument("crawl", "discovered")
		c.logger.Debug("queued document", zap.String("url", link), zap.Int("listing_page", page))
	}
	c.logger.Info("listing page queued", zap.Int("listing_page", page), zap.Int("links", len(links)))

	if err := c.queue.Join(ctx); err != nil {
		return len(links), fmt.Errorf("wait for fetchers: %w", err)
	}
	return len(links), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

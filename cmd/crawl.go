package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/app"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/config"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/crawler"
	chromedpnav "github.com/JakeFAU/archive-ocr-pipeline/internal/crawler/chromedp"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/dispatcher"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/fetcher"
	collyfetcher "github.com/JakeFAU/archive-ocr-pipeline/internal/fetcher/colly"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/queue/memory"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/worker"
)

func newCrawlCmd() *cobra.Command {
	return stageCmd(config.StageCrawl,
		"Walk the release listing and register every new document",
		`Opens the listing in headless Chrome and pages through it. Document links
found on each page are downloaded by a pool of fetch workers and registered
in the catalog; the crawler waits for a page's documents before moving on.`,
		runCrawl,
	)
}

func runCrawl(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	logger := a.Logger()

	queue := memory.NewQueue(cfg.Crawl.QueueDepth)
	downloader := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
	})
	fetch, err := fetcher.New(fetcher.Config{DownloadDir: cfg.Fetch.DownloadDir}, a.Catalog(), downloader, logger)
	if err != nil {
		return fmt.Errorf("init fetcher: %w", err)
	}
	pool := dispatcher.New(cfg.Fetch.Workers, queue, fetch, worker.Config{Delay: cfg.Fetch.Delay}, logger)

	nav, err := chromedpnav.New(chromedpnav.Config{
		UserAgent:         cfg.Fetch.UserAgent,
		TableSelector:     cfg.Crawl.TableSelector,
		NextSelector:      cfg.Crawl.NextSelector,
		NavigationTimeout: cfg.Crawl.NavTimeout,
	})
	if err != nil {
		return fmt.Errorf("init navigator: %w", err)
	}
	defer nav.Close()

	c, err := crawler.New(crawler.Config{
		ListingURL:  cfg.Crawl.ListingURL,
		SettleDelay: cfg.Crawl.SettleDelay,
	}, nav, queue, logger)
	if err != nil {
		return fmt.Errorf("init crawler: %w", err)
	}

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		pool.Run(ctx)
	}()

	stats, crawlErr := c.Run(ctx)
	queue.Close()
	<-workersDone

	logger.Info("crawl finished",
		zap.Int("listing_pages", stats.ListingPages),
		zap.Int("discovered", stats.Discovered),
		zap.Error(crawlErr),
	)
	if crawlErr != nil {
		return fmt.Errorf("crawl: %w", crawlErr)
	}
	return nil
}

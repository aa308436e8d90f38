// Package collyfetcher downloads source documents with gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/fetcher"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int
}

// Downloader implements fetcher.Downloader using the Colly collector.
// Each document is requested once; failures are not retried.
type Downloader struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ fetcher.Downloader = (*Downloader)(nil)

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Downloader.
func New(cfg Config) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(cfg.MaxBytes),
	)
	c.WithTransport(newHTTPTransport())
	return &Downloader{cfg: cfg, baseCollector: c}
}

// Download fetches url and writes the body to dst atomically.
func (d *Downloader) Download(ctx context.Context, url, dst string) (int64, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := d.buildCollector()
	d.configureCollectorHooks(collector, url, &body, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return 0, err
	}
	if err := writeAtomic(dst, body); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

func (d *Downloader) buildCollector() *colly.Collector {
	collector := d.baseCollector.Clone()
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	collector.SetRequestTimeout(d.cfg.Timeout)
	return collector
}

func (d *Downloader) configureCollectorHooks(hooks collectorHooks, url string, body *[]byte, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			*fetchErr = &fetcher.DownloadError{URL: url, StatusCode: r.StatusCode}
			return
		}
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.StatusCode != http.StatusOK {
			*fetchErr = &fetcher.DownloadError{URL: url, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly download canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func writeAtomic(dst string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename into %s: %w", dst, err)
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

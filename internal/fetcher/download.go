package fetcher

import (
	"context"
	"fmt"
	"net/http"
)

// Downloader retrieves a source document into a local file.
type Downloader interface {
	Download(ctx context.Context, url, dst string) (int64, error)
}

// DownloadError reports a download that completed with a non-200 status.
type DownloadError struct {
	URL        string
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

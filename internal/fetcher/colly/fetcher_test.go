package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/fetcher"
)

func TestDownloadWritesBody(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "104-1.pdf")
	d := New(Config{UserAgent: "archive-test", Timeout: 5 * time.Second})
	n, err := d.Download(context.Background(), srv.URL+"/104-1.pdf", dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF-1.4 body")), n)
	assert.Equal(t, "archive-test", <-agents)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))
}

func TestDownloadNon200IsDownloadError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "missing.pdf")
	_, err := New(Config{}).Download(context.Background(), srv.URL+"/missing.pdf", dst)
	var de *fetcher.DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusNotFound, de.StatusCode)
	_, statErr := os.Stat(dst)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "nothing is written for a failed download")
}

func TestDownloadCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{}).Download(ctx, srv.URL+"/slow.pdf", filepath.Join(t.TempDir(), "slow.pdf"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	d := New(Config{})
	var body []byte
	var fetchErr error
	hooks := &stubHooks{}
	d.configureCollectorHooks(hooks, "https://example.com/a.pdf", &body, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusCreated, Body: []byte("x")})
	var de *fetcher.DownloadError
	require.ErrorAs(t, fetchErr, &de)
	assert.Equal(t, http.StatusCreated, de.StatusCode)
	assert.Nil(t, body)

	fetchErr = nil
	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("pdf")})
	require.NoError(t, fetchErr)
	assert.Equal(t, "pdf", string(body))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	d := New(Config{UserAgent: "ua", MaxBytes: 1024})
	c := d.buildCollector()
	assert.Equal(t, "ua", c.UserAgent)
	assert.Equal(t, 1024, c.MaxBodySize)
	assert.True(t, c.AllowURLRevisit)
	assert.Equal(t, 2*time.Minute, d.cfg.Timeout)
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://WWW.Archives.gov/files/a.pdf", "www.archives.gov"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, documentsTotal)
	require.NotNil(t, pagesTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserversRecord(t *testing.T) {
	Init()

	before := testutil.ToFloat64(pagesTotal.WithLabelValues("recorded", "none"))
	ObservePage("recorded", "none")
	assert.InDelta(t, before+1, testutil.ToFloat64(pagesTotal.WithLabelValues("recorded", "none")), 0.001)

	beforeDocs := testutil.ToFloat64(documentsTotal.WithLabelValues("fetch", "registered"))
	ObserveDocument("fetch", "registered")
	assert.InDelta(t, beforeDocs+1, testutil.ToFloat64(documentsTotal.WithLabelValues("fetch", "registered")), 0.001)

	beforeBytes := testutil.ToFloat64(downloadBytesTotal.WithLabelValues("www.archives.gov"))
	ObserveDownload("https://www.archives.gov/files/a.pdf", 2048)
	ObserveDownload("https://www.archives.gov/files/b.pdf", 0)
	assert.InDelta(t, beforeBytes+2048, testutil.ToFloat64(downloadBytesTotal.WithLabelValues("www.archives.gov")), 0.001)

	IncActivePageWorkers()
	active := testutil.ToFloat64(activePageWorkers)
	DecActivePageWorkers()
	assert.InDelta(t, active-1, testutil.ToFloat64(activePageWorkers), 0.001)

	ObserveImageUpload("uploaded", 76)
	ObserveOCRAttempt("gemini", "none")
	ObserveTranscript("written")
	ObservePublish("published")
	ObserveNotification("transcript.ready", "sent")
	ObserveRateLimitDelay("ocr", 150*time.Millisecond)
	assert.Positive(t, testutil.CollectAndCount(imageQuality))
	assert.Positive(t, testutil.CollectAndCount(rateLimitDelaysSeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.archives.gov", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

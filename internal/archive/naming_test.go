package archive

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveDocumentNumber(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"archive url", "https://www.archives.gov/files/research/jfk/releases/2025/0318/104-10009-10000.pdf", "104-10009-10000"},
		{"relative path", "releases/2025/0318/104-10009-10000.pdf", "104-10009-10000"},
		{"local link", "downloaded-pdfs/docid-32112345.pdf", "docid-32112345"},
		{"upper case extension", "https://example.com/a/ABC-1.PDF", "ABC-1"},
		{"query string", "https://example.com/a/124-90139-10081.pdf?download=1", "124-90139-10081"},
		{"no extension", "https://example.com/a/readme", "readme"},
		{"bare filename", "180-10110-10012.pdf", "180-10110-10012"},
		{"empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, DeriveDocumentNumber(tc.in))
		})
	}
}

func TestDeriveCanonicalURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"https://www.archives.gov/files/research/jfk/releases/2025/0318/104-10009-10000.pdf",
		DeriveCanonicalURL("", "downloaded-pdfs/104-10009-10000.pdf"),
	)
	assert.Equal(t,
		"https://mirror.example/files/104-10009-10000.pdf",
		DeriveCanonicalURL("https://mirror.example/files/", "104-10009-10000"),
	)
}

func TestDerivationRoundTrip(t *testing.T) {
	t.Parallel()

	link := DeriveCanonicalURL("", "downloaded-pdfs/157-10014-10167.pdf")
	require.Equal(t, "157-10014-10167", DeriveDocumentNumber(link))
}

func TestLinkPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLocalLink("downloaded-pdfs/x.pdf"))
	assert.False(t, IsLocalLink("https://www.archives.gov/x.pdf"))
	assert.True(t, IsDocumentLink("/files/x.pdf"))
	assert.True(t, IsDocumentLink("https://www.archives.gov/files/x.PDF?dl=1"))
	assert.False(t, IsDocumentLink("/research/jfk/release-2025"))
}

func TestPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("dl", "104-1.pdf"), SourcePath("dl", "104-1"))
	assert.Equal(t, filepath.Join("out", "104-1.txt"), TranscriptPath("out", "104-1"))
	assert.Equal(t, "104-1_page_7", ImageName("104-1", 7))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ClassNone, Classify(nil))
	assert.Equal(t, ClassContent, Classify(fmt.Errorf("page 3: %w", ErrEmptyResponse)))
	assert.Equal(t, ClassTransient, Classify(fmt.Errorf("ocr: %w", ErrTransient)))
	assert.Equal(t, ClassMalformed, Classify(ErrMalformedSource))
	assert.Equal(t, ClassExhaustion, Classify(ErrImageTooLarge))
	assert.Equal(t, ClassConsistency, Classify(ErrCountMismatch))
	assert.Equal(t, ClassUnexpected, Classify(errors.New("boom")))
}

func TestDocumentHelpers(t *testing.T) {
	t.Parallel()

	doc := Document{}
	_, ok := doc.DeclaredPages()
	assert.False(t, ok)
	assert.False(t, doc.IsPublished())

	doc.PageCount = Ptr(4)
	doc.Published = Ptr(true)
	n, ok := doc.DeclaredPages()
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	assert.True(t, doc.IsPublished())

	assert.True(t, DocumentUpdate{}.Empty())
	assert.False(t, DocumentUpdate{Published: Ptr(true)}.Empty())
	assert.Equal(t, "", Page{}.TextOrEmpty())
}

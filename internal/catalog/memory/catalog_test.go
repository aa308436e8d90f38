package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

func TestDocumentLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat := New()

	id, err := cat.InsertDocument(ctx, archive.Document{URL: "https://a/104-1.pdf", Number: "104-1", ListingPage: 1})
	require.NoError(t, err)

	_, err = cat.InsertDocument(ctx, archive.Document{URL: "https://b/104-1.pdf", Number: "104-1"})
	require.ErrorIs(t, err, archive.ErrDuplicate)

	doc, err := cat.FindDocumentByNumber(ctx, "104-1")
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	byURL, err := cat.FindDocumentByURL(ctx, "https://a/104-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, id, byURL.ID)

	require.NoError(t, cat.UpdateDocument(ctx, id, archive.DocumentUpdate{PageCount: archive.Ptr(3), Published: archive.Ptr(true)}))
	doc, err = cat.FindDocumentByNumber(ctx, "104-1")
	require.NoError(t, err)
	assert.Equal(t, 3, *doc.PageCount)
	assert.True(t, doc.IsPublished())

	_, err = cat.FindDocumentByNumber(ctx, "missing")
	require.ErrorIs(t, err, archive.ErrNotFound)
	require.ErrorIs(t, cat.UpdateDocument(ctx, "ghost", archive.DocumentUpdate{URL: archive.Ptr("x")}), archive.ErrNotFound)
}

func TestListDocumentsFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat := New()
	published, _ := cat.InsertDocument(ctx, archive.Document{URL: "https://a/1.pdf", Number: "1", PageCount: archive.Ptr(1)})
	require.NoError(t, cat.UpdateDocument(ctx, published, archive.DocumentUpdate{Published: archive.Ptr(true)}))
	_, _ = cat.InsertDocument(ctx, archive.Document{URL: "downloaded-pdfs/2.pdf"})
	_, _ = cat.InsertDocument(ctx, archive.Document{URL: "https://a/3.pdf", Number: "3"})

	all, err := cat.ListDocuments(ctx, archive.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	unpublished, err := cat.ListDocuments(ctx, archive.DocumentFilter{Unpublished: true})
	require.NoError(t, err)
	assert.Len(t, unpublished, 2)

	noNumber, err := cat.ListDocuments(ctx, archive.DocumentFilter{MissingNumber: true})
	require.NoError(t, err)
	require.Len(t, noNumber, 1)
	assert.Equal(t, "downloaded-pdfs/2.pdf", noNumber[0].URL)

	local, err := cat.ListDocuments(ctx, archive.DocumentFilter{URLPrefix: archive.LocalLinkPrefix})
	require.NoError(t, err)
	assert.Len(t, local, 1)

	noCount, err := cat.ListDocuments(ctx, archive.DocumentFilter{MissingPageCount: true})
	require.NoError(t, err)
	assert.Len(t, noCount, 2)
}

func TestPagesUniqueAndOrdered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat := New()
	docID, err := cat.InsertDocument(ctx, archive.Document{URL: "u", Number: "n"})
	require.NoError(t, err)

	for _, n := range []int{3, 1, 2} {
		page := archive.Page{DocumentID: docID, Number: n, Text: archive.Ptr("t")}
		if n == 2 {
			page.Error = true
		}
		_, err := cat.InsertPage(ctx, page)
		require.NoError(t, err)
	}
	_, err = cat.InsertPage(ctx, archive.Page{DocumentID: docID, Number: 1})
	require.ErrorIs(t, err, archive.ErrDuplicate)
	_, err = cat.InsertPage(ctx, archive.Page{DocumentID: "ghost", Number: 1})
	require.ErrorIs(t, err, archive.ErrNotFound)

	pages, err := cat.FindPages(ctx, docID, archive.PageFilter{})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{pages[0].Number, pages[1].Number, pages[2].Number})

	valid, err := cat.FindPages(ctx, docID, archive.PageFilter{OnlyValid: true})
	require.NoError(t, err)
	assert.Len(t, valid, 2)

	errored, err := cat.FindPages(ctx, docID, archive.PageFilter{OnlyErrors: true})
	require.NoError(t, err)
	require.Len(t, errored, 1)

	require.NoError(t, cat.UpdatePage(ctx, errored[0].ID, archive.PageUpdate{
		Text:  archive.Ptr("fixed"),
		Error: archive.Ptr(false),
		Image: &archive.ImageRef{ID: "n_page_2"},
	}))
	second, err := cat.FindPages(ctx, docID, archive.PageFilter{Number: archive.Ptr(2)})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.False(t, second[0].Error)
	assert.Equal(t, "fixed", second[0].TextOrEmpty())

	noImage, err := cat.FindPages(ctx, docID, archive.PageFilter{MissingImage: true})
	require.NoError(t, err)
	assert.Len(t, noImage, 2)
	assert.Equal(t, 3, cat.PageCount())
}

func TestReturnedValuesAreCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat := New()
	id, _ := cat.InsertDocument(ctx, archive.Document{URL: "u", Number: "n", PageCount: archive.Ptr(2)})

	doc, err := cat.FindDocumentByNumber(ctx, "n")
	require.NoError(t, err)
	*doc.PageCount = 99

	again, err := cat.FindDocumentByNumber(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, 2, *again.PageCount)
	assert.Equal(t, id, again.ID)
}

func TestConcurrentPageInsertsKeepOnePerNumber(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat := New()
	docID, _ := cat.InsertDocument(ctx, archive.Document{URL: "u", Number: "n"})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cat.InsertPage(ctx, archive.Page{DocumentID: docID, Number: 1})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, cat.PageCount())
}

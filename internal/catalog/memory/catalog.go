// Package memory provides an in-memory catalog for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// Catalog is a mutex-guarded archive.Catalog. Uniqueness of document numbers
// and of (document, page number) pairs is enforced like the Postgres schema.
type Catalog struct {
	mu        sync.RWMutex
	documents map[string]archive.Document
	order     []string
	pages     map[string]archive.Page
	seq       int
	now       func() time.Time
}

var _ archive.Catalog = (*Catalog)(nil)

// New constructs an empty Catalog.
func New() *Catalog {
	return &Catalog{
		documents: make(map[string]archive.Document),
		pages:     make(map[string]archive.Page),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FindDocumentByURL returns the document registered under url.
func (c *Catalog) FindDocumentByURL(_ context.Context, url string) (archive.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		if doc := c.documents[id]; doc.URL == url {
			return cloneDocument(doc), nil
		}
	}
	return archive.Document{}, fmt.Errorf("find document by url: %w", archive.ErrNotFound)
}

// FindDocumentByNumber returns the document registered under number.
func (c *Catalog) FindDocumentByNumber(_ context.Context, number string) (archive.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if doc, ok := c.byNumber(number); ok {
		return cloneDocument(doc), nil
	}
	return archive.Document{}, fmt.Errorf("find document by number: %w", archive.ErrNotFound)
}

// InsertDocument stores doc and returns its ID.
func (c *Catalog) InsertDocument(_ context.Context, doc archive.Document) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc.Number != "" {
		if _, exists := c.byNumber(doc.Number); exists {
			return "", fmt.Errorf("insert document: %w", archive.ErrDuplicate)
		}
	}
	if doc.ID == "" {
		doc.ID = c.nextID("doc")
	}
	if _, exists := c.documents[doc.ID]; exists {
		return "", fmt.Errorf("insert document: %w", archive.ErrDuplicate)
	}
	now := c.now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	c.documents[doc.ID] = cloneDocument(doc)
	c.order = append(c.order, doc.ID)
	return doc.ID, nil
}

// UpdateDocument applies the non-nil fields of update to document id.
func (c *Catalog) UpdateDocument(_ context.Context, id string, update archive.DocumentUpdate) error {
	if update.Empty() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[id]
	if !ok {
		return fmt.Errorf("update document %s: %w", id, archive.ErrNotFound)
	}
	if update.URL != nil {
		doc.URL = *update.URL
	}
	if update.Number != nil {
		doc.Number = *update.Number
	}
	if update.PageCount != nil {
		doc.PageCount = archive.Ptr(*update.PageCount)
	}
	if update.Published != nil {
		doc.Published = archive.Ptr(*update.Published)
	}
	doc.UpdatedAt = c.now()
	c.documents[id] = doc
	return nil
}

// ListDocuments returns documents matching filter in insertion order.
func (c *Catalog) ListDocuments(_ context.Context, filter archive.DocumentFilter) ([]archive.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []archive.Document
	for _, id := range c.order {
		doc := c.documents[id]
		if filter.Unpublished && doc.IsPublished() {
			continue
		}
		if filter.MissingNumber && doc.Number != "" {
			continue
		}
		if filter.MissingPageCount && doc.PageCount != nil {
			continue
		}
		if filter.URLPrefix != "" && !strings.HasPrefix(doc.URL, filter.URLPrefix) {
			continue
		}
		out = append(out, cloneDocument(doc))
	}
	return out, nil
}

// FindPages returns the pages of documentID matching filter, ordered by page number.
func (c *Catalog) FindPages(_ context.Context, documentID string, filter archive.PageFilter) ([]archive.Page, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []archive.Page
	for _, page := range c.pages {
		if page.DocumentID != documentID {
			continue
		}
		if filter.Number != nil && page.Number != *filter.Number {
			continue
		}
		if filter.OnlyValid && page.Error {
			continue
		}
		if filter.OnlyErrors && !page.Error {
			continue
		}
		if filter.MissingImage && page.Image != nil {
			continue
		}
		out = append(out, clonePage(page))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// InsertPage stores page and returns its ID.
func (c *Catalog) InsertPage(_ context.Context, page archive.Page) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.documents[page.DocumentID]; !ok {
		return "", fmt.Errorf("insert page: document %s: %w", page.DocumentID, archive.ErrNotFound)
	}
	for _, existing := range c.pages {
		if existing.DocumentID == page.DocumentID && existing.Number == page.Number {
			return "", fmt.Errorf("insert page: %w", archive.ErrDuplicate)
		}
	}
	if page.ID == "" {
		page.ID = c.nextID("page")
	}
	if page.UpdatedAt.IsZero() {
		page.UpdatedAt = c.now()
	}
	c.pages[page.ID] = clonePage(page)
	return page.ID, nil
}

// UpdatePage applies the non-nil fields of update to page id.
func (c *Catalog) UpdatePage(_ context.Context, id string, update archive.PageUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, ok := c.pages[id]
	if !ok {
		return fmt.Errorf("update page %s: %w", id, archive.ErrNotFound)
	}
	if update.Text != nil {
		page.Text = archive.Ptr(*update.Text)
	}
	if update.Error != nil {
		page.Error = *update.Error
	}
	if update.Image != nil {
		ref := *update.Image
		page.Image = &ref
	}
	page.UpdatedAt = update.UpdatedAt
	if page.UpdatedAt.IsZero() {
		page.UpdatedAt = c.now()
	}
	c.pages[id] = page
	return nil
}

// Close is a no-op.
func (c *Catalog) Close() {}

// PageCount returns the number of stored pages across all documents.
func (c *Catalog) PageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}

func (c *Catalog) byNumber(number string) (archive.Document, bool) {
	for _, id := range c.order {
		if doc := c.documents[id]; doc.Number == number {
			return doc, true
		}
	}
	return archive.Document{}, false
}

func (c *Catalog) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s-%d", prefix, c.seq)
}

func cloneDocument(doc archive.Document) archive.Document {
	if doc.PageCount != nil {
		doc.PageCount = archive.Ptr(*doc.PageCount)
	}
	if doc.Published != nil {
		doc.Published = archive.Ptr(*doc.Published)
	}
	return doc
}

func clonePage(page archive.Page) archive.Page {
	if page.Text != nil {
		page.Text = archive.Ptr(*page.Text)
	}
	if page.Image != nil {
		ref := *page.Image
		page.Image = &ref
	}
	return page
}

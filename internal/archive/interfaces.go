package archive

import (
	"context"
	"image"
	"io"
	"time"
)

// Catalog is the persistent store of documents and pages.
type Catalog interface {
	FindDocumentByURL(ctx context.Context, url string) (Document, error)
	FindDocumentByNumber(ctx context.Context, number string) (Document, error)
	InsertDocument(ctx context.Context, doc Document) (string, error)
	UpdateDocument(ctx context.Context, id string, update DocumentUpdate) error
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	FindPages(ctx context.Context, documentID string, filter PageFilter) ([]Page, error)
	InsertPage(ctx context.Context, page Page) (string, error)
	UpdatePage(ctx context.Context, id string, update PageUpdate) error
	Close()
}

// Transcriber turns a page image into text.
type Transcriber interface {
	Transcribe(ctx context.Context, image []byte, mimeType string) (string, error)
}

// ImageStore uploads a rendered page image and returns its descriptor.
type ImageStore interface {
	Upload(ctx context.Context, img image.Image, name string) (*ImageRef, error)
}

// BlobStore writes raw objects and returns a URL for them.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// Indexer is the downstream knowledge-base service.
type Indexer interface {
	UploadDocument(ctx context.Context, name string, text []byte) (string, error)
	UpdateEmbeddings(ctx context.Context, workspace string, adds, deletes []string) error
}

// Notifier publishes pipeline milestones.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Queue is the bounded hand-off between the crawler and fetcher workers.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
	Done()
	Join(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces catalog identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

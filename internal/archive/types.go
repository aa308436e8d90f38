// Package archive defines the catalog entities and the contracts shared by the
// ingestion stages.
package archive

import (
	"time"
)

// Document is one source PDF discovered on the archive listing.
type Document struct {
	ID          string    `json:"id"`
	URL         string    `json:"pdf_link"`
	Number      string    `json:"record_number"`
	PageCount   *int      `json:"num_pages,omitempty"`
	ListingPage int       `json:"parent_page_num"`
	Published   *bool     `json:"in_anything_llm,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeclaredPages returns the declared page count and whether it is set.
func (d Document) DeclaredPages() (int, bool) {
	if d.PageCount == nil {
		return 0, false
	}
	return *d.PageCount, true
}

// IsPublished reports whether the document was pushed to the indexing service.
func (d Document) IsPublished() bool {
	return d.Published != nil && *d.Published
}

// ImageRef describes a page image held by the image store.
type ImageRef struct {
	ID      string `json:"public_id"`
	URL     string `json:"secure_url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"`
	Bytes   int    `json:"bytes"`
	Quality int    `json:"quality"`
}

// Page is one rendered and transcribed page of a Document.
type Page struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"parent_record_id"`
	Number     int       `json:"page_number"`
	Text       *string   `json:"ocr_result,omitempty"`
	Error      bool      `json:"error"`
	Image      *ImageRef `json:"cloudinary,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TextOrEmpty returns the transcribed text, or "" when none is stored.
func (p Page) TextOrEmpty() string {
	if p.Text == nil {
		return ""
	}
	return *p.Text
}

// DocumentUpdate carries the mutable Document fields; nil fields are left untouched.
type DocumentUpdate struct {
	URL       *string
	Number    *string
	PageCount *int
	Published *bool
}

// Empty reports whether the update changes nothing.
func (u DocumentUpdate) Empty() bool {
	return u.URL == nil && u.Number == nil && u.PageCount == nil && u.Published == nil
}

// PageUpdate carries the mutable Page fields; nil fields are left untouched.
type PageUpdate struct {
	Text      *string
	Error     *bool
	Image     *ImageRef
	UpdatedAt time.Time
}

// DocumentFilter narrows ListDocuments. Zero value lists everything.
type DocumentFilter struct {
	Unpublished      bool
	MissingNumber    bool
	MissingPageCount bool
	URLPrefix        string
}

// PageFilter narrows FindPages. Zero value returns every page of the document.
type PageFilter struct {
	Number       *int
	OnlyValid    bool
	OnlyErrors   bool
	MissingImage bool
}

// QueueItem is a discovered document URL awaiting the fetcher.
type QueueItem struct {
	URL         string
	ListingPage int
}

// EventType names a pipeline notification.
type EventType string

// Notification types emitted by the assembler and publisher.
const (
	EventTranscriptReady   EventType = "transcript.ready"
	EventDocumentPublished EventType = "document.published"
)

// Event is a best-effort notification about a document milestone.
type Event struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
	Number     string    `json:"record_number"`
	Location   string    `json:"location,omitempty"`
	At         time.Time `json:"timestamp"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Package render rasterizes PDF pages and inspects downloaded PDFs.
package render

import (
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// DefaultDPI is the resolution pages are rendered at.
const DefaultDPI = 300

// Document abstracts an open PDF that can rasterize pages.
type Document interface {
	NumPage() int
	ImageDPI(pageIndex int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Document.
type Opener interface {
	Open(path string) (Document, error)
}

// FitzOpener opens documents with MuPDF through go-fitz.
type FitzOpener struct{}

// Open implements Opener.
func (FitzOpener) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, archive.ErrMalformedSource, err)
	}
	return doc, nil
}

// Renderer opens documents and renders their pages at a fixed DPI.
type Renderer struct {
	opener Opener
	dpi    float64
}

// New constructs a Renderer. A nil opener uses go-fitz; a non-positive dpi uses DefaultDPI.
func New(opener Opener, dpi int) *Renderer {
	if opener == nil {
		opener = FitzOpener{}
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Renderer{opener: opener, dpi: float64(dpi)}
}

// Open prepares path for page rendering. The caller must Close the Source.
func (r *Renderer) Open(path string) (*Source, error) {
	doc, err := r.opener.Open(path)
	if err != nil {
		return nil, err
	}
	return &Source{doc: doc, dpi: r.dpi, path: path}, nil
}

// Source is an open document. Render may be called from several goroutines;
// go-fitz serializes access to the underlying document.
type Source struct {
	doc  Document
	dpi  float64
	path string
}

// PageCount reports how many pages the document has.
func (s *Source) PageCount() int {
	return s.doc.NumPage()
}

// Render rasterizes 1-based page n. The caller must Release the Raster.
func (s *Source) Render(n int) (*Raster, error) {
	if n < 1 || n > s.doc.NumPage() {
		return nil, fmt.Errorf("render %s page %d: page out of range 1..%d", s.path, n, s.doc.NumPage())
	}
	img, err := s.doc.ImageDPI(n-1, s.dpi)
	if err != nil {
		return nil, fmt.Errorf("render %s page %d: %w", s.path, n, err)
	}
	if img == nil {
		return nil, errors.New("render returned no image")
	}
	return &Raster{Page: n, img: img}, nil
}

// Close releases the document.
func (s *Source) Close() error {
	return s.doc.Close()
}

// Raster is one rendered page held in memory.
type Raster struct {
	Page int
	img  *image.RGBA
}

// Image returns the rendered page, or nil after Release.
func (r *Raster) Image() image.Image {
	if r == nil || r.img == nil {
		return nil
	}
	return r.img
}

// Released reports whether Release has been called.
func (r *Raster) Released() bool {
	return r == nil || r.img == nil
}

// Release drops the pixel buffer. It is safe to call more than once.
func (r *Raster) Release() {
	if r == nil || r.img == nil {
		return
	}
	r.img.Pix = nil
	r.img = nil
}

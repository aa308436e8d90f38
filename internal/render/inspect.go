package render

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

const pdfMIME = "application/pdf"

func init() {
	// pdfcpu otherwise writes a config directory under the user's home on first use.
	api.DisableConfigDir()
}

// CountPages sniffs path as a PDF and returns its page count.
// Anything that is not a readable PDF is archive.ErrMalformedSource.
func CountPages(path string) (int, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return 0, fmt.Errorf("detect content type of %s: %w", path, err)
	}
	if !mt.Is(pdfMIME) {
		return 0, fmt.Errorf("%s is %s: %w", path, mt.String(), archive.ErrMalformedSource)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages of %s: %w: %w", path, archive.ErrMalformedSource, err)
	}
	return n, nil
}

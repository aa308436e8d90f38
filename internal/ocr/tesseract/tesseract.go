// Package tesseract transcribes page images with a local Tesseract install.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// client is the subset of *gosseract.Client the engine drives.
type client interface {
	SetLanguage(langs ...string) error
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	Close() error
}

// Engine implements archive.Transcriber using gosseract.
type Engine struct {
	languages     []string
	clientFactory func() client
}

var _ archive.Transcriber = (*Engine)(nil)

// New constructs a Tesseract-backed engine. Languages default to "eng".
func New(languages ...string) *Engine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Engine{
		languages:     languages,
		clientFactory: func() client { return gosseract.NewClient() },
	}
}

// Transcribe recognizes the text on one page image. A client is created per call
// since gosseract clients are not safe for concurrent use.
func (e *Engine) Transcribe(ctx context.Context, image []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.clientFactory()
	defer c.Close() //nolint:errcheck // close only frees the C handle

	if err := c.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", archive.ErrEmptyResponse
	}
	return text, nil
}

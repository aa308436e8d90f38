// Package imagestore encodes rendered pages under a size ceiling and uploads them.
package imagestore

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// Encoder defaults.
const (
	DefaultMaxBytes     = 10_000_000
	DefaultStartQuality = 85
	DefaultMinQuality   = 20
	qualityStep         = 0.9
)

// Encoder produces JPEGs no larger than MaxBytes by stepping quality down by 10%.
type Encoder struct {
	MaxBytes     int
	StartQuality int
	MinQuality   int
}

// DefaultEncoder returns the encoder used for page images.
func DefaultEncoder() Encoder {
	return Encoder{MaxBytes: DefaultMaxBytes, StartQuality: DefaultStartQuality, MinQuality: DefaultMinQuality}
}

func (e Encoder) withDefaults() Encoder {
	if e.MaxBytes <= 0 {
		e.MaxBytes = DefaultMaxBytes
	}
	if e.StartQuality <= 0 || e.StartQuality > 100 {
		e.StartQuality = DefaultStartQuality
	}
	if e.MinQuality <= 0 {
		e.MinQuality = DefaultMinQuality
	}
	return e
}

// Encode returns the JPEG bytes and the quality they were produced at.
// When even the lowest allowed quality is too large it returns archive.ErrImageTooLarge.
func (e Encoder) Encode(img image.Image) ([]byte, int, error) {
	e = e.withDefaults()
	quality := e.StartQuality
	for {
		data, err := EncodeJPEG(img, quality)
		if err != nil {
			return nil, 0, err
		}
		if len(data) <= e.MaxBytes {
			return data, quality, nil
		}
		quality = int(float64(quality) * qualityStep)
		if quality < e.MinQuality {
			return nil, 0, fmt.Errorf("%d bytes above %d: %w", len(data), e.MaxBytes, archive.ErrImageTooLarge)
		}
	}
}

// EncodeJPEG encodes img at a fixed quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

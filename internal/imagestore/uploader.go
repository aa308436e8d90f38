package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
)

const (
	contentType = "image/jpeg"
	format      = "jpg"
)

// Uploader is the archive.ImageStore that encodes pages and writes them to a BlobStore.
type Uploader struct {
	blobs   archive.BlobStore
	encoder Encoder
	prefix  string
	logger  *zap.Logger
}

var _ archive.ImageStore = (*Uploader)(nil)

// NewUploader wires an encoder to a blob backend. Objects are written under prefix.
func NewUploader(blobs archive.BlobStore, encoder Encoder, prefix string, logger *zap.Logger) (*Uploader, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		blobs:   blobs,
		encoder: encoder.withDefaults(),
		prefix:  prefix,
		logger:  logger.Named("imagestore"),
	}, nil
}

// Upload encodes img and stores it as <prefix>/<name>.jpg.
// Nothing is written when the image cannot be brought under the size ceiling.
func (u *Uploader) Upload(ctx context.Context, img image.Image, name string) (*archive.ImageRef, error) {
	if img == nil {
		return nil, fmt.Errorf("upload %s: image is nil", name)
	}
	data, quality, err := u.encoder.Encode(img)
	if err != nil {
		metrics.ObserveImageUpload("abandoned", 0)
		u.logger.Warn("image abandoned", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	return u.put(ctx, img.Bounds(), name, data, quality)
}

// UploadEncoded stores data, a JPEG of img encoded at quality, when it is
// what Encode would produce: the start quality and within the ceiling.
// Otherwise img is re-encoded as Upload does.
func (u *Uploader) UploadEncoded(ctx context.Context, img image.Image, name string, data []byte, quality int) (*archive.ImageRef, error) {
	if img == nil {
		return nil, fmt.Errorf("upload %s: image is nil", name)
	}
	if quality != u.encoder.StartQuality || len(data) == 0 || len(data) > u.encoder.MaxBytes {
		return u.Upload(ctx, img, name)
	}
	return u.put(ctx, img.Bounds(), name, data, quality)
}

func (u *Uploader) put(ctx context.Context, bounds image.Rectangle, name string, data []byte, quality int) (*archive.ImageRef, error) {
	key := path.Join(u.prefix, name+"."+format)
	url, err := u.blobs.PutObject(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		metrics.ObserveImageUpload("failed", 0)
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	metrics.ObserveImageUpload("uploaded", quality)
	if quality < u.encoder.StartQuality {
		u.logger.Info("image quality reduced", zap.String("name", name), zap.Int("quality", quality), zap.Int("bytes", len(data)))
	}
	return &archive.ImageRef{
		ID:      name,
		URL:     url,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Format:  format,
		Bytes:   len(data),
		Quality: quality,
	}, nil
}

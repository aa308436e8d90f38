// Package gcs provides a blob store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	// PublicBase, when set, replaces gs://<bucket> in returned URLs.
	PublicBase string
}

type objectWriterFactory func(ctx context.Context, bucket, key string) objectWriter

type objectWriter interface {
	io.WriteCloser
	SetContentType(string)
}

type gcsWriter struct{ *storage.Writer }

func (w gcsWriter) SetContentType(ct string) { w.ContentType = ct }

// Store writes page images to a configured GCS bucket.
type Store struct {
	newWriter objectWriterFactory
	cfg       Config
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newStore(func(ctx context.Context, bucket, key string) objectWriter {
		return gcsWriter{client.Bucket(bucket).Object(key).NewWriter(ctx)}
	}, cfg)
}

func newStore(factory objectWriterFactory, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{newWriter: factory, cfg: cfg}, nil
}

// PutObject uploads data to the configured bucket and returns its URL.
func (s *Store) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	writer := s.newWriter(ctx, s.cfg.Bucket, key)
	if contentType != "" {
		writer.SetContentType(contentType)
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	if s.cfg.PublicBase != "" {
		return strings.TrimRight(s.cfg.PublicBase, "/") + "/" + key, nil
	}
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, key), nil
}

// Package s3 provides a blob store backed by Amazon S3.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config captures the parameters required to write to S3.
type Config struct {
	Bucket string
	// PublicBase, when set, replaces the uploader's location in returned URLs.
	PublicBase string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Store writes page images to an S3 bucket through the multipart upload manager.
type Store struct {
	uploader uploader
	cfg      Config
}

// New loads the default AWS config chain and creates a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsConfig, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newStore(manager.NewUploader(s3.NewFromConfig(awsConfig)), cfg)
}

func newStore(up uploader, cfg Config) (*Store, error) {
	if up == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{uploader: up, cfg: cfg}, nil
}

// PutObject uploads data and returns its URL.
func (s *Store) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	if s.cfg.PublicBase != "" {
		return strings.TrimRight(s.cfg.PublicBase, "/") + "/" + key, nil
	}
	if out != nil && out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key), nil
}

// Package ocr wraps transcription engines with the retry policy shared by all stages.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
)

// RetryConfig bounds the attempts made against an engine.
type RetryConfig struct {
	// Engine labels logs and metrics.
	Engine      string
	MaxAttempts int
	// Base is multiplied by the attempt number to get the pause after a failure.
	Base time.Duration
}

// Retrying is an archive.Transcriber that retries another Transcriber.
// Empty responses are returned immediately since a redacted page stays redacted.
type Retrying struct {
	inner  archive.Transcriber
	cfg    RetryConfig
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

var _ archive.Transcriber = (*Retrying)(nil)

// NewRetrying wraps inner with the retry policy in cfg.
func NewRetrying(inner archive.Transcriber, cfg RetryConfig, logger *zap.Logger) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Engine == "" {
		cfg.Engine = "ocr"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		inner:  inner,
		cfg:    cfg,
		logger: logger.Named("ocr").With(zap.String("engine", cfg.Engine)),
		sleep:  Sleep,
	}
}

// Transcribe calls the wrapped engine until it succeeds, reports an empty page,
// or runs out of attempts. Exhaustion wraps archive.ErrTransient and the last cause.
func (r *Retrying) Transcribe(ctx context.Context, image []byte, mimeType string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		text, err := r.inner.Transcribe(ctx, image, mimeType)
		metrics.ObserveOCRAttempt(r.cfg.Engine, archive.Classify(err))
		if err == nil {
			return text, nil
		}
		if errors.Is(err, archive.ErrEmptyResponse) {
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err
		r.logger.Warn("ocr attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Error(err),
		)
		if attempt < r.cfg.MaxAttempts {
			if err := r.sleep(ctx, r.cfg.Base*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("ocr failed after %d attempts: %w: %w", r.cfg.MaxAttempts, archive.ErrTransient, lastErr)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

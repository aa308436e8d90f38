// Package worker implements the fetcher worker loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/fetcher"
)

// Handler processes one queue item.
type Handler interface {
	Handle(ctx context.Context, item archive.QueueItem) (fetcher.Outcome, error)
}

// Config controls Worker behavior.
type Config struct {
	// Delay is the pause after each item, keeping request pressure on the archive low.
	Delay time.Duration
}

// Worker consumes queue items and hands them to the fetcher.
type Worker struct {
	id      int
	queue   archive.Queue
	handler Handler
	cfg     Config
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

// New constructs a Worker.
func New(id int, queue archive.Queue, handler Handler, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		logger:  logger.Named("worker").With(zap.Int("worker", id)),
		sleep:   pause,
	}
}

// Run blocks, consuming queue items until the queue closes or the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, archive.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, item)
		if err := w.sleep(ctx, w.cfg.Delay); err != nil {
			return
		}
	}
}

// process handles one item and always acknowledges it, so a failed item
// cannot stall the crawler waiting on the listing page.
func (w *Worker) process(ctx context.Context, item archive.QueueItem) {
	defer w.queue.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("fetch panicked", zap.String("url", item.URL), zap.Any("panic", r))
		}
	}()
	outcome, err := w.handler.Handle(ctx, item)
	if err != nil {
		w.logger.Debug("item finished with error",
			zap.String("url", item.URL),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}

func pause(ctx context.Context, d time.Duration) error {
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

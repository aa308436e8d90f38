// Package dispatcher manages worker fan-out over the work queue.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	workers []*worker.Worker
}

// New creates a Dispatcher with n workers sharing queue and handler.
func New(n int, queue archive.Queue, handler worker.Handler, cfg worker.Config, logger *zap.Logger) *Dispatcher {
	if n <= 0 {
		n = 1
	}
	workers := make([]*worker.Worker, 0, n)
	for i := range n {
		workers = append(workers, worker.New(i+1, queue, handler, cfg, logger))
	}
	return &Dispatcher{workers: workers}
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts all workers and blocks until every worker has stopped,
// which happens once the queue is closed or the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

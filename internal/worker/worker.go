package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Compactor reclaims space in the durable session tier.
// This allows us to mock the storage in tests.
type Compactor interface {
	Compact() error
}

type Worker struct {
	store    Compactor
	logger   *zap.Logger
	interval time.Duration
}

// NewWorker initializes a worker compacting store every interval
func NewWorker(store Compactor, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{
		store:    store,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the worker loop until ctx is cancelled
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("GC worker started", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("GC worker shutting down")
			return
		case <-ticker.C:
			w.runOnce()
		}
	}
}

func (w *Worker) runOnce() {
	start := time.Now()
	if err := w.store.Compact(); err != nil {
		w.logger.Error("Value log GC failed", zap.Error(err))
		return
	}
	w.logger.Debug("Value log GC complete", zap.Duration("took", time.Since(start)))
}

package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradeview/marketdata/internal/marketdata"
	"github.com/tradeview/marketdata/internal/observ"
)

type writeJob struct {
	symbol string
	tf     marketdata.Timeframe
	bars   []marketdata.Bar
}

// Writer drains fire-and-forget write-through jobs onto the store. The
// resolver never blocks a response on a store write: jobs are enqueued
// without waiting, run under a detached context so a caller disconnect
// cannot cancel them, and failures are logged, not surfaced.
type Writer struct {
	store  *Store
	jobs   chan writeJob
	logger *zap.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
}

const writeTimeout = 10 * time.Second

// NewWriter starts the background worker. queueSize bounds in-flight jobs;
// when the queue is full new jobs are dropped and counted.
func NewWriter(store *Store, queueSize int, logger *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &Writer{
		store:  store,
		jobs:   make(chan writeJob, queueSize),
		logger: logger,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Enqueue hands bars to the background worker without blocking.
func (w *Writer) Enqueue(symbol string, tf marketdata.Timeframe, bars []marketdata.Bar) {
	if len(bars) == 0 {
		return
	}
	select {
	case w.jobs <- writeJob{symbol: symbol, tf: tf, bars: bars}:
	default:
		observ.StoreWriteDrops.Inc()
		w.logger.Warn("write-through queue full, dropping bars",
			zap.String("symbol", symbol),
			zap.String("timeframe", string(tf)),
			zap.Int("bars", len(bars)))
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		// Detached context: background write-throughs outlive the request
		// that triggered them.
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.store.StoreBars(ctx, job.symbol, job.tf, job.bars)
		cancel()
		if err != nil {
			observ.StoreWriteFailures.Inc()
			w.logger.Warn("background bar write failed",
				zap.String("symbol", job.symbol),
				zap.String("timeframe", string(job.tf)),
				zap.Error(err))
		}
	}
}

// Close stops accepting jobs and waits for queued writes to drain.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.jobs)
	})
	w.wg.Wait()
}

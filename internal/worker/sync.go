package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/timejump-backend/internal/config"
)

// ScoreSource reads the authoritative best scores, satisfied by
// postgres.Repository.
type ScoreSource interface {
	AllBestScores(ctx context.Context) (map[string]int64, error)
}

// ScoreCache is the rebuildable leaderboard cache, satisfied by redis.Cache.
type ScoreCache interface {
	BatchSetScores(ctx context.Context, scores map[string]int64) error
}

// SyncWorker periodically rebuilds the Redis leaderboard from the
// authoritative player records, repairing drift from missed cache writes.
type SyncWorker struct {
	source  ScoreSource
	cache   ScoreCache
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(source ScoreSource, cache ScoreCache, cfg *config.SyncConfig, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		source: source,
		cache:  cache,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("sync cycle failed", "error", err)
			}
		}
	}
}

// RunOnce rebuilds the leaderboard cache from the store in one pass. Also
// called at startup so the cache is warm before traffic arrives.
func (w *SyncWorker) RunOnce(ctx context.Context) error {
	startTime := time.Now()

	scores, err := w.source.AllBestScores(ctx)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		w.logger.Debug("no scores to sync")
		return nil
	}

	// Push in batches to keep pipeline sizes bounded.
	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	batch := make(map[string]int64, batchSize)
	for playerID, score := range scores {
		batch[playerID] = score
		if len(batch) >= batchSize {
			if err := w.cache.BatchSetScores(ctx, batch); err != nil {
				return err
			}
			batch = make(map[string]int64, batchSize)
		}
	}
	if len(batch) > 0 {
		if err := w.cache.BatchSetScores(ctx, batch); err != nil {
			return err
		}
	}

	w.logger.Info("sync cycle completed",
		"duration", time.Since(startTime),
		"players", len(scores),
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

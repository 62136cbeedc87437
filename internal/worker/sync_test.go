package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timejump-backend/internal/config"
)

type fakeSource struct {
	scores map[string]int64
	err    error
}

func (f *fakeSource) AllBestScores(context.Context) (map[string]int64, error) {
	return f.scores, f.err
}

type fakeCache struct {
	batches []map[string]int64
}

func (f *fakeCache) BatchSetScores(_ context.Context, scores map[string]int64) error {
	cp := make(map[string]int64, len(scores))
	for k, v := range scores {
		cp[k] = v
	}
	f.batches = append(f.batches, cp)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRunOnce_PushesAllScoresInBatches(t *testing.T) {
	source := &fakeSource{scores: map[string]int64{}}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		source.scores[id] = int64(len(id)) * 100
	}
	cache := &fakeCache{}
	w := NewSyncWorker(source, cache, &config.SyncConfig{BatchSize: 2}, testLogger())

	require.NoError(t, w.RunOnce(context.Background()))

	total := 0
	for _, b := range cache.batches {
		assert.LessOrEqual(t, len(b), 2)
		total += len(b)
	}
	assert.Equal(t, 5, total)
}

func TestRunOnce_EmptyStoreIsNoop(t *testing.T) {
	cache := &fakeCache{}
	w := NewSyncWorker(&fakeSource{}, cache, &config.SyncConfig{}, testLogger())

	require.NoError(t, w.RunOnce(context.Background()))
	assert.Empty(t, cache.batches)
}

func TestRunOnce_PropagatesSourceError(t *testing.T) {
	boom := errors.New("db down")
	w := NewSyncWorker(&fakeSource{err: boom}, &fakeCache{}, &config.SyncConfig{}, testLogger())

	assert.ErrorIs(t, w.RunOnce(context.Background()), boom)
}

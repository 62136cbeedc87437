package rooms

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timejump-backend/internal/domain"
)

type memResults struct {
	mu    sync.Mutex
	saved map[string]map[string]int64
}

func newMemResults() *memResults {
	return &memResults{saved: make(map[string]map[string]int64)}
}

func (m *memResults) SaveRoomResults(_ context.Context, roomID string, scores map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[roomID] = scores
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestRegistry(t *testing.T) (*Registry, *memResults) {
	t.Helper()
	store := newMemResults()
	return NewRegistry(store, time.Hour, testLogger()), store
}

func TestCreate_ValidatesCapacity(t *testing.T) {
	reg, _ := newTestRegistry(t)

	for _, n := range []int{1, 5, 0} {
		_, err := reg.Create("host", n)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, "max_players=%d", n)
	}

	room, err := reg.Create("host", 4)
	require.NoError(t, err)
	assert.Len(t, room.ID, 8)
	assert.Equal(t, "host", room.HostID)
	assert.Equal(t, domain.RoomStatusWaiting, room.Status)
	require.Len(t, room.Players, 1)
	assert.Equal(t, "host", room.Players[0].ID)
}

func TestJoin_FullRoomAndDuplicates(t *testing.T) {
	reg, _ := newTestRegistry(t)
	room, err := reg.Create("host", 2)
	require.NoError(t, err)

	_, err = reg.Join(room.ID, "host")
	assert.ErrorIs(t, err, domain.ErrAlreadyInRoom)

	joined, err := reg.Join(room.ID, "p2")
	require.NoError(t, err)
	assert.Len(t, joined.Players, 2)

	_, err = reg.Join(room.ID, "p3")
	assert.ErrorIs(t, err, domain.ErrRoomFull)

	_, err = reg.Join("NOPE1234", "p3")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestSetReady_FlipsRoomWhenAllReady(t *testing.T) {
	reg, _ := newTestRegistry(t)
	room, err := reg.Create("host", 3)
	require.NoError(t, err)
	_, err = reg.Join(room.ID, "p2")
	require.NoError(t, err)

	r1, err := reg.SetReady(room.ID, "host")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusWaiting, r1.Status)

	r2, err := reg.SetReady(room.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusReady, r2.Status)

	_, err = reg.SetReady(room.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestSyncScore_TracksWinnerAndNeverLowers(t *testing.T) {
	reg, _ := newTestRegistry(t)
	room, err := reg.Create("host", 2)
	require.NoError(t, err)
	_, err = reg.Join(room.ID, "p2")
	require.NoError(t, err)

	state, err := reg.SyncScore(room.ID, "host", 300)
	require.NoError(t, err)
	assert.Equal(t, "host", state.WinnerID)
	assert.False(t, state.GameEnded)

	state, err = reg.SyncScore(room.ID, "p2", 500)
	require.NoError(t, err)
	assert.Equal(t, "p2", state.WinnerID)

	// A lower resync does not take the lead back.
	state, err = reg.SyncScore(room.ID, "p2", 100)
	require.NoError(t, err)
	assert.Equal(t, "p2", state.WinnerID)
	for _, p := range state.Scores {
		if p.ID == "p2" {
			assert.Equal(t, int64(500), p.Score)
		}
	}
}

func TestEnd_HostOnlyAndPersistsScores(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	room, err := reg.Create("host", 2)
	require.NoError(t, err)
	_, err = reg.Join(room.ID, "p2")
	require.NoError(t, err)
	_, err = reg.SyncScore(room.ID, "host", 300)
	require.NoError(t, err)
	_, err = reg.SyncScore(room.ID, "p2", 500)
	require.NoError(t, err)

	_, err = reg.End(ctx, room.ID, "p2")
	assert.ErrorIs(t, err, domain.ErrNotRoomHost)

	state, err := reg.End(ctx, room.ID, "host")
	require.NoError(t, err)
	assert.True(t, state.GameEnded)
	assert.Equal(t, "p2", state.WinnerID)

	saved := store.saved[room.ID]
	require.NotNil(t, saved)
	assert.Equal(t, int64(300), saved["host"])
	assert.Equal(t, int64(500), saved["p2"])

	// The room is gone once ended.
	_, err = reg.Get(room.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestPrune_DropsStaleRoomsOnly(t *testing.T) {
	reg, store := newTestRegistry(t)

	stale, err := reg.Create("host", 2)
	require.NoError(t, err)
	reg.mu.Lock()
	reg.rooms[stale.ID].CreatedAt = time.Now().Add(-2 * time.Hour)
	reg.mu.Unlock()

	fresh, err := reg.Create("host2", 2)
	require.NoError(t, err)

	removed := reg.prune(time.Now())
	assert.Equal(t, 1, removed)

	_, err = reg.Get(stale.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = reg.Get(fresh.ID)
	assert.NoError(t, err)

	// Abandoned rooms never write results.
	assert.Empty(t, store.saved)
}

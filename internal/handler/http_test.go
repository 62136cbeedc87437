package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timejump-backend/internal/config"
	"github.com/timejump-backend/internal/domain"
	"github.com/timejump-backend/internal/rooms"
	"github.com/timejump-backend/internal/service"
	"github.com/timejump-backend/internal/websocket"
)

// fakeStore backs the services with process memory for router tests.
type fakeStore struct {
	mu       sync.Mutex
	players  map[string]*domain.Player
	hashes   map[string]string
	sessions map[string][]domain.GameSession
	rooms    map[string]map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		players:  make(map[string]*domain.Player),
		hashes:   make(map[string]string),
		sessions: make(map[string][]domain.GameSession),
		rooms:    make(map[string]map[string]int64),
	}
}

func (f *fakeStore) CreatePlayer(_ context.Context, p *domain.Player, hash, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.players[p.ID] = &cp
	f.hashes[p.Email] = hash
	return nil
}

func (f *fakeStore) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players {
		if p.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetPlayer(_ context.Context, id string) (*domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	cp := *p
	cp.Achievements = append([]string(nil), p.Achievements...)
	return &cp, nil
}

func (f *fakeStore) GetPlayerByEmail(_ context.Context, email string) (*domain.Player, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players {
		if p.Email == email {
			cp := *p
			return &cp, f.hashes[email], nil
		}
	}
	return nil, "", domain.ErrPlayerNotFound
}

func (f *fakeStore) UpdateLogin(_ context.Context, id, _ string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.LastLogin = at
	return nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, id, name, avatar string) (*domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	if name != "" {
		p.Name = name
	}
	if avatar != "" {
		p.Avatar = avatar
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) SaveProgress(_ context.Context, p *domain.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.players[p.ID]; !ok {
		return domain.ErrPlayerNotFound
	}
	cp := *p
	cp.Achievements = append([]string(nil), p.Achievements...)
	f.players[p.ID] = &cp
	return nil
}

func (f *fakeStore) SaveProgressWithSession(ctx context.Context, p *domain.Player, s domain.GameSession) error {
	if err := f.SaveProgress(ctx, p); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[p.ID] = append([]domain.GameSession{s}, f.sessions[p.ID]...)
	return nil
}

func (f *fakeStore) RecentSessions(_ context.Context, id string, limit int) ([]domain.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions := f.sessions[id]
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return append([]domain.GameSession(nil), sessions...), nil
}

func (f *fakeStore) TopPlayers(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]domain.LeaderboardEntry, 0, len(f.players))
	for _, p := range f.players {
		entries = append(entries, domain.LeaderboardEntry{PlayerID: p.ID, Name: p.Name, Score: p.BestScore})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries, nil
}

func (f *fakeStore) SaveRoomResults(_ context.Context, roomID string, scores map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[roomID] = scores
	return nil
}

// fakeCache implements service.ProgressCache in memory.
type fakeCache struct {
	mu        sync.Mutex
	scores    map[string]int64
	infos     map[string]domain.PlayerInfo
	tokens    map[string]string
	cooldowns map[string]time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		scores:    make(map[string]int64),
		infos:     make(map[string]domain.PlayerInfo),
		tokens:    make(map[string]string),
		cooldowns: make(map[string]time.Time),
	}
}

func (c *fakeCache) SetPlayerInfo(_ context.Context, id, name, avatar string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos[id] = domain.PlayerInfo{ID: id, Name: name, Avatar: avatar}
	return nil
}

func (c *fakeCache) GetPlayerInfo(_ context.Context, id string) (*domain.PlayerInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.infos[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &info, nil
}

func (c *fakeCache) SetBestScoreIfBetter(_ context.Context, id string, score int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.scores[id]; ok && score <= cur {
		return false, nil
	}
	c.scores[id] = score
	return true, nil
}

func (c *fakeCache) TopN(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]domain.LeaderboardEntry, 0, len(c.scores))
	for id, score := range c.scores {
		entries = append(entries, domain.LeaderboardEntry{PlayerID: id, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries, nil
}

func (c *fakeCache) PlayerRank(ctx context.Context, id string) (*domain.LeaderboardEntry, error) {
	entries, _ := c.TopN(ctx, 1<<30)
	for _, e := range entries {
		if e.PlayerID == id {
			return &e, nil
		}
	}
	return nil, domain.ErrPlayerNotFound
}

func (c *fakeCache) IssueAdToken(_ context.Context, token domain.AdToken, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[token.ID] = token.PlayerID
	return nil
}

func (c *fakeCache) ConsumeAdToken(_ context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.tokens[id]
	if !ok {
		return "", domain.ErrAdTokenInvalid
	}
	delete(c.tokens, id)
	return owner, nil
}

func (c *fakeCache) ArmAdCooldown(_ context.Context, id string, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldowns[id] = time.Now().Add(d)
	return nil
}

func (c *fakeCache) AdCooldownRemaining(_ context.Context, id string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldowns[id]
	if !ok || time.Now().After(until) {
		return 0, nil
	}
	return time.Until(until), nil
}

// fakeLimiter allows everything until denied is flipped.
type fakeLimiter struct {
	denied bool
}

func (l *fakeLimiter) Allow(context.Context, string, string, time.Duration, int) (bool, error) {
	return !l.denied, nil
}

type testEnv struct {
	router  http.Handler
	store   *fakeStore
	cache   *fakeCache
	limiter *fakeLimiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	store := newFakeStore()
	cache := newFakeCache()
	limiter := &fakeLimiter{}
	cfg := &config.DefaultConfig().Game

	players := service.NewPlayerService(store, cache, cfg, logger)
	game := service.NewGameService(store, cache, cfg, logger)
	registry := rooms.NewRegistry(store, cfg.RoomMaxAge, logger)
	hub := websocket.NewHub(logger)

	h := NewHandler(players, game, registry, hub, limiter, cfg, logger)
	return &testEnv{router: h.Router(), store: store, cache: cache, limiter: limiter}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func (e *testEnv) register(t *testing.T, name, email string) string {
	t.Helper()
	rec, resp := e.do(t, http.MethodPost, "/api/v1/players/register", domain.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: "supersecret",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	data, _ := json.Marshal(resp.Data)
	var auth domain.AuthResponse
	require.NoError(t, json.Unmarshal(data, &auth))
	return auth.Player.ID
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		rec, resp := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
	}
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "first", "dup@example.com")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/players/register", domain.RegisterRequest{
		Name:     "second",
		Email:    "dup@example.com",
		Password: "supersecret",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)
}

func TestRegister_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/players/register", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "jumper", "login@example.com")

	rec, _ := env.do(t, http.MethodPost, "/api/v1/players/login", domain.LoginRequest{
		Email:    "login@example.com",
		Password: "wrongwrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitScore_FlowsIntoLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "jumper", "flow@example.com")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/scores/"+id, domain.ScoreSubmission{
		Score:    1500,
		Crystals: 20,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data, _ := json.Marshal(resp.Data)
	var entries []domain.LeaderboardEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].PlayerID)
	assert.Equal(t, int64(1500), entries[0].Score)
	assert.Equal(t, "jumper", entries[0].Name)
}

func TestSubmitScore_UnknownPlayer(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/scores/ghost", domain.ScoreSubmission{Score: 10})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDailyReward_ClaimThenTooMany(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "jumper", "daily@example.com")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/rewards/daily/"+id+"/claim", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	rec, resp = env.do(t, http.MethodPost, "/api/v1/rewards/daily/"+id+"/claim", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestAds_ShortWatchIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "jumper", "ads@example.com")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/ads/view", map[string]string{"player_id": id})
	require.Equal(t, http.StatusOK, rec.Code)

	data, _ := json.Marshal(resp.Data)
	var grant domain.AdViewGrant
	require.NoError(t, json.Unmarshal(data, &grant))

	rec, _ = env.do(t, http.MethodPost, "/api/v1/ads/reward", map[string]any{
		"player_id":     id,
		"ad_id":         grant.AdID,
		"watch_time_ms": 4000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/ads/reward", map[string]any{
		"player_id":     id,
		"ad_id":         grant.AdID,
		"watch_time_ms": 6000,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_DeniedRequestsGet429(t *testing.T) {
	env := newTestEnv(t)
	env.limiter.denied = true

	rec, _ := env.do(t, http.MethodPost, "/api/v1/players/register", domain.RegisterRequest{
		Name:     "jumper",
		Email:    "limited@example.com",
		Password: "supersecret",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRooms_EndIsHostOnly(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/rooms", map[string]any{
		"player_id":   "host",
		"max_players": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	data, _ := json.Marshal(resp.Data)
	var room domain.Room
	require.NoError(t, json.Unmarshal(data, &room))

	rec, _ = env.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/join", map[string]string{"player_id": "p2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/end", map[string]string{"player_id": "p2"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/end", map[string]string{"player_id": "host"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, env.store.rooms[room.ID])
}

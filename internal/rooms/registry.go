// Package rooms manages ephemeral multiplayer match rooms. Rooms live in
// process memory; only finished results reach the store.
package rooms

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timejump-backend/internal/domain"
)

const (
	MinPlayers = 2
	MaxPlayers = 4
)

// ResultStore persists finished room scores, satisfied by postgres.Repository.
type ResultStore interface {
	SaveRoomResults(ctx context.Context, roomID string, scores map[string]int64) error
}

// RoomBroadcaster pushes room state changes to subscribed WebSocket clients,
// satisfied by websocket.Hub.
type RoomBroadcaster interface {
	BroadcastRoomUpdate(roomID string, state domain.RoomScoreState)
}

// Registry holds all live rooms. Operations are serialized by a single
// mutex; room churn is low enough that finer locking buys nothing.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*domain.Room
	store  ResultStore
	hub    RoomBroadcaster
	maxAge time.Duration
	logger *slog.Logger
}

// NewRegistry creates a new room registry
func NewRegistry(store ResultStore, maxAge time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*domain.Room),
		store:  store,
		maxAge: maxAge,
		logger: logger,
	}
}

// SetHub attaches the WebSocket hub for live room updates
func (r *Registry) SetHub(hub RoomBroadcaster) {
	r.hub = hub
}

// newRoomCode derives a short join code. Eight hex chars keep codes easy to
// share while collisions stay negligible at this scale.
func newRoomCode() string {
	return strings.ToUpper(uuid.New().String()[:8])
}

// Create opens a new room hosted by hostID.
func (r *Registry) Create(hostID string, maxPlayers int) (*domain.Room, error) {
	if maxPlayers < MinPlayers || maxPlayers > MaxPlayers {
		return nil, &domain.ValidationError{
			Field:   "max_players",
			Message: "must be between 2 and 4",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room := &domain.Room{
		ID:         newRoomCode(),
		HostID:     hostID,
		Players:    []domain.RoomPlayer{{ID: hostID}},
		MaxPlayers: maxPlayers,
		Status:     domain.RoomStatusWaiting,
		CreatedAt:  time.Now(),
	}
	r.rooms[room.ID] = room

	r.logger.Info("room created", "room_id", room.ID, "host_id", hostID, "max_players", maxPlayers)
	return cloneRoom(room), nil
}

// Join adds a player to a waiting room.
func (r *Registry) Join(roomID, playerID string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || room.Status == domain.RoomStatusFinished {
		return nil, domain.ErrRoomNotFound
	}
	for _, p := range room.Players {
		if p.ID == playerID {
			return nil, domain.ErrAlreadyInRoom
		}
	}
	if len(room.Players) >= room.MaxPlayers {
		return nil, domain.ErrRoomFull
	}

	room.Players = append(room.Players, domain.RoomPlayer{ID: playerID})
	snapshot := cloneRoom(room)
	r.broadcast(room)

	r.logger.Info("player joined room", "room_id", roomID, "player_id", playerID)
	return snapshot, nil
}

// SetReady marks a player ready. Once every player in a full-enough room is
// ready the room flips to the ready state.
func (r *Registry) SetReady(roomID, playerID string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || room.Status == domain.RoomStatusFinished {
		return nil, domain.ErrRoomNotFound
	}

	found := false
	allReady := true
	for i := range room.Players {
		if room.Players[i].ID == playerID {
			room.Players[i].Ready = true
			found = true
		}
		if !room.Players[i].Ready {
			allReady = false
		}
	}
	if !found {
		return nil, domain.ErrPlayerNotFound
	}
	if allReady && len(room.Players) >= MinPlayers {
		room.Status = domain.RoomStatusReady
	}

	snapshot := cloneRoom(room)
	r.broadcast(room)
	return snapshot, nil
}

// SyncScore records a player's in-match score and returns the room's score
// state. Scores only move up within a match.
func (r *Registry) SyncScore(roomID, playerID string, score int64) (*domain.RoomScoreState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	found := false
	for i := range room.Players {
		if room.Players[i].ID == playerID {
			if score > room.Players[i].Score {
				room.Players[i].Score = score
			}
			found = true
			break
		}
	}
	if !found {
		return nil, domain.ErrPlayerNotFound
	}

	state := scoreState(room)
	if r.hub != nil {
		r.hub.BroadcastRoomUpdate(room.ID, *state)
	}
	return state, nil
}

// End finishes a room. Only the host may end it; final scores are persisted
// and the winner is the highest score at end time.
func (r *Registry) End(ctx context.Context, roomID, playerID string) (*domain.RoomScoreState, error) {
	r.mu.Lock()

	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrRoomNotFound
	}
	if room.HostID != playerID {
		r.mu.Unlock()
		return nil, domain.ErrNotRoomHost
	}

	room.Status = domain.RoomStatusFinished
	state := scoreState(room)
	state.GameEnded = true

	scores := make(map[string]int64, len(room.Players))
	for _, p := range room.Players {
		scores[p.ID] = p.Score
	}
	delete(r.rooms, roomID)
	r.mu.Unlock()

	if err := r.store.SaveRoomResults(ctx, roomID, scores); err != nil {
		r.logger.Error("failed to persist room results", "room_id", roomID, "error", err)
		return nil, err
	}

	if r.hub != nil {
		r.hub.BroadcastRoomUpdate(roomID, *state)
	}

	r.logger.Info("room ended", "room_id", roomID, "winner_id", state.WinnerID)
	return state, nil
}

// Get returns a snapshot of a live room.
func (r *Registry) Get(roomID string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

// Run prunes abandoned rooms until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.maxAge / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(time.Now())
		}
	}
}

// prune drops rooms older than maxAge. Abandoned rooms never persist scores.
func (r *Registry) prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, room := range r.rooms {
		if now.Sub(room.CreatedAt) > r.maxAge {
			delete(r.rooms, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("pruned stale rooms", "count", removed)
	}
	return removed
}

func (r *Registry) broadcast(room *domain.Room) {
	if r.hub == nil {
		return
	}
	r.hub.BroadcastRoomUpdate(room.ID, *scoreState(room))
}

func scoreState(room *domain.Room) *domain.RoomScoreState {
	state := &domain.RoomScoreState{
		RoomID:    room.ID,
		Scores:    append([]domain.RoomPlayer(nil), room.Players...),
		GameEnded: room.Status == domain.RoomStatusFinished,
	}
	var best int64 = -1
	for _, p := range room.Players {
		if p.Score > best {
			best = p.Score
			state.WinnerID = p.ID
		}
	}
	return state
}

func cloneRoom(room *domain.Room) *domain.Room {
	cp := *room
	cp.Players = append([]domain.RoomPlayer(nil), room.Players...)
	return &cp
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/timejump-backend/internal/config"
	"github.com/timejump-backend/internal/domain"
	"github.com/timejump-backend/internal/rooms"
	"github.com/timejump-backend/internal/service"
	"github.com/timejump-backend/internal/websocket"
)

// RateLimiter counts requests per scope+subject, satisfied by redis.Cache.
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string, window time.Duration, max int) (bool, error)
}

// Handler provides HTTP handlers for the game API
type Handler struct {
	players *service.PlayerService
	game    *service.GameService
	rooms   *rooms.Registry
	hub     *websocket.Hub
	limiter RateLimiter
	config  *config.GameConfig
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	players *service.PlayerService,
	game *service.GameService,
	roomRegistry *rooms.Registry,
	hub *websocket.Hub,
	limiter RateLimiter,
	cfg *config.GameConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		players: players,
		game:    game,
		rooms:   roomRegistry,
		hub:     hub,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Account operations
		r.Route("/players", func(r chi.Router) {
			r.With(h.rateLimit("auth")).Post("/register", h.Register)
			r.With(h.rateLimit("auth")).Post("/login", h.Login)

			r.Route("/{playerID}", func(r chi.Router) {
				r.Get("/", h.GetProfile)
				r.Put("/", h.UpdateProfile)
			})
		})

		// Score operations
		r.Route("/scores/{playerID}", func(r chi.Router) {
			r.Post("/", h.SubmitScore)
			r.Get("/", h.GetHistory)
			r.Post("/timefreeze", h.RecordTimeFreeze)
		})

		// Leaderboard
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/leaderboard/{playerID}/rank", h.GetPlayerRank)

		// Rewards
		r.Route("/rewards", func(r chi.Router) {
			r.Get("/daily/{playerID}", h.GetDailyRewardStatus)
			r.Post("/daily/{playerID}/claim", h.ClaimDailyReward)
			r.Get("/achievements/{playerID}", h.GetAchievements)
		})

		// Ad rewards
		r.Route("/ads", func(r chi.Router) {
			r.Use(h.rateLimit("ads"))
			r.Post("/view", h.StartAdView)
			r.Post("/reward", h.RedeemAdReward)
		})

		// Multiplayer rooms
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.CreateRoom)
			r.Route("/{roomID}", func(r chi.Router) {
				r.Get("/", h.GetRoom)
				r.Post("/join", h.JoinRoom)
				r.Post("/ready", h.SetReady)
				r.Post("/sync", h.SyncScore)
				r.Post("/end", h.EndRoom)
			})
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimit counts requests per client IP within the configured window.
// A limiter outage fails open: the counter is advisory, not a ledger.
func (h *Handler) rateLimit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := h.limiter.Allow(r.Context(), scope, r.RemoteAddr, h.config.RateLimitWindow, h.config.RateLimitMax)
			if err != nil {
				h.logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
			} else if !allowed {
				h.writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// handleError maps domain errors onto HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, err error, action string) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var ne *domain.NotEligibleError
	if errors.As(err, &ne) {
		if ne.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(ne.RetryAfter.Seconds())+1))
			h.writeError(w, http.StatusTooManyRequests, err)
			return
		}
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrAlreadyInRoom):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domain.ErrNotRoomHost):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrAdTokenInvalid):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("request failed", "action", action, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// Register handles account creation
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	resp, err := h.players.Register(r.Context(), req)
	if err != nil {
		h.handleError(w, err, "register")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: resp})
}

// Login handles account login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	resp, err := h.players.Login(r.Context(), req)
	if err != nil {
		h.handleError(w, err, "login")
		return
	}

	h.writeSuccess(w, resp)
}

// GetProfile returns a player's full record
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	player, err := h.players.GetProfile(r.Context(), playerID)
	if err != nil {
		h.handleError(w, err, "get profile")
		return
	}

	h.writeSuccess(w, player)
}

// UpdateProfile updates display attributes
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	player, err := h.players.UpdateProfile(r.Context(), playerID, req)
	if err != nil {
		h.handleError(w, err, "update profile")
		return
	}

	h.writeSuccess(w, player)
}

// SubmitScore applies a gameplay result
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var sub domain.ScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.game.SubmitScore(r.Context(), playerID, sub)
	if err != nil {
		h.handleError(w, err, "submit score")
		return
	}

	h.writeSuccess(w, result)
}

// GetHistory returns recent gameplay sessions
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	sessions, err := h.players.History(r.Context(), playerID, limit)
	if err != nil {
		h.handleError(w, err, "get history")
		return
	}

	h.writeSuccess(w, sessions)
}

// RecordTimeFreeze counts a time-freeze power-up use
func (h *Handler) RecordTimeFreeze(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	uses, unlocks, err := h.game.RecordTimeFreeze(r.Context(), playerID)
	if err != nil {
		h.handleError(w, err, "record time freeze")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"time_freeze_uses": uses,
		"new_unlocks":      unlocks,
	})
}

// GetLeaderboard returns the global top entries
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.game.Leaderboard(r.Context(), limit)
	if err != nil {
		h.handleError(w, err, "get leaderboard")
		return
	}

	h.writeSuccess(w, entries)
}

// GetPlayerRank returns a player's leaderboard position
func (h *Handler) GetPlayerRank(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	entry, err := h.game.PlayerRank(r.Context(), playerID)
	if err != nil {
		h.handleError(w, err, "get player rank")
		return
	}

	h.writeSuccess(w, entry)
}

// GetDailyRewardStatus reports claim eligibility
func (h *Handler) GetDailyRewardStatus(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	status, err := h.game.DailyRewardStatus(r.Context(), playerID)
	if err != nil {
		h.handleError(w, err, "get daily reward status")
		return
	}

	h.writeSuccess(w, status)
}

// ClaimDailyReward pays out the current streak day
func (h *Handler) ClaimDailyReward(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.game.ClaimDailyReward(r.Context(), playerID)
	if err != nil {
		h.handleError(w, err, "claim daily reward")
		return
	}

	h.writeSuccess(w, result)
}

// GetAchievements returns the annotated achievement catalog
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	view, err := h.game.Achievements(r.Context(), playerID)
	if err != nil {
		h.handleError(w, err, "get achievements")
		return
	}

	h.writeSuccess(w, view)
}

type adViewRequest struct {
	PlayerID string `json:"player_id"`
}

// StartAdView issues a single-use ad token
func (h *Handler) StartAdView(w http.ResponseWriter, r *http.Request) {
	var req adViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	grant, err := h.game.StartAdView(r.Context(), req.PlayerID)
	if err != nil {
		h.handleError(w, err, "start ad view")
		return
	}

	h.writeSuccess(w, grant)
}

type adRewardRequest struct {
	PlayerID    string `json:"player_id"`
	AdID        string `json:"ad_id"`
	WatchTimeMs int64  `json:"watch_time_ms"`
}

// RedeemAdReward pays out a watched ad
func (h *Handler) RedeemAdReward(w http.ResponseWriter, r *http.Request) {
	var req adRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.game.RedeemAdReward(r.Context(), req.PlayerID, req.AdID, req.WatchTimeMs)
	if err != nil {
		h.handleError(w, err, "redeem ad reward")
		return
	}

	h.writeSuccess(w, result)
}

type createRoomRequest struct {
	PlayerID   string `json:"player_id"`
	MaxPlayers int    `json:"max_players"`
}

// CreateRoom opens a multiplayer room
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	room, err := h.rooms.Create(req.PlayerID, req.MaxPlayers)
	if err != nil {
		h.handleError(w, err, "create room")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: room})
}

// GetRoom returns a live room snapshot
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	room, err := h.rooms.Get(roomID)
	if err != nil {
		h.handleError(w, err, "get room")
		return
	}
	h.writeSuccess(w, room)
}

type roomPlayerRequest struct {
	PlayerID string `json:"player_id"`
}

// JoinRoom adds a player to a room
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var req roomPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	room, err := h.rooms.Join(roomID, req.PlayerID)
	if err != nil {
		h.handleError(w, err, "join room")
		return
	}

	h.writeSuccess(w, room)
}

// SetReady marks a player ready in a room
func (h *Handler) SetReady(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var req roomPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	room, err := h.rooms.SetReady(roomID, req.PlayerID)
	if err != nil {
		h.handleError(w, err, "set ready")
		return
	}

	h.writeSuccess(w, room)
}

type syncScoreRequest struct {
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}

// SyncScore records an in-match score
func (h *Handler) SyncScore(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var req syncScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	state, err := h.rooms.SyncScore(roomID, req.PlayerID, req.Score)
	if err != nil {
		h.handleError(w, err, "sync score")
		return
	}

	h.writeSuccess(w, state)
}

// EndRoom finishes a room (host only)
func (h *Handler) EndRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var req roomPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	state, err := h.rooms.End(r.Context(), roomID, req.PlayerID)
	if err != nil {
		h.handleError(w, err, "end room")
		return
	}

	h.writeSuccess(w, state)
}

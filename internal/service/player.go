package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/timejump-backend/internal/config"
	"github.com/timejump-backend/internal/domain"
)

// PlayerStore is the persistence surface the services depend on,
// satisfied by postgres.Repository.
type PlayerStore interface {
	CreatePlayer(ctx context.Context, p *domain.Player, passwordHash, token string) error
	EmailExists(ctx context.Context, email string) (bool, error)
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	GetPlayerByEmail(ctx context.Context, email string) (*domain.Player, string, error)
	UpdateLogin(ctx context.Context, playerID, token string, at time.Time) error
	UpdateProfile(ctx context.Context, playerID, name, avatar string) (*domain.Player, error)
	SaveProgress(ctx context.Context, p *domain.Player) error
	SaveProgressWithSession(ctx context.Context, p *domain.Player, s domain.GameSession) error
	RecentSessions(ctx context.Context, playerID string, limit int) ([]domain.GameSession, error)
	TopPlayers(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// InfoCache is the player-info caching surface, satisfied by redis.Cache.
type InfoCache interface {
	SetPlayerInfo(ctx context.Context, playerID, name, avatar string) error
	GetPlayerInfo(ctx context.Context, playerID string) (*domain.PlayerInfo, error)
}

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	defaultAvatars = []string{"🧑‍🚀", "🦊", "🐸", "🐼", "🦖", "🤖", "👾", "🐙"}
)

const (
	nameMinLen     = 3
	nameMaxLen     = 20
	passwordMinLen = 8
)

// PlayerService provides account lifecycle operations: registration, login,
// profile reads and updates, and gameplay history.
type PlayerService struct {
	store  PlayerStore
	cache  InfoCache
	config *config.GameConfig
	logger *slog.Logger
}

// NewPlayerService creates a new player service
func NewPlayerService(store PlayerStore, cache InfoCache, cfg *config.GameConfig, logger *slog.Logger) *PlayerService {
	return &PlayerService{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
	}
}

func validateName(name string) error {
	if len(name) < nameMinLen || len(name) > nameMaxLen {
		return &domain.ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("must be %d-%d characters", nameMinLen, nameMaxLen),
		}
	}
	return nil
}

// Register creates a new player account with zeroed progression state.
func (s *PlayerService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if !emailPattern.MatchString(req.Email) {
		return nil, &domain.ValidationError{Field: "email", Message: "malformed address"}
	}
	if len(req.Password) < passwordMinLen {
		return nil, &domain.ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", passwordMinLen),
		}
	}

	exists, err := s.store.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("checking email: %w", err)
	}
	if exists {
		return nil, domain.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now()
	player := &domain.Player{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Email:          req.Email,
		Avatar:         defaultAvatars[rand.Intn(len(defaultAvatars))],
		Achievements:   []string{},
		DailyRewardDay: 1,
		CreatedAt:      now,
		LastLogin:      now,
	}
	token := uuid.New().String()

	if err := s.store.CreatePlayer(ctx, player, string(hash), token); err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}

	if err := s.cache.SetPlayerInfo(ctx, player.ID, player.Name, player.Avatar); err != nil {
		s.logger.Warn("failed to cache player info", "player_id", player.ID, "error", err)
	}

	s.logger.Info("player registered", "player_id", player.ID, "name", player.Name)
	return &domain.AuthResponse{Player: player, Token: token}, nil
}

// Login verifies credentials and rotates the bearer token.
func (s *PlayerService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	player, hash, err := s.store.GetPlayerByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	now := time.Now()
	token := uuid.New().String()
	if err := s.store.UpdateLogin(ctx, player.ID, token, now); err != nil {
		return nil, fmt.Errorf("updating login: %w", err)
	}
	player.LastLogin = now

	s.logger.Info("player logged in", "player_id", player.ID)
	return &domain.AuthResponse{Player: player, Token: token}, nil
}

// GetProfile returns the full player record.
func (s *PlayerService) GetProfile(ctx context.Context, playerID string) (*domain.Player, error) {
	return s.store.GetPlayer(ctx, playerID)
}

// UpdateProfile changes display attributes only; progression fields are
// never writable through this path.
func (s *PlayerService) UpdateProfile(ctx context.Context, playerID string, req domain.UpdateProfileRequest) (*domain.Player, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name != "" {
		if err := validateName(req.Name); err != nil {
			return nil, err
		}
	}

	player, err := s.store.UpdateProfile(ctx, playerID, req.Name, req.Avatar)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetPlayerInfo(ctx, player.ID, player.Name, player.Avatar); err != nil {
		s.logger.Warn("failed to cache player info", "player_id", player.ID, "error", err)
	}

	return player, nil
}

// History returns a player's most recent gameplay sessions, newest first.
func (s *PlayerService) History(ctx context.Context, playerID string, limit int) ([]domain.GameSession, error) {
	if _, err := s.store.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}

	sessions, err := s.store.RecentSessions(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}
	if sessions == nil {
		sessions = []domain.GameSession{}
	}
	return sessions, nil
}

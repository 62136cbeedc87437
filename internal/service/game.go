package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/timejump-backend/internal/achievement"
	"github.com/timejump-backend/internal/config"
	"github.com/timejump-backend/internal/domain"
	"github.com/timejump-backend/internal/reward"
)

// ProgressCache is the hot-path caching surface the game service depends on,
// satisfied by redis.Cache.
type ProgressCache interface {
	InfoCache
	SetBestScoreIfBetter(ctx context.Context, playerID string, score int64) (bool, error)
	TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	PlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error)
	IssueAdToken(ctx context.Context, token domain.AdToken, ttl time.Duration) error
	ConsumeAdToken(ctx context.Context, tokenID string) (string, error)
	ArmAdCooldown(ctx context.Context, playerID string, cooldown time.Duration) error
	AdCooldownRemaining(ctx context.Context, playerID string) (time.Duration, error)
}

// Broadcaster pushes live updates to connected WebSocket clients,
// satisfied by websocket.Hub.
type Broadcaster interface {
	BroadcastLeaderboardUpdate(entries []domain.LeaderboardEntry)
	BroadcastPlayerUpdate(entry domain.LeaderboardEntry)
}

// GameService provides the progression business logic: the score and crystal
// ledger, the daily-reward streak, achievements and ad rewards.
type GameService struct {
	store  PlayerStore
	cache  ProgressCache
	config *config.GameConfig
	logger *slog.Logger
	locks  *keyLock
	hub    Broadcaster
}

// NewGameService creates a new game service
func NewGameService(store PlayerStore, cache ProgressCache, cfg *config.GameConfig, logger *slog.Logger) *GameService {
	return &GameService{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
		locks:  newKeyLock(),
	}
}

// SetHub attaches the WebSocket hub for live updates
func (s *GameService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// SubmitScore applies one gameplay result to the player ledger: the best
// score ratchets up, earned crystals are credited, threshold achievements
// are evaluated and the run is appended to the session history.
func (s *GameService) SubmitScore(ctx context.Context, playerID string, sub domain.ScoreSubmission) (*domain.SubmitResult, error) {
	if sub.Score < 0 || sub.Crystals < 0 || sub.TimeSpent < 0 {
		return nil, &domain.ValidationError{Field: "score", Message: "values must be non-negative"}
	}

	s.locks.Lock(playerID)
	defer s.locks.Unlock(playerID)

	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	improved := false
	if sub.Score > player.BestScore {
		player.BestScore = sub.Score
		improved = true
	}
	player.Crystals += sub.Crystals

	unlocks := achievement.Evaluate(player)

	session := domain.GameSession{
		PlayerID:  playerID,
		Score:     sub.Score,
		Crystals:  sub.Crystals,
		TimeSpent: sub.TimeSpent,
		PlayedAt:  time.Now(),
	}
	if err := s.store.SaveProgressWithSession(ctx, player, session); err != nil {
		return nil, fmt.Errorf("saving progress: %w", err)
	}

	if improved {
		s.refreshLeaderboard(ctx, player)
	}

	return &domain.SubmitResult{
		BestScore:  player.BestScore,
		Crystals:   player.Crystals,
		NewUnlocks: unlocks,
	}, nil
}

// refreshLeaderboard pushes a new best score to the cache and notifies
// subscribed clients. Cache failures are logged, never surfaced: the store
// write already succeeded and the sync worker repairs the cache.
func (s *GameService) refreshLeaderboard(ctx context.Context, player *domain.Player) {
	changed, err := s.cache.SetBestScoreIfBetter(ctx, player.ID, player.BestScore)
	if err != nil {
		s.logger.Warn("failed to update leaderboard cache", "player_id", player.ID, "error", err)
		return
	}
	if !changed {
		return
	}

	if err := s.cache.SetPlayerInfo(ctx, player.ID, player.Name, player.Avatar); err != nil {
		s.logger.Warn("failed to cache player info", "player_id", player.ID, "error", err)
	}

	if s.hub == nil {
		return
	}
	s.hub.BroadcastPlayerUpdate(domain.LeaderboardEntry{
		PlayerID: player.ID,
		Name:     player.Name,
		Avatar:   player.Avatar,
		Score:    player.BestScore,
	})
	if entries, err := s.Leaderboard(ctx, s.config.LeaderboardLimit); err == nil {
		s.hub.BroadcastLeaderboardUpdate(entries)
	}
}

// RecordTimeFreeze counts a time-freeze power-up use and evaluates the
// achievements keyed on it.
func (s *GameService) RecordTimeFreeze(ctx context.Context, playerID string) (int64, []domain.UnlockedAchievement, error) {
	s.locks.Lock(playerID)
	defer s.locks.Unlock(playerID)

	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return 0, nil, err
	}

	player.TimeFreezeUses++
	unlocks := achievement.Evaluate(player)

	if err := s.store.SaveProgress(ctx, player); err != nil {
		return 0, nil, fmt.Errorf("saving progress: %w", err)
	}
	return player.TimeFreezeUses, unlocks, nil
}

// DailyRewardStatus reports claim eligibility and the pending payout.
func (s *GameService) DailyRewardStatus(ctx context.Context, playerID string) (*domain.DailyRewardStatus, error) {
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	status := reward.Status(player.LastDailyReward, player.DailyRewardDay, time.Now())
	return &status, nil
}

// ClaimDailyReward pays out the current streak day, advances (or resets) the
// streak and unlocks the streak achievement on a day-7 claim. A second claim
// within the same day is rejected with the remaining wait.
func (s *GameService) ClaimDailyReward(ctx context.Context, playerID string) (*domain.ClaimResult, error) {
	s.locks.Lock(playerID)
	defer s.locks.Unlock(playerID)

	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	status := reward.Status(player.LastDailyReward, player.DailyRewardDay, now)
	if !status.CanClaim {
		return nil, &domain.NotEligibleError{
			Reason:     "daily reward already claimed",
			RetryAfter: reward.WaitRemaining(player.LastDailyReward, now),
		}
	}

	day := status.Day
	payout := reward.RewardFor(day)
	player.Crystals += payout.Total()
	player.LastDailyReward = &now
	player.DailyRewardDay = reward.NextDay(day)

	var unlocked *domain.UnlockedAchievement
	if day == reward.CycleDays {
		unlocked = achievement.UnlockEvent(player, achievement.DailyStreakID)
	}

	if err := s.store.SaveProgress(ctx, player); err != nil {
		return nil, fmt.Errorf("saving progress: %w", err)
	}

	s.logger.Info("daily reward claimed",
		"player_id", playerID,
		"day", day,
		"crystals", payout.Total(),
		"reset", status.ResetStreak,
	)

	return &domain.ClaimResult{
		Success:             true,
		CrystalsEarned:      payout.Total(),
		TotalCrystals:       player.Crystals,
		Day:                 day,
		NextDay:             player.DailyRewardDay,
		StreakBonus:         payout.StreakBonus,
		AchievementUnlocked: unlocked,
	}, nil
}

// Achievements returns the full catalog annotated with the player's unlock
// state and progress fractions.
func (s *GameService) Achievements(ctx context.Context, playerID string) (*domain.AchievementsView, error) {
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	view := achievement.Progress(player)
	return &view, nil
}

// StartAdView issues a single-use ad token, rejected while the player's ad
// cooldown is still running.
func (s *GameService) StartAdView(ctx context.Context, playerID string) (*domain.AdViewGrant, error) {
	if _, err := s.store.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}

	remaining, err := s.cache.AdCooldownRemaining(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("checking ad cooldown: %w", err)
	}
	if remaining > 0 {
		return nil, &domain.NotEligibleError{
			Reason:     "ad reward cooldown active",
			RetryAfter: remaining,
		}
	}

	token := domain.AdToken{
		ID:       uuid.New().String(),
		PlayerID: playerID,
		IssuedAt: time.Now(),
	}
	if err := s.cache.IssueAdToken(ctx, token, s.config.AdTokenTTL); err != nil {
		return nil, fmt.Errorf("issuing ad token: %w", err)
	}

	return &domain.AdViewGrant{
		AdID:         token.ID,
		MinWatchTime: s.config.AdMinWatchTime.Milliseconds(),
	}, nil
}

// RedeemAdReward pays out a watched ad. Watch time is validated before the
// token is touched, so an under-watched ad leaves the token redeemable until
// it expires; a valid redemption consumes the token and arms the cooldown.
func (s *GameService) RedeemAdReward(ctx context.Context, playerID, adID string, watchTimeMs int64) (*domain.AdRewardResult, error) {
	if adID == "" {
		return nil, domain.ErrAdTokenInvalid
	}
	if watchTimeMs < s.config.AdMinWatchTime.Milliseconds() {
		return nil, &domain.NotEligibleError{Reason: "ad watch time too short"}
	}

	owner, err := s.cache.ConsumeAdToken(ctx, adID)
	if err != nil {
		return nil, err
	}
	if owner != playerID {
		return nil, domain.ErrAdTokenInvalid
	}

	s.locks.Lock(playerID)
	defer s.locks.Unlock(playerID)

	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	player.Crystals += s.config.AdRewardCrystals
	player.AdViews++
	unlocks := achievement.Evaluate(player)

	if err := s.store.SaveProgress(ctx, player); err != nil {
		return nil, fmt.Errorf("saving progress: %w", err)
	}

	if err := s.cache.ArmAdCooldown(ctx, playerID, s.config.AdCooldown); err != nil {
		s.logger.Warn("failed to arm ad cooldown", "player_id", playerID, "error", err)
	}

	return &domain.AdRewardResult{
		CrystalsEarned: s.config.AdRewardCrystals,
		TotalCrystals:  player.Crystals,
		AdViews:        player.AdViews,
		NewUnlocks:     unlocks,
	}, nil
}

// Leaderboard returns the top entries, served from the cache and enriched
// with cached display info. Falls back to the store when the cache is down.
func (s *GameService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 || limit > s.config.LeaderboardLimit {
		limit = s.config.LeaderboardLimit
	}

	entries, err := s.cache.TopN(ctx, limit)
	if err != nil {
		s.logger.Warn("leaderboard cache unavailable, falling back to store", "error", err)
		return s.store.TopPlayers(ctx, limit)
	}

	for i := range entries {
		info, err := s.cache.GetPlayerInfo(ctx, entries[i].PlayerID)
		if err != nil {
			if !errors.Is(err, domain.ErrPlayerNotFound) {
				s.logger.Warn("failed to read player info", "player_id", entries[i].PlayerID, "error", err)
			}
			continue
		}
		entries[i].Name = info.Name
		entries[i].Avatar = info.Avatar
	}
	return entries, nil
}

// PlayerRank returns a player's current leaderboard position.
func (s *GameService) PlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error) {
	entry, err := s.cache.PlayerRank(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if info, infoErr := s.cache.GetPlayerInfo(ctx, playerID); infoErr == nil {
		entry.Name = info.Name
		entry.Avatar = info.Avatar
	}
	return entry, nil
}

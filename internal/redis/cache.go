package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timejump-backend/internal/config"
	"github.com/timejump-backend/internal/domain"
)

// leaderboardKey is the sorted set holding every player's best score.
const leaderboardKey = "leaderboard:best"

// Cache provides Redis-based hot-path state: the best-score leaderboard,
// cached player display info, ad-reward tokens and rate-limit counters.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) playerInfoKey(playerID string) string {
	return fmt.Sprintf("player:%s:info", playerID)
}

func (c *Cache) adTokenKey(tokenID string) string {
	return fmt.Sprintf("ads:token:%s", tokenID)
}

func (c *Cache) adCooldownKey(playerID string) string {
	return fmt.Sprintf("ads:cooldown:%s", playerID)
}

func (c *Cache) rateLimitKey(scope, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, subject)
}

// SetBestScoreIfBetter updates a player's leaderboard entry only when the
// new score beats the cached one. Returns whether the entry changed.
func (c *Cache) SetBestScoreIfBetter(ctx context.Context, playerID string, score int64) (bool, error) {
	current, err := c.client.ZScore(ctx, leaderboardKey, playerID).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("getting current score: %w", err)
	}

	if err != redis.Nil && float64(score) <= current {
		return false, nil
	}

	err = c.client.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(score),
		Member: playerID,
	}).Err()
	if err != nil {
		return false, fmt.Errorf("setting score: %w", err)
	}
	return true, nil
}

// TopN returns the top N leaderboard entries (descending, 1-indexed ranks)
func (c *Cache) TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		entries[i] = domain.LeaderboardEntry{
			Rank:     int64(i + 1),
			PlayerID: result.Member.(string),
			Score:    int64(result.Score),
		}
	}
	return entries, nil
}

// PlayerRank returns a player's leaderboard rank and cached score.
func (c *Cache) PlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error) {
	pipe := c.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, leaderboardKey, playerID)
	scoreCmd := pipe.ZScore(ctx, leaderboardKey, playerID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.LeaderboardEntry{
		Rank:     rank + 1, // Convert 0-indexed to 1-indexed
		PlayerID: playerID,
		Score:    int64(score),
	}, nil
}

// BatchSetScores replaces leaderboard entries in bulk using pipelining
func (c *Cache) BatchSetScores(ctx context.Context, scores map[string]int64) error {
	pipe := c.client.Pipeline()
	for playerID, score := range scores {
		pipe.ZAdd(ctx, leaderboardKey, redis.Z{
			Score:  float64(score),
			Member: playerID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting scores: %w", err)
	}
	return nil
}

// SetPlayerInfo caches a player's display attributes
func (c *Cache) SetPlayerInfo(ctx context.Context, playerID, name, avatar string) error {
	key := c.playerInfoKey(playerID)
	err := c.client.HSet(ctx, key, "name", name, "avatar", avatar).Err()
	if err != nil {
		return fmt.Errorf("setting player info: %w", err)
	}
	return nil
}

// GetPlayerInfo retrieves cached player display attributes
func (c *Cache) GetPlayerInfo(ctx context.Context, playerID string) (*domain.PlayerInfo, error) {
	key := c.playerInfoKey(playerID)
	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("getting player info: %w", err)
	}
	if len(result) == 0 {
		return nil, domain.ErrPlayerNotFound
	}
	return &domain.PlayerInfo{
		ID:     playerID,
		Name:   result["name"],
		Avatar: result["avatar"],
	}, nil
}

// IssueAdToken stores a single-use ad token under a TTL. The token expires
// on its own when the client never reports the ad as watched.
func (c *Cache) IssueAdToken(ctx context.Context, token domain.AdToken, ttl time.Duration) error {
	key := c.adTokenKey(token.ID)
	err := c.client.Set(ctx, key, token.PlayerID, ttl).Err()
	if err != nil {
		return fmt.Errorf("issuing ad token: %w", err)
	}
	return nil
}

// PeekAdToken checks a token without consuming it and returns the player it
// was issued to. Expired or unknown tokens yield ErrAdTokenInvalid.
func (c *Cache) PeekAdToken(ctx context.Context, tokenID string) (string, error) {
	playerID, err := c.client.Get(ctx, c.adTokenKey(tokenID)).Result()
	if err == redis.Nil {
		return "", domain.ErrAdTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("peeking ad token: %w", err)
	}
	return playerID, nil
}

// ConsumeAdToken atomically reads and deletes a token, so a token can pay
// out at most once even under concurrent redemption attempts.
func (c *Cache) ConsumeAdToken(ctx context.Context, tokenID string) (string, error) {
	playerID, err := c.client.GetDel(ctx, c.adTokenKey(tokenID)).Result()
	if err == redis.Nil {
		return "", domain.ErrAdTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("consuming ad token: %w", err)
	}
	return playerID, nil
}

// ArmAdCooldown starts a player's ad cooldown window
func (c *Cache) ArmAdCooldown(ctx context.Context, playerID string, cooldown time.Duration) error {
	key := c.adCooldownKey(playerID)
	err := c.client.Set(ctx, key, "1", cooldown).Err()
	if err != nil {
		return fmt.Errorf("arming ad cooldown: %w", err)
	}
	return nil
}

// AdCooldownRemaining returns how long until a player may request another
// ad, zero when no cooldown is active.
func (c *Cache) AdCooldownRemaining(ctx context.Context, playerID string) (time.Duration, error) {
	ttl, err := c.client.PTTL(ctx, c.adCooldownKey(playerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting ad cooldown: %w", err)
	}
	if ttl < 0 {
		// -1 no expiry, -2 no key
		return 0, nil
	}
	return ttl, nil
}

// Allow counts a request against a fixed rate-limit window and reports
// whether it is within the allowance. The first hit arms the window expiry.
func (c *Cache) Allow(ctx context.Context, scope, subject string, window time.Duration, max int) (bool, error) {
	key := c.rateLimitKey(scope, subject)

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("counting rate limit: %w", err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("arming rate limit window: %w", err)
		}
	}

	return count <= int64(max), nil
}

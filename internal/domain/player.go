package domain

import "time"

// Player is the authoritative per-player record. Progression counters are
// monotonic non-decreasing and the achievements list is append-only.
type Player struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Avatar          string     `json:"avatar,omitempty"`
	BestScore       int64      `json:"best_score"`
	Crystals        int64      `json:"crystals"`
	Achievements    []string   `json:"achievements"`
	DailyRewardDay  int        `json:"daily_reward_day"`
	LastDailyReward *time.Time `json:"last_daily_reward,omitempty"`
	AdViews         int64      `json:"ad_views"`
	TimeFreezeUses  int64      `json:"time_freeze_uses"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLogin       time.Time  `json:"last_login"`
}

// HasAchievement reports whether the achievement id is already unlocked.
func (p *Player) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// GrantAchievement appends the achievement id and credits its reward.
// Granting an id that is already present is a no-op and returns false.
func (p *Player) GrantAchievement(id string, rewardCrystals int64) bool {
	if p.HasAchievement(id) {
		return false
	}
	p.Achievements = append(p.Achievements, id)
	p.Crystals += rewardCrystals
	return true
}

// PlayerInfo is a lightweight player information struct used for caching
type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// GameSession is one entry in a player's append-only gameplay history.
type GameSession struct {
	ID        int64     `json:"id"`
	PlayerID  string    `json:"player_id"`
	Score     int64     `json:"score"`
	Crystals  int64     `json:"crystals"`
	TimeSpent int64     `json:"time_spent_ms"`
	PlayedAt  time.Time `json:"played_at"`
}

// ScoreSubmission is a gameplay result reported at the end of a run.
type ScoreSubmission struct {
	Score     int64 `json:"score"`
	Crystals  int64 `json:"crystals"`
	TimeSpent int64 `json:"time_spent_ms"`
}

// SessionEvent is a score submission arriving through the Kafka ingest path.
type SessionEvent struct {
	PlayerID  string    `json:"player_id"`
	Score     int64     `json:"score"`
	Crystals  int64     `json:"crystals"`
	TimeSpent int64     `json:"time_spent_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// SubmitResult summarizes the state after a score submission.
type SubmitResult struct {
	BestScore  int64                 `json:"best_score"`
	Crystals   int64                 `json:"crystals"`
	NewUnlocks []UnlockedAchievement `json:"new_unlocks,omitempty"`
}

// LeaderboardEntry represents a single entry in the global leaderboard
type LeaderboardEntry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Score    int64  `json:"score"`
}

// RegisterRequest carries a new account registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest carries account credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest carries the mutable display attributes.
type UpdateProfileRequest struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// AuthResponse is returned from register and login.
type AuthResponse struct {
	Player *Player `json:"player"`
	Token  string  `json:"token"`
}

package domain

import "time"

// DailyReward is one row of the streak payout table.
type DailyReward struct {
	Day         int   `json:"day"`
	Crystals    int64 `json:"crystals"`
	StreakBonus int64 `json:"streak_bonus"`
}

// Total returns the full payout for the day including the streak bonus.
func (r DailyReward) Total() int64 {
	return r.Crystals + r.StreakBonus
}

// RewardAmounts breaks a payout down for API responses.
type RewardAmounts struct {
	Crystals    int64 `json:"crystals"`
	StreakBonus int64 `json:"streak_bonus"`
	Total       int64 `json:"total"`
}

// DailyRewardStatus describes claim eligibility for "now".
type DailyRewardStatus struct {
	CanClaim    bool          `json:"can_claim"`
	Day         int           `json:"day"`
	ResetStreak bool          `json:"reset_streak"`
	Reward      RewardAmounts `json:"reward"`
	LastClaimed *time.Time    `json:"last_claimed,omitempty"`
}

// ClaimResult is returned from a successful daily reward claim.
type ClaimResult struct {
	Success             bool                 `json:"success"`
	CrystalsEarned      int64                `json:"crystals_earned"`
	TotalCrystals       int64                `json:"total_crystals"`
	Day                 int                  `json:"day"`
	NextDay             int                  `json:"next_day"`
	StreakBonus         int64                `json:"streak_bonus"`
	AchievementUnlocked *UnlockedAchievement `json:"achievement_unlocked,omitempty"`
}

// AdToken is a short-lived, single-use credential authorizing one ad-reward
// redemption.
type AdToken struct {
	ID       string    `json:"ad_id"`
	PlayerID string    `json:"player_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// AdViewGrant is returned when an ad view is started.
type AdViewGrant struct {
	AdID         string `json:"ad_id"`
	MinWatchTime int64  `json:"min_watch_time_ms"`
}

// AdRewardResult is returned from a successful ad reward redemption.
type AdRewardResult struct {
	CrystalsEarned int64                 `json:"crystals_earned"`
	TotalCrystals  int64                 `json:"total_crystals"`
	AdViews        int64                 `json:"ad_views"`
	NewUnlocks     []UnlockedAchievement `json:"new_unlocks,omitempty"`
}

package domain

// ProgressSource identifies the player counter an achievement threshold is
// measured against.
type ProgressSource string

const (
	SourceBestScore  ProgressSource = "best_score"
	SourceCrystals   ProgressSource = "crystals"
	SourceTimeFreeze ProgressSource = "time_freeze_uses"
	SourceAdViews    ProgressSource = "ad_views"

	// SourceDailyStreak achievements are keyed on the day-7 claim event
	// rather than a counter threshold.
	SourceDailyStreak ProgressSource = "daily_streak"
)

// Achievement is a one-time-unlockable milestone definition.
type Achievement struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Icon        string         `json:"icon,omitempty"`
	Threshold   int64          `json:"threshold"`
	Source      ProgressSource `json:"source"`
	Reward      int64          `json:"reward_crystals"`
}

// UnlockedAchievement is reported back to the caller when an achievement
// unlocks during an operation.
type UnlockedAchievement struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reward int64  `json:"reward_crystals"`
}

// PlayerAchievement is the read-path view of one achievement for a player.
type PlayerAchievement struct {
	Achievement
	Unlocked bool    `json:"unlocked"`
	Progress float64 `json:"progress"`
}

// AchievementsView is the full read-path achievements response.
type AchievementsView struct {
	Achievements  []PlayerAchievement `json:"achievements"`
	TotalUnlocked int                 `json:"total_unlocked"`
}

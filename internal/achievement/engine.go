// Package achievement holds the canonical achievement catalog and the
// evaluation engine that unlocks milestones against player counters.
package achievement

import "github.com/timejump-backend/internal/domain"

// DailyStreakID is the event-keyed achievement unlocked by claiming the
// seventh consecutive daily reward.
const DailyStreakID = "daily_streak"

var catalog = []domain.Achievement{
	{
		ID:          "newbie",
		Name:        "First Steps",
		Description: "Reach a score of 500",
		Icon:        "⭐",
		Threshold:   500,
		Source:      domain.SourceBestScore,
		Reward:      50,
	},
	{
		ID:          "jumper",
		Name:        "Crystal Jumper",
		Description: "Collect 50 crystals",
		Icon:        "💎",
		Threshold:   50,
		Source:      domain.SourceCrystals,
		Reward:      100,
	},
	{
		ID:          "time_master",
		Name:        "Master of Time",
		Description: "Use time freeze 10 times",
		Icon:        "⏳",
		Threshold:   10,
		Source:      domain.SourceTimeFreeze,
		Reward:      200,
	},
	{
		ID:          "speed_runner",
		Name:        "Speed Runner",
		Description: "Reach a score of 5000",
		Icon:        "⚡",
		Threshold:   5000,
		Source:      domain.SourceBestScore,
		Reward:      500,
	},
	{
		ID:          "ad_master",
		Name:        "Ad Wizard",
		Description: "Watch 5 rewarded ads",
		Icon:        "📺",
		Threshold:   5,
		Source:      domain.SourceAdViews,
		Reward:      150,
	},
	{
		ID:          "crystal_collector",
		Name:        "Crystal Collector",
		Description: "Hoard 1000 crystals",
		Icon:        "🏆",
		Threshold:   1000,
		Source:      domain.SourceCrystals,
		Reward:      500,
	},
	{
		ID:          DailyStreakID,
		Name:        "Daily Devotion",
		Description: "Claim the daily reward 7 days in a row",
		Icon:        "📅",
		Threshold:   7,
		Source:      domain.SourceDailyStreak,
		Reward:      500,
	},
}

// Catalog returns the full achievement definition list in evaluation order.
func Catalog() []domain.Achievement {
	out := make([]domain.Achievement, len(catalog))
	copy(out, catalog)
	return out
}

// counterFor returns the player counter an achievement is measured against.
// Event-keyed achievements have no counter and return -1.
func counterFor(p *domain.Player, source domain.ProgressSource) int64 {
	switch source {
	case domain.SourceBestScore:
		return p.BestScore
	case domain.SourceCrystals:
		return p.Crystals
	case domain.SourceTimeFreeze:
		return p.TimeFreezeUses
	case domain.SourceAdViews:
		return p.AdViews
	default:
		return -1
	}
}

// Evaluate scans the whole catalog in definition order, unlocks every
// threshold achievement the player now satisfies and credits its reward.
// Already-unlocked ids are skipped, so re-evaluation never re-grants.
// The player record is mutated in place; newly unlocked achievements are
// returned in catalog order.
func Evaluate(p *domain.Player) []domain.UnlockedAchievement {
	var unlocks []domain.UnlockedAchievement
	for _, a := range catalog {
		if a.Source == domain.SourceDailyStreak {
			continue
		}
		if p.HasAchievement(a.ID) {
			continue
		}
		if counterFor(p, a.Source) >= a.Threshold {
			p.GrantAchievement(a.ID, a.Reward)
			unlocks = append(unlocks, domain.UnlockedAchievement{
				ID:     a.ID,
				Name:   a.Name,
				Reward: a.Reward,
			})
		}
	}
	return unlocks
}

// UnlockEvent unlocks an event-keyed achievement (e.g. the day-7 streak) and
// credits its reward. Returns nil when the id is unknown or already unlocked.
func UnlockEvent(p *domain.Player, id string) *domain.UnlockedAchievement {
	for _, a := range catalog {
		if a.ID != id {
			continue
		}
		if !p.GrantAchievement(a.ID, a.Reward) {
			return nil
		}
		return &domain.UnlockedAchievement{
			ID:     a.ID,
			Name:   a.Name,
			Reward: a.Reward,
		}
	}
	return nil
}

// Progress builds the read-path view: unlocked achievements report progress
// 1, locked threshold achievements report min(1, counter/threshold), and
// locked event-keyed achievements report 0.
func Progress(p *domain.Player) domain.AchievementsView {
	out := make([]domain.PlayerAchievement, 0, len(catalog))
	for _, a := range catalog {
		pa := domain.PlayerAchievement{Achievement: a}
		if p.HasAchievement(a.ID) {
			pa.Unlocked = true
			pa.Progress = 1
		} else if c := counterFor(p, a.Source); c >= 0 && a.Threshold > 0 {
			pa.Progress = float64(c) / float64(a.Threshold)
			if pa.Progress > 1 {
				pa.Progress = 1
			}
		}
		out = append(out, pa)
	}
	return domain.AchievementsView{
		Achievements:  out,
		TotalUnlocked: len(p.Achievements),
	}
}

// Package reward implements the daily-reward streak engine: claim
// eligibility, streak resets and the day payout table.
package reward

import (
	"time"

	"github.com/timejump-backend/internal/domain"
)

// CycleDays is the length of the streak cycle; the stored day wraps back to 1
// after day 7 is claimed.
const CycleDays = 7

var payoutTable = []domain.DailyReward{
	{Day: 1, Crystals: 100, StreakBonus: 0},
	{Day: 2, Crystals: 200, StreakBonus: 0},
	{Day: 3, Crystals: 300, StreakBonus: 0},
	{Day: 4, Crystals: 400, StreakBonus: 50},
	{Day: 5, Crystals: 500, StreakBonus: 100},
	{Day: 6, Crystals: 600, StreakBonus: 150},
	{Day: 7, Crystals: 1000, StreakBonus: 300},
}

// RewardFor returns the payout table row for the given streak day. Days
// outside [1,7] fall back to day 1, matching the stored-day wrap behavior.
func RewardFor(day int) domain.DailyReward {
	if day < 1 || day > CycleDays {
		return payoutTable[0]
	}
	return payoutTable[day-1]
}

// NextDay advances the streak day, wrapping to 1 after day 7.
func NextDay(day int) int {
	if day >= CycleDays {
		return 1
	}
	return day + 1
}

// elapsedDays returns the number of whole 24h days between last and now.
func elapsedDays(last, now time.Time) int {
	if now.Before(last) {
		return 0
	}
	return int(now.Sub(last) / (24 * time.Hour))
}

// Status computes claim eligibility and the effective payout for "now" given
// the stored last-claim timestamp and streak day. A gap of more than one
// whole day resets the streak: the effective day becomes 1.
func Status(lastClaim *time.Time, day int, now time.Time) domain.DailyRewardStatus {
	canClaim := false
	resetStreak := false
	currentDay := day
	if currentDay < 1 || currentDay > CycleDays {
		currentDay = 1
	}

	if lastClaim == nil {
		canClaim = true
	} else {
		diff := elapsedDays(*lastClaim, now)
		if diff >= 1 {
			canClaim = true
			if diff > 1 {
				resetStreak = true
				currentDay = 1
			}
		}
	}

	r := RewardFor(currentDay)
	return domain.DailyRewardStatus{
		CanClaim:    canClaim,
		Day:         currentDay,
		ResetStreak: resetStreak,
		Reward: domain.RewardAmounts{
			Crystals:    r.Crystals,
			StreakBonus: r.StreakBonus,
			Total:       r.Total(),
		},
		LastClaimed: lastClaim,
	}
}

// WaitRemaining returns how long until the next claim becomes eligible.
// Zero when a claim is already possible.
func WaitRemaining(lastClaim *time.Time, now time.Time) time.Duration {
	if lastClaim == nil {
		return 0
	}
	next := lastClaim.Add(24 * time.Hour)
	if !now.Before(next) {
		return 0
	}
	return next.Sub(now)
}

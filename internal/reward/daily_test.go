package reward

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewardFor_PayoutTable(t *testing.T) {
	expected := map[int]int64{1: 100, 2: 200, 3: 300, 4: 450, 5: 600, 6: 750, 7: 1300}
	for day := 1; day <= CycleDays; day++ {
		r := RewardFor(day)
		assert.Equal(t, day, r.Day)
		assert.Equal(t, expected[day], r.Total(), "total payout for day %d", day)
	}
	assert.Equal(t, int64(1300), RewardFor(7).Total())
}

func TestRewardFor_OutOfRangeFallsBackToDayOne(t *testing.T) {
	for _, day := range []int{0, -1, 8, 100} {
		r := RewardFor(day)
		assert.Equal(t, 1, r.Day)
		assert.Equal(t, int64(100), r.Crystals)
	}
}

func TestNextDay_WrapsAfterSeven(t *testing.T) {
	assert.Equal(t, 2, NextDay(1))
	assert.Equal(t, 7, NextDay(6))
	assert.Equal(t, 1, NextDay(7))
}

func TestStatus_FirstClaim(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s := Status(nil, 1, now)
	require.True(t, s.CanClaim)
	assert.False(t, s.ResetStreak)
	assert.Equal(t, 1, s.Day)
	assert.Equal(t, int64(100), s.Reward.Total)
	assert.Nil(t, s.LastClaimed)
}

func TestStatus_SameDayNotEligible(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-6 * time.Hour)

	s := Status(&last, 3, now)
	assert.False(t, s.CanClaim)
	assert.Equal(t, 3, s.Day)
}

func TestStatus_NextDayKeepsStreak(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	last := now.Add(-25 * time.Hour)

	s := Status(&last, 3, now)
	require.True(t, s.CanClaim)
	assert.False(t, s.ResetStreak)
	assert.Equal(t, 3, s.Day)
	assert.Equal(t, int64(300), s.Reward.Total)
}

func TestStatus_MissedDayResetsStreak(t *testing.T) {
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	last := now.Add(-3 * 24 * time.Hour)

	s := Status(&last, 5, now)
	require.True(t, s.CanClaim)
	assert.True(t, s.ResetStreak)
	assert.Equal(t, 1, s.Day)
	assert.Equal(t, int64(100), s.Reward.Total)
}

func TestWaitRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Zero(t, WaitRemaining(nil, now))

	last := now.Add(-10 * time.Hour)
	assert.Equal(t, 14*time.Hour, WaitRemaining(&last, now))

	old := now.Add(-48 * time.Hour)
	assert.Zero(t, WaitRemaining(&old, now))
}

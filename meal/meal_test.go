package meal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC)
}

func TestDefaultScheduleBoundaries(t *testing.T) {
	s := DefaultSchedule()
	tests := []struct {
		h, m int
		want Occasion
	}{
		{0, 0, Snack},
		{5, 59, Snack},
		{6, 0, Breakfast},
		{10, 59, Breakfast},
		{11, 0, Lunch},
		{14, 59, Lunch},
		{15, 0, Snack},
		{17, 0, Dinner},
		{19, 30, Dinner},
		{21, 59, Dinner},
		{22, 0, Snack},
		{23, 59, Snack},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Classify(at(tt.h, tt.m)), "%02d:%02d", tt.h, tt.m)
	}
}

func TestClassifyIsTotalOverEveryMinute(t *testing.T) {
	s := DefaultSchedule()
	seen := map[Occasion]int{}
	for minute := 0; minute < 24*60; minute++ {
		o := s.Classify(at(minute/60, minute%60))
		require.Contains(t, []Occasion{Breakfast, Lunch, Dinner, Snack}, o)
		seen[o]++
	}
	total := 0
	for _, n := range seen {
		total += n
	}
	assert.Equal(t, 24*60, total)
}

func TestWrapAroundBelongsToLastWindow(t *testing.T) {
	s, err := NewSchedule([]Window{
		{Start: 7 * time.Hour, Occasion: Breakfast},
		{Start: 12 * time.Hour, Occasion: Lunch},
		{Start: 18 * time.Hour, Occasion: Dinner},
	})
	require.NoError(t, err)
	assert.Equal(t, Dinner, s.Classify(at(2, 0)))
	assert.Equal(t, Dinner, s.Classify(at(6, 59)))
	assert.Equal(t, Breakfast, s.Classify(at(7, 0)))
}

func TestNewScheduleRejectsBadWindows(t *testing.T) {
	_, err := NewSchedule(nil)
	require.Error(t, err)

	_, err = NewSchedule([]Window{{Start: 25 * time.Hour, Occasion: Lunch}})
	require.Error(t, err)

	_, err = NewSchedule([]Window{
		{Start: 8 * time.Hour, Occasion: Breakfast},
		{Start: 8 * time.Hour, Occasion: Lunch},
	})
	require.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	d, err := ParseClock("17:30")
	require.NoError(t, err)
	assert.Equal(t, 17*time.Hour+30*time.Minute, d)

	o, err := ParseOccasion("晚餐")
	require.NoError(t, err)
	assert.Equal(t, Dinner, o)

	_, err = ParseOccasion("brunch")
	assert.Error(t, err)
}

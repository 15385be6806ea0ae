package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotGrid(t *testing.T) {
	grid := SlotGrid()

	require.Len(t, grid, 21)
	assert.Equal(t, "08:00", grid[0])
	assert.Equal(t, "18:00", grid[len(grid)-1])

	for i := 1; i < len(grid); i++ {
		assert.Greater(t, grid[i], grid[i-1], "grid must be strictly increasing")

		prev := SlotInstant(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), grid[i-1])
		cur := SlotInstant(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), grid[i])
		assert.Equal(t, 30*time.Minute, cur.Sub(prev))
	}
}

func TestWithinWorkingHours(t *testing.T) {
	tests := []struct {
		time string
		want bool
	}{
		{"08:00", true},
		{"18:00", true},
		{"07:59", false},
		{"18:01", false},
		{"12:30", true},
		{"00:00", false},
		{"23:59", false},
		{"8:00", false},  // not HH:MM
		{"nope", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.time, func(t *testing.T) {
			assert.Equal(t, tt.want, WithinWorkingHours(tt.time))
		})
	}
}

func TestValidSlotTime(t *testing.T) {
	tests := []struct {
		time string
		want bool
	}{
		{"08:00", true},
		{"08:30", true},
		{"23:30", true}, // aligned, even though outside working hours
		{"08:15", false},
		{"08:01", false},
		{"25:00", false},
		{"10:60", false},
		{"1030", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.time, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidSlotTime(tt.time))
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	in := time.Date(2025, 12, 1, 14, 45, 12, 999, time.UTC)
	got := NormalizeDate(in)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestSlotInstant(t *testing.T) {
	date := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC), SlotInstant(date, "10:00"))
	assert.Equal(t, date, SlotInstant(date, "garbage"))
}

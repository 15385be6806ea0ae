package scheduling

import (
	"fmt"
	"strconv"
	"strings"
)

// Clinic working hours. The slot grid runs from opening to closing inclusive
// at 30-minute steps, producing 21 bookable times per day.
const (
	openingMinutes = 8 * 60  // 08:00
	closingMinutes = 18 * 60 // 18:00
	slotStepMinutes = 30
)

// SlotGrid returns every bookable "HH:MM" value for a day, strictly
// increasing. Pure and deterministic.
func SlotGrid() []string {
	grid := make([]string, 0, (closingMinutes-openingMinutes)/slotStepMinutes+1)
	for m := openingMinutes; m <= closingMinutes; m += slotStepMinutes {
		grid = append(grid, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return grid
}

// WithinWorkingHours reports whether an "HH:MM" time falls inside the clinic's
// daily window, boundaries included. Malformed values are never within hours.
func WithinWorkingHours(timeOfDay string) bool {
	mins, err := parseClockTime(timeOfDay)
	if err != nil {
		return false
	}
	return mins >= openingMinutes && mins <= closingMinutes
}

// ValidSlotTime reports whether a time string is well formed and aligned to
// the 30-minute grid. Alignment is a field-shape check; whether the slot is
// inside working hours is deliberately deferred to approval.
func ValidSlotTime(timeOfDay string) bool {
	mins, err := parseClockTime(timeOfDay)
	if err != nil {
		return false
	}
	return mins%slotStepMinutes == 0
}

func parseClockTime(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return hour*60 + minute, nil
}

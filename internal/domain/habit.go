// Package domain holds the local representations of habits, goals and journal
// entries together with the input validation every mutation goes through.
package domain

import "strings"

// HabitType classifies a habit as one being built or one being broken.
type HabitType string

const (
	HabitGood HabitType = "good"
	HabitBad  HabitType = "bad"
)

// Remote habit_type values.
const (
	RemoteHabitBuilding = "building"
	RemoteHabitBreaking = "breaking"
)

// HabitTypeFromRemote maps the store's habit_type onto the local type.
// Only "building" is a good habit; every other value is treated as bad.
func HabitTypeFromRemote(value string) HabitType {
	if value == RemoteHabitBuilding {
		return HabitGood
	}
	return HabitBad
}

// Remote returns the store's habit_type for t.
func (t HabitType) Remote() string {
	if t == HabitGood {
		return RemoteHabitBuilding
	}
	return RemoteHabitBreaking
}

// Valid reports whether t is one of the known habit types.
func (t HabitType) Valid() bool {
	return t == HabitGood || t == HabitBad
}

// Habit is a tracked habit with its consecutive-day streak.
type Habit struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          HabitType `json:"type"`
	Streak        int       `json:"streak"`
	LongestStreak int       `json:"longest_streak,omitempty"`
	LastChecked   string    `json:"last_checked,omitempty"`
}

// CheckedOn reports whether the habit's last check-in falls on date.
func (h Habit) CheckedOn(date string) bool {
	return h.LastChecked != "" && h.LastChecked == date
}

// NewHabit carries the fields needed to create a habit.
type NewHabit struct {
	Name string    `json:"name"`
	Type HabitType `json:"type"`
}

// Validate checks required fields.
func (n NewHabit) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return Invalid("name", "is required")
	}
	if n.Type == "" {
		return Invalid("type", "is required")
	}
	if !n.Type.Valid() {
		return Invalid("type", "must be good or bad")
	}
	return nil
}

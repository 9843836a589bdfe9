package domain

import (
	"math"
	"strings"
)

// Goal is a numeric target with progress and a deadline.
type Goal struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Target   float64 `json:"target"`
	Current  float64 `json:"current"`
	Deadline string  `json:"deadline"`
}

// Progress returns current/target. Values above 1 are kept: progress is
// displayed, never clamped.
func (g Goal) Progress() float64 {
	if g.Target <= 0 {
		return 0
	}
	return g.Current / g.Target
}

// PercentComplete is Progress rounded to a whole percentage.
func (g Goal) PercentComplete() int {
	return int(math.Round(g.Progress() * 100))
}

// NewGoal carries the fields needed to create a goal.
type NewGoal struct {
	Title    string  `json:"title"`
	Target   float64 `json:"target"`
	Current  float64 `json:"current"`
	Deadline string  `json:"deadline"`
}

// Validate checks required fields.
func (n NewGoal) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return Invalid("title", "is required")
	}
	if math.IsNaN(n.Target) || math.IsInf(n.Target, 0) || n.Target <= 0 {
		return Invalid("target", "must be a finite number > 0")
	}
	if err := ValidateProgress(n.Current); err != nil {
		return err
	}
	if strings.TrimSpace(n.Deadline) == "" {
		return Invalid("deadline", "is required")
	}
	if !ValidDate(n.Deadline) {
		return Invalid("deadline", "must be a yyyy-MM-dd date")
	}
	return nil
}

// ValidateProgress checks a goal progress value. Progress may exceed the target.
func ValidateProgress(current float64) error {
	if math.IsNaN(current) || math.IsInf(current, 0) || current < 0 {
		return Invalid("current", "must be >= 0")
	}
	return nil
}

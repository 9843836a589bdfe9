package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHabitTypeFromRemote(t *testing.T) {
	require.Equal(t, HabitGood, HabitTypeFromRemote("building"))
	require.Equal(t, HabitBad, HabitTypeFromRemote("breaking"))
	require.Equal(t, HabitBad, HabitTypeFromRemote(""))
	require.Equal(t, HabitBad, HabitTypeFromRemote("Building"))

	require.Equal(t, "building", HabitGood.Remote())
	require.Equal(t, "breaking", HabitBad.Remote())
}

func TestNewGoalValidate(t *testing.T) {
	valid := NewGoal{Title: "Read 12 books", Target: 12, Deadline: "2024-12-31"}
	require.NoError(t, valid.Validate())

	cases := map[string]NewGoal{
		"zero target":      {Title: "x", Target: 0, Deadline: "2024-12-31"},
		"negative target":  {Title: "x", Target: -3, Deadline: "2024-12-31"},
		"missing deadline": {Title: "x", Target: 1},
		"bad deadline":     {Title: "x", Target: 1, Deadline: "next friday"},
		"missing title":    {Title: "  ", Target: 1, Deadline: "2024-12-31"},
		"negative current": {Title: "x", Target: 1, Current: -1, Deadline: "2024-12-31"},
		"infinite target":  {Title: "x", Target: math.Inf(1), Deadline: "2024-12-31"},
		"NaN target":       {Title: "x", Target: math.NaN(), Deadline: "2024-12-31"},
		"infinite current": {Title: "x", Target: 1, Current: math.Inf(1), Deadline: "2024-12-31"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			err := input.Validate()
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNewJournalEntryRejectsBlankContent(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t "} {
		require.ErrorIs(t, NewJournalEntry{Content: content}.Validate(), ErrValidation)
	}
	require.NoError(t, NewJournalEntry{Content: " felt good "}.Validate())
}

func TestNewHabitValidate(t *testing.T) {
	require.NoError(t, NewHabit{Name: "Daily Exercise", Type: HabitGood}.Validate())
	require.ErrorIs(t, NewHabit{Type: HabitGood}.Validate(), ErrValidation)
	require.ErrorIs(t, NewHabit{Name: "Smoking"}.Validate(), ErrValidation)
	require.ErrorIs(t, NewHabit{Name: "Smoking", Type: "neutral"}.Validate(), ErrValidation)
}

func TestGoalProgressIsNotClamped(t *testing.T) {
	g := Goal{Target: 10, Current: 15}
	require.InDelta(t, 1.5, g.Progress(), 1e-9)
	require.Equal(t, 150, g.PercentComplete())

	require.Equal(t, 33, Goal{Target: 3, Current: 1}.PercentComplete())
}

func TestNormalizeDate(t *testing.T) {
	require.Equal(t, "2024-01-10", NormalizeDate("2024-01-10"))
	require.Equal(t, "2024-01-10", NormalizeDate("2024-01-10 00:00:00.000Z"))
	require.Equal(t, "", NormalizeDate(""))
	require.Equal(t, "yesterday-ish", NormalizeDate("yesterday-ish"))
}

func TestErrorKind(t *testing.T) {
	require.Equal(t, "validation", ErrorKind(Invalid("name", "is required")))
	require.Equal(t, "auth_expired", ErrorKind(fmt.Errorf("load: %w", ErrAuthExpired)))
	require.Equal(t, "not_found", ErrorKind(ErrNotFound))
	require.Equal(t, "remote_unavailable", ErrorKind(ErrRemoteUnavailable))
	require.Equal(t, "unknown", ErrorKind(errors.New("boom")))
}

package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"example.com/habitsync/internal/domain"
	"example.com/habitsync/internal/observability"
	"example.com/habitsync/internal/recordstore"
)

// Remote field names of the habit_tracking collection.
const (
	FieldTitle         = "title"
	FieldHabitType     = "habit_type"
	FieldStreakCount   = "streak_count"
	FieldLongestStreak = "longest_streak"
	FieldLastCheckIn   = "last_check_in"
	FieldStartDate     = "start_date"
	FieldUserID        = "user_id"
)

// CheckInMode selects how a check-in is written.
type CheckInMode string

const (
	// CheckInReadThenWrite reads the streak and writes streak+1. Two concurrent
	// check-ins of one habit can both read the same streak, so one increment
	// may be lost.
	CheckInReadThenWrite CheckInMode = "read_then_write"
	// CheckInAtomic lets the store add 1 server-side when it supports it.
	CheckInAtomic CheckInMode = "atomic"
)

// ParseCheckInMode maps a config value onto a CheckInMode.
func ParseCheckInMode(value string) (CheckInMode, bool) {
	switch CheckInMode(value) {
	case "", CheckInReadThenWrite:
		return CheckInReadThenWrite, true
	case CheckInAtomic:
		return CheckInAtomic, true
	default:
		return "", false
	}
}

// Habits reads and writes the habit_tracking collection.
type Habits struct {
	*Repository[domain.Habit]
}

// NewHabits constructs the habit repository.
func NewHabits(store recordstore.Store, opts ...Option) *Habits {
	h := &Habits{newRepository(store, recordstore.CollectionHabits, DecodeHabit, opts)}
	if h.opts.mode == CheckInAtomic {
		if _, ok := store.(recordstore.Incrementer); !ok {
			h.opts.logger.Warn("store has no atomic increment, check-ins fall back to read-then-write")
		}
	}
	return h
}

// DecodeHabit translates a habit_tracking record.
func DecodeHabit(rec recordstore.Record) domain.Habit {
	return domain.Habit{
		ID:            rec.ID(),
		Name:          rec.String(FieldTitle),
		Type:          domain.HabitTypeFromRemote(rec.String(FieldHabitType)),
		Streak:        max(rec.Int(FieldStreakCount), 0),
		LongestStreak: max(rec.Int(FieldLongestStreak), 0),
		LastChecked:   domain.NormalizeDate(rec.String(FieldLastCheckIn)),
	}
}

// Create validates and stores a new habit owned by userID with a zero streak.
func (h *Habits) Create(ctx context.Context, userID string, in domain.NewHabit) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	return h.create(ctx, recordstore.Record{
		FieldTitle:         in.Name,
		FieldHabitType:     in.Type.Remote(),
		FieldStreakCount:   0,
		FieldLongestStreak: 0,
		FieldStartDate:     h.today(),
		FieldUserID:        userID,
	})
}

// CheckIn adds one day to the habit's streak and stamps today's date. It
// reports false without writing when the habit was already checked in today.
func (h *Habits) CheckIn(ctx context.Context, id string) (bool, error) {
	rec, err := h.get(ctx, id)
	if err != nil {
		return false, err
	}
	habit := DecodeHabit(rec)
	today := h.today()
	if habit.CheckedOn(today) {
		h.opts.logger.Info("habit already checked in today", zap.String("id", id), zap.String("date", today))
		return false, nil
	}

	next := habit.Streak + 1
	set := recordstore.Record{FieldLastCheckIn: today}
	if next > habit.LongestStreak {
		set[FieldLongestStreak] = next
	}

	if inc, ok := h.store.(recordstore.Incrementer); ok && h.opts.mode == CheckInAtomic {
		started := time.Now()
		err := inc.Increment(ctx, h.collection, id, FieldStreakCount, 1, set)
		observability.ObserveStoreCall(h.collection, "increment", started, err)
		if err != nil {
			return false, h.classify("check-in", err)
		}
		return true, nil
	}

	set[FieldStreakCount] = next
	if err := h.Update(ctx, id, set); err != nil {
		return false, err
	}
	return true, nil
}

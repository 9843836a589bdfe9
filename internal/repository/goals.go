package repository

import (
	"context"

	"example.com/habitsync/internal/domain"
	"example.com/habitsync/internal/recordstore"
)

// Remote field names of the goals collection.
const (
	FieldTarget   = "target"
	FieldCurrent  = "current"
	FieldDeadline = "deadline"
)

// Goals reads and writes the goals collection.
type Goals struct {
	*Repository[domain.Goal]
}

// NewGoals constructs the goal repository.
func NewGoals(store recordstore.Store, opts ...Option) *Goals {
	return &Goals{newRepository(store, recordstore.CollectionGoals, DecodeGoal, opts)}
}

// DecodeGoal translates a goals record.
func DecodeGoal(rec recordstore.Record) domain.Goal {
	return domain.Goal{
		ID:       rec.ID(),
		Title:    rec.String(FieldTitle),
		Target:   rec.Number(FieldTarget),
		Current:  rec.Number(FieldCurrent),
		Deadline: domain.NormalizeDate(rec.String(FieldDeadline)),
	}
}

// Create validates and stores a new goal owned by userID.
func (g *Goals) Create(ctx context.Context, userID string, in domain.NewGoal) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	return g.create(ctx, recordstore.Record{
		FieldTitle:     in.Title,
		FieldTarget:    in.Target,
		FieldCurrent:   in.Current,
		FieldDeadline:  in.Deadline,
		FieldStartDate: g.today(),
		FieldUserID:    userID,
	})
}

// UpdateProgress sets the goal's current value. Values above the target are kept.
func (g *Goals) UpdateProgress(ctx context.Context, id string, current float64) error {
	if err := domain.ValidateProgress(current); err != nil {
		return err
	}
	return g.Update(ctx, id, recordstore.Record{FieldCurrent: current})
}

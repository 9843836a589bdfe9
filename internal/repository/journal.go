package repository

import (
	"context"

	"example.com/habitsync/internal/domain"
	"example.com/habitsync/internal/recordstore"
)

// Remote field names of the journal_entries collection.
const (
	FieldEntryDate = "entry_date"
	FieldContent   = "content"
)

// Journal reads and writes the journal_entries collection. Entries are never
// updated once created.
type Journal struct {
	*Repository[domain.JournalEntry]
}

// NewJournal constructs the journal repository.
func NewJournal(store recordstore.Store, opts ...Option) *Journal {
	return &Journal{newRepository(store, recordstore.CollectionJournal, DecodeJournalEntry, opts)}
}

// DecodeJournalEntry translates a journal_entries record.
func DecodeJournalEntry(rec recordstore.Record) domain.JournalEntry {
	return domain.JournalEntry{
		ID:      rec.ID(),
		Date:    domain.NormalizeDate(rec.String(FieldEntryDate)),
		Content: rec.String(FieldContent),
	}
}

// Create validates and stores an entry dated today, owned by userID.
func (j *Journal) Create(ctx context.Context, userID string, in domain.NewJournalEntry) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	today := j.today()
	return j.create(ctx, recordstore.Record{
		FieldTitle:     today,
		FieldContent:   in.Content,
		FieldEntryDate: today,
		FieldUserID:    userID,
	})
}

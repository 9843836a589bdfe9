package domain

import "strings"

// JournalEntry is a dated free-text entry. Entries are never edited.
type JournalEntry struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

// NewJournalEntry carries the content of an entry to create.
type NewJournalEntry struct {
	Content string `json:"content"`
}

// Validate rejects empty and whitespace-only content.
func (n NewJournalEntry) Validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return Invalid("content", "must not be empty")
	}
	return nil
}

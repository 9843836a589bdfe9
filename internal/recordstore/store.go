// Package recordstore defines the collection-oriented remote store the client
// syncs against, plus the filter and sort conventions shared by its backends.
package recordstore

import "context"

// Collections used by the client.
const (
	CollectionHabits  = "habit_tracking"
	CollectionGoals   = "goals"
	CollectionJournal = "journal_entries"
)

// Store is the generic CRUD surface of a record store. Every call runs under
// the session the implementation was constructed with.
type Store interface {
	// List returns every record of collection matching q, in q.Sort order.
	List(ctx context.Context, collection string, q Query) ([]Record, error)
	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)
	// Create stores fields as a new record and returns its id.
	Create(ctx context.Context, collection string, fields Record) (string, error)
	// Update applies a partial patch to an existing record.
	Update(ctx context.Context, collection, id string, patch Record) error
}

// Incrementer is implemented by stores that can add to a numeric field
// atomically on the server, applying set in the same write.
type Incrementer interface {
	Increment(ctx context.Context, collection, id, field string, delta int, set Record) error
}

// TimestampLayout is the format of the created and updated system fields.
const TimestampLayout = "2006-01-02 15:04:05.000Z"

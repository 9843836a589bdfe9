package coordinator

import (
	"context"
	"slices"
	"sync"
	"time"

	"example.com/habitsync/internal/domain"
)

// State is the load state of one collection.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateError         State = "error"
)

// Snapshot is a point-in-time copy of one collection.
type Snapshot[T any] struct {
	Kind     domain.Kind
	Items    []T
	State    State
	Err      error
	LoadedAt time.Time
}

// ErrorKind names the taxonomy bucket of the last load error, or "".
func (s Snapshot[T]) ErrorKind() string {
	return domain.ErrorKind(s.Err)
}

type loadFunc[T any] func(ctx context.Context, userID string) ([]T, error)

// collection holds the authoritative items of one kind. mu is never held
// across a load.
type collection[T any] struct {
	kind domain.Kind
	load loadFunc[T]

	mu       sync.Mutex
	items    []T
	state    State
	err      error
	loadedAt time.Time
	started  uint64
	applied  uint64 // seq of the newest successful result applied
	inflight int
}

func newCollection[T any](kind domain.Kind, load loadFunc[T]) *collection[T] {
	return &collection[T]{kind: kind, load: load, state: StateUninitialized, items: []T{}}
}

// reloadResult describes what a reload did to the collection.
type reloadResult struct {
	items int
	err   error
	stale bool
}

// reload fetches the collection. Results that started before the newest
// applied success are stale and dropped. Only a success moves that mark, so a
// failure never hides a success that arrives after it.
func (c *collection[T]) reload(ctx context.Context, userID string, now func() time.Time) reloadResult {
	c.mu.Lock()
	c.started++
	seq := c.started
	c.inflight++
	c.state = StateLoading
	c.mu.Unlock()

	items, err := c.load(ctx, userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if seq < c.applied {
		c.settleLocked()
		return reloadResult{items: len(c.items), err: err, stale: true}
	}
	if err != nil {
		c.err = err
		c.settleLocked()
		return reloadResult{items: len(c.items), err: err}
	}
	if items == nil {
		items = []T{}
	}
	c.applied = seq
	c.items = items
	c.err = nil
	c.loadedAt = now()
	c.settleLocked()
	return reloadResult{items: len(c.items)}
}

func (c *collection[T]) settleLocked() {
	switch {
	case c.inflight > 0:
		c.state = StateLoading
	case c.err != nil:
		c.state = StateError
	case c.applied > 0:
		c.state = StateReady
	default:
		c.state = StateUninitialized
	}
}

func (c *collection[T]) snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot[T]{
		Kind:     c.kind,
		Items:    slices.Clone(c.items),
		State:    c.state,
		Err:      c.err,
		LoadedAt: c.loadedAt,
	}
}

func (c *collection[T]) status() CollectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CollectionStatus{
		Kind:      c.kind,
		State:     c.state,
		Items:     len(c.items),
		ErrorKind: domain.ErrorKind(c.err),
		LoadedAt:  c.loadedAt,
	}
}

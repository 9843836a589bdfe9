// Package testsupport holds fakes shared by package tests.
package testsupport

import (
	"context"
	"errors"
	"sync"

	"example.com/habitsync/internal/recordstore"
)

// Store operations recorded by SpyStore.
const (
	OpList      = "list"
	OpGet       = "get"
	OpCreate    = "create"
	OpUpdate    = "update"
	OpIncrement = "increment"
)

// SpyStore wraps a recordstore.Store, counting calls and injecting failures.
type SpyStore struct {
	inner recordstore.Store

	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	failOn map[string]int

	// AfterGet runs after a successful Get, before the result is returned.
	AfterGet func(collection, id string)
	// BeforeList runs at the start of every List, including injected failures.
	BeforeList func(collection string)
	// AfterList runs after the wrapped List returns, before its result is.
	AfterList func(collection string)
}

// NewSpyStore wraps inner.
func NewSpyStore(inner recordstore.Store) *SpyStore {
	return &SpyStore{
		inner:  inner,
		calls:  make(map[string]int),
		fail:   make(map[string]error),
		failOn: make(map[string]int),
	}
}

// Fail makes every subsequent op call return err. A nil err clears it.
func (s *SpyStore) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		delete(s.failOn, op)
		return
	}
	s.fail[op] = err
	s.failOn[op] = 0
}

// FailNth makes only the nth (1-based, counted from now) op call return err.
func (s *SpyStore) FailNth(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
	s.failOn[op] = s.calls[op] + n
}

// Calls returns how many times op was invoked.
func (s *SpyStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of calls across all ops.
func (s *SpyStore) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *SpyStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	err, ok := s.fail[op]
	if !ok {
		return nil
	}
	if nth := s.failOn[op]; nth != 0 {
		if s.calls[op] != nth {
			return nil
		}
		delete(s.fail, op)
		delete(s.failOn, op)
	}
	return err
}

// List implements recordstore.Store.
func (s *SpyStore) List(ctx context.Context, collection string, q recordstore.Query) ([]recordstore.Record, error) {
	injected := s.record(OpList)
	if s.BeforeList != nil {
		s.BeforeList(collection)
	}
	if injected != nil {
		return nil, injected
	}
	records, err := s.inner.List(ctx, collection, q)
	if s.AfterList != nil {
		s.AfterList(collection)
	}
	return records, err
}

// Get implements recordstore.Store.
func (s *SpyStore) Get(ctx context.Context, collection, id string) (recordstore.Record, error) {
	if err := s.record(OpGet); err != nil {
		return nil, err
	}
	rec, err := s.inner.Get(ctx, collection, id)
	if err == nil && s.AfterGet != nil {
		s.AfterGet(collection, id)
	}
	return rec, err
}

// Create implements recordstore.Store.
func (s *SpyStore) Create(ctx context.Context, collection string, fields recordstore.Record) (string, error) {
	if err := s.record(OpCreate); err != nil {
		return "", err
	}
	return s.inner.Create(ctx, collection, fields)
}

// Update implements recordstore.Store.
func (s *SpyStore) Update(ctx context.Context, collection, id string, patch recordstore.Record) error {
	if err := s.record(OpUpdate); err != nil {
		return err
	}
	return s.inner.Update(ctx, collection, id, patch)
}

// Increment implements recordstore.Incrementer when the wrapped store does.
func (s *SpyStore) Increment(ctx context.Context, collection, id, field string, delta int, set recordstore.Record) error {
	if err := s.record(OpIncrement); err != nil {
		return err
	}
	inc, ok := s.inner.(recordstore.Incrementer)
	if !ok {
		return errors.New("wrapped store does not support increments")
	}
	return inc.Increment(ctx, collection, id, field, delta, set)
}

type plainStore struct {
	recordstore.Store
}

// WithoutIncrement hides any recordstore.Incrementer implemented by store, for
// exercising the read-then-write fallback.
func WithoutIncrement(store recordstore.Store) recordstore.Store {
	return plainStore{store}
}

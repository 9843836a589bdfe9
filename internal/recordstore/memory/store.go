// Package memory provides an in-process record store for local development and
// tests. It enforces the same ownership rules the remote store applies: a
// session only sees and edits records whose user_id is its own.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/habitsync/internal/recordstore"
	"example.com/habitsync/internal/session"
)

type entry struct {
	record recordstore.Record
	seq    uint64
}

// Store holds every collection in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*entry
	seq         uint64
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated stamps and session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]*entry),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts rec verbatim, assigning an id and timestamps only when missing.
// Later seeds count as newer for "-created" ordering when timestamps tie.
func (s *Store) Seed(collection string, rec recordstore.Record) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(collection, rec.Clone())
}

// For returns a client acting as sess.
func (s *Store) For(sess *session.Session) *Client {
	return &Client{store: s, session: sess}
}

func (s *Store) insertLocked(collection string, rec recordstore.Record) string {
	id := rec.ID()
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
		rec["id"] = id
	}
	stamp := s.now().UTC().Format(recordstore.TimestampLayout)
	if rec.String("created") == "" {
		rec["created"] = stamp
	}
	if rec.String("updated") == "" {
		rec["updated"] = rec["created"]
	}
	s.seq++
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]*entry)
		s.collections[collection] = coll
	}
	coll[id] = &entry{record: rec, seq: s.seq}
	return id
}

// Client is a session-scoped view of a Store. It implements
// recordstore.Store and recordstore.Incrementer.
type Client struct {
	store   *Store
	session *session.Session
}

var (
	_ recordstore.Store       = (*Client)(nil)
	_ recordstore.Incrementer = (*Client)(nil)
)

func (c *Client) authorize() error {
	if !c.session.Valid(c.store.now()) {
		return recordstore.ErrUnauthorized
	}
	return nil
}

// List implements recordstore.Store.
func (c *Client) List(ctx context.Context, collection string, q recordstore.Query) ([]recordstore.Record, error) {
	if err := c.authorize(); err != nil {
		return nil, err
	}
	cond, err := recordstore.ParseFilter(q.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recordstore.ErrRejected, err)
	}
	order, err := recordstore.ParseSort(q.Sort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recordstore.ErrRejected, err)
	}

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	matched := make([]*entry, 0)
	for _, e := range c.store.collections[collection] {
		if e.record.String("user_id") != c.session.UserID || !cond.Match(e.record) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return less(matched[i], matched[j], order)
	})

	out := make([]recordstore.Record, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.record.Clone())
	}
	return out, nil
}

func less(a, b *entry, order recordstore.Sort) bool {
	if order.Field == "" {
		return a.seq < b.seq
	}
	av, bv := fmt.Sprint(a.record[order.Field]), fmt.Sprint(b.record[order.Field])
	if av == bv {
		if order.Desc {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	}
	if order.Desc {
		return av > bv
	}
	return av < bv
}

// Get implements recordstore.Store.
func (c *Client) Get(ctx context.Context, collection, id string) (recordstore.Record, error) {
	if err := c.authorize(); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	e, err := c.ownedLocked(collection, id)
	if err != nil {
		return nil, err
	}
	return e.record.Clone(), nil
}

// Create implements recordstore.Store.
func (c *Client) Create(ctx context.Context, collection string, fields recordstore.Record) (string, error) {
	if err := c.authorize(); err != nil {
		return "", err
	}
	if fields.String("user_id") != c.session.UserID {
		return "", fmt.Errorf("%w: user_id must be the authenticated user", recordstore.ErrRejected)
	}
	rec := fields.Clone()
	delete(rec, "id")
	delete(rec, "created")
	delete(rec, "updated")

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.store.insertLocked(collection, rec), nil
}

// Update implements recordstore.Store.
func (c *Client) Update(ctx context.Context, collection, id string, patch recordstore.Record) error {
	if err := c.authorize(); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	e, err := c.ownedLocked(collection, id)
	if err != nil {
		return err
	}
	c.applyLocked(e, patch)
	return nil
}

// Increment implements recordstore.Incrementer. The read and write happen
// under one lock, so concurrent increments never lose an update.
func (c *Client) Increment(ctx context.Context, collection, id, field string, delta int, set recordstore.Record) error {
	if err := c.authorize(); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	e, err := c.ownedLocked(collection, id)
	if err != nil {
		return err
	}
	patch := set.Clone()
	patch[field] = e.record.Number(field) + float64(delta)
	c.applyLocked(e, patch)
	return nil
}

func (c *Client) ownedLocked(collection, id string) (*entry, error) {
	e, ok := c.store.collections[collection][id]
	if !ok || e.record.String("user_id") != c.session.UserID {
		return nil, recordstore.ErrNotFound
	}
	return e, nil
}

func (c *Client) applyLocked(e *entry, patch recordstore.Record) {
	next := e.record.Clone()
	for k, v := range patch {
		switch k {
		case "id", "created", "updated", "user_id":
			continue
		}
		next[k] = v
	}
	next["updated"] = c.store.now().UTC().Format(recordstore.TimestampLayout)
	e.record = next
}

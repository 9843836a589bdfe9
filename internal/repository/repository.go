// Package repository translates between record store rows and domain values,
// one repository per entity kind.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/habitsync/internal/domain"
	"example.com/habitsync/internal/observability"
	"example.com/habitsync/internal/recordstore"
)

// Codec decodes a stored record into a domain value.
type Codec[T any] func(recordstore.Record) T

// Repository is the generic load/get/update surface shared by every kind.
type Repository[T any] struct {
	store      recordstore.Store
	collection string
	decode     Codec[T]
	opts       options
}

type options struct {
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
	mode     CheckInMode
}

// Option configures a repository.
type Option func(*options)

// WithLogger sets the repository logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used for creation and check-in dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the time zone calendar dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithCheckInMode selects how habit check-ins are written.
func WithCheckInMode(mode CheckInMode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   zap.NewNop(),
		now:      time.Now,
		location: time.Local,
		mode:     CheckInReadThenWrite,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newRepository[T any](store recordstore.Store, collection string, decode Codec[T], opts []Option) *Repository[T] {
	return &Repository[T]{store: store, collection: collection, decode: decode, opts: newOptions(opts)}
}

// Collection returns the store collection the repository reads.
func (r *Repository[T]) Collection() string {
	return r.collection
}

// LoadAll returns every record owned by userID, newest-created first.
func (r *Repository[T]) LoadAll(ctx context.Context, userID string) ([]T, error) {
	if userID == "" {
		return nil, fmt.Errorf("load %s: %w", r.collection, domain.ErrAuthExpired)
	}
	started := time.Now()
	records, err := r.store.List(ctx, r.collection, recordstore.ForUser(userID))
	observability.ObserveStoreCall(r.collection, "list", started, err)
	if err != nil {
		return nil, r.classify("load", err)
	}
	items := make([]T, 0, len(records))
	for _, rec := range records {
		items = append(items, r.decode(rec))
	}
	r.opts.logger.Debug("loaded collection", zap.String("collection", r.collection), zap.Int("count", len(items)))
	return items, nil
}

// Get returns one record by id.
func (r *Repository[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	rec, err := r.get(ctx, id)
	if err != nil {
		return zero, err
	}
	return r.decode(rec), nil
}

// Update applies a partial patch in remote field names.
func (r *Repository[T]) Update(ctx context.Context, id string, patch recordstore.Record) error {
	if id == "" {
		return domain.Invalid("id", "is required")
	}
	started := time.Now()
	err := r.store.Update(ctx, r.collection, id, patch)
	observability.ObserveStoreCall(r.collection, "update", started, err)
	if err != nil {
		return r.classify("update", err)
	}
	r.opts.logger.Debug("updated record", zap.String("collection", r.collection), zap.String("id", id))
	return nil
}

func (r *Repository[T]) get(ctx context.Context, id string) (recordstore.Record, error) {
	if id == "" {
		return nil, domain.Invalid("id", "is required")
	}
	started := time.Now()
	rec, err := r.store.Get(ctx, r.collection, id)
	observability.ObserveStoreCall(r.collection, "get", started, err)
	if err != nil {
		return nil, r.classify("get", err)
	}
	return rec, nil
}

func (r *Repository[T]) create(ctx context.Context, fields recordstore.Record) (string, error) {
	started := time.Now()
	id, err := r.store.Create(ctx, r.collection, fields)
	observability.ObserveStoreCall(r.collection, "create", started, err)
	if err != nil {
		return "", r.classify("create", err)
	}
	r.opts.logger.Debug("created record", zap.String("collection", r.collection), zap.String("id", id))
	return id, nil
}

// today is the current calendar date in the configured location.
func (r *Repository[T]) today() string {
	return domain.FormatDate(r.opts.now().In(r.opts.location))
}

// classify maps a store error onto the domain taxonomy, keeping the cause in
// the chain.
func (r *Repository[T]) classify(op string, err error) error {
	var kind error
	switch {
	case errors.Is(err, recordstore.ErrUnauthorized):
		kind = domain.ErrAuthExpired
	case errors.Is(err, recordstore.ErrNotFound):
		kind = domain.ErrNotFound
	case errors.Is(err, recordstore.ErrRejected):
		kind = domain.ErrValidation
	default:
		kind = domain.ErrRemoteUnavailable
	}
	r.opts.logger.Debug("store call failed",
		zap.String("collection", r.collection),
		zap.String("op", op),
		zap.String("kind", domain.ErrorKind(kind)),
		zap.Error(err),
	)
	return fmt.Errorf("%s %s: %w: %w", op, r.collection, kind, err)
}

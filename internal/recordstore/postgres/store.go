// Package postgres stores records in a single jsonb-backed table so the client
// can run against a self-hosted Postgres instead of a remote record store.
package postgres

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/habitsync/internal/recordstore"
	"example.com/habitsync/internal/session"
)

//go:embed schema.sql
var schema string

// Store provides Postgres-backed persistence for every collection.
type Store struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps and session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the records table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate records schema: %w", err)
	}
	return nil
}

// For returns a client acting as sess.
func (s *Store) For(sess *session.Session) *Client {
	return &Client{store: s, session: sess}
}

// Client is a session-scoped view of a Store.
type Client struct {
	store   *Store
	session *session.Session
}

var (
	_ recordstore.Store       = (*Client)(nil)
	_ recordstore.Incrementer = (*Client)(nil)
)

const selectColumns = `SELECT id, user_id, fields, created, updated FROM records`

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

	args := []any{collection, c.session.UserID}
	var where strings.Builder
	where.WriteString(" WHERE collection = $1 AND user_id = $2")
	for _, term := range cond {
		expr := c.fieldExpr(term.Field, &args)
		args = append(args, term.Value)
		fmt.Fprintf(&where, " AND %s = $%d", expr, len(args))
	}

	query := selectColumns + where.String() + c.orderBy(order, &args)
	rows, err := c.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list "+collection, err)
	}
	defer rows.Close()

	out := make([]recordstore.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable("scan "+collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list "+collection, err)
	}
	c.store.logger.Debug("listed records", zap.String("collection", collection), zap.Int("count", len(out)))
	return out, nil
}

// fieldExpr maps a record field onto a column or a jsonb lookup. jsonb keys are
// bound as parameters.
func (c *Client) fieldExpr(field string, args *[]any) string {
	switch field {
	case "id", "user_id":
		return field
	case "created", "updated":
		return "to_char(" + field + " AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS.MS\"Z\"')"
	default:
		*args = append(*args, field)
		return "fields->>$" + strconv.Itoa(len(*args))
	}
}

func (c *Client) orderBy(order recordstore.Sort, args *[]any) string {
	dir := " ASC"
	if order.Desc {
		dir = " DESC"
	}
	if order.Field == "" {
		return " ORDER BY seq ASC"
	}
	var expr string
	switch order.Field {
	case "id", "user_id", "created", "updated":
		expr = order.Field
	default:
		*args = append(*args, order.Field)
		expr = "fields->>$" + strconv.Itoa(len(*args))
	}
	return " ORDER BY " + expr + dir + ", seq" + dir
}

// Get implements recordstore.Store.
func (c *Client) Get(ctx context.Context, collection, id string) (recordstore.Record, error) {
	if err := c.authorize(); err != nil {
		return nil, err
	}
	row := c.store.pool.QueryRow(ctx, selectColumns+` WHERE collection = $1 AND id = $2 AND user_id = $3`,
		collection, id, c.session.UserID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recordstore.ErrNotFound
		}
		return nil, unavailable("get "+collection, err)
	}
	return rec, nil
}

// Create implements recordstore.Store.
func (c *Client) Create(ctx context.Context, collection string, fields recordstore.Record) (string, error) {
	if err := c.authorize(); err != nil {
		return "", err
	}
	if fields.String("user_id") != c.session.UserID {
		return "", fmt.Errorf("%w: user_id must be the authenticated user", recordstore.ErrRejected)
	}
	body, err := json.Marshal(stripSystem(fields))
	if err != nil {
		return "", fmt.Errorf("%w: %v", recordstore.ErrRejected, err)
	}

	id := uuid.NewString()
	now := c.store.now().UTC()
	const insert = `INSERT INTO records (id, collection, user_id, fields, created, updated) VALUES ($1,$2,$3,$4,$5,$5)`
	if _, err := c.store.pool.Exec(ctx, insert, id, collection, c.session.UserID, body, now); err != nil {
		return "", unavailable("create "+collection, err)
	}
	return id, nil
}

// Update implements recordstore.Store.
func (c *Client) Update(ctx context.Context, collection, id string, patch recordstore.Record) error {
	if err := c.authorize(); err != nil {
		return err
	}
	body, err := json.Marshal(stripSystem(patch))
	if err != nil {
		return fmt.Errorf("%w: %v", recordstore.ErrRejected, err)
	}
	const update = `UPDATE records SET fields = fields || $4::jsonb, updated = $5
        WHERE collection = $1 AND id = $2 AND user_id = $3`
	tag, err := c.store.pool.Exec(ctx, update, collection, id, c.session.UserID, body, c.store.now().UTC())
	if err != nil {
		return unavailable("update "+collection, err)
	}
	if tag.RowsAffected() == 0 {
		return recordstore.ErrNotFound
	}
	return nil
}

// Increment implements recordstore.Incrementer with jsonb arithmetic in a
// single UPDATE.
func (c *Client) Increment(ctx context.Context, collection, id, field string, delta int, set recordstore.Record) error {
	if err := c.authorize(); err != nil {
		return err
	}
	body, err := json.Marshal(stripSystem(set))
	if err != nil {
		return fmt.Errorf("%w: %v", recordstore.ErrRejected, err)
	}
	const increment = `UPDATE records
        SET fields = (fields || $4::jsonb) || jsonb_build_object($5::text, COALESCE((fields->>$5)::numeric, 0) + $6),
            updated = $7
        WHERE collection = $1 AND id = $2 AND user_id = $3`
	tag, err := c.store.pool.Exec(ctx, increment, collection, id, c.session.UserID, body, field, delta, c.store.now().UTC())
	if err != nil {
		return unavailable("increment "+collection, err)
	}
	if tag.RowsAffected() == 0 {
		return recordstore.ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (recordstore.Record, error) {
	var (
		id, userID       string
		raw              []byte
		created, updated time.Time
	)
	if err := row.Scan(&id, &userID, &raw, &created, &updated); err != nil {
		return nil, err
	}
	rec := recordstore.Record{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&rec); err != nil {
		return nil, err
	}
	rec["id"] = id
	rec["user_id"] = userID
	rec["created"] = created.UTC().Format(recordstore.TimestampLayout)
	rec["updated"] = updated.UTC().Format(recordstore.TimestampLayout)
	return rec, nil
}

func stripSystem(fields recordstore.Record) recordstore.Record {
	out := fields.Clone()
	for _, key := range []string{"id", "user_id", "created", "updated"} {
		delete(out, key)
	}
	return out
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, recordstore.ErrUnavailable, err)
}

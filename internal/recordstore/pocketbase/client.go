// Package pocketbase implements recordstore.Store over the PocketBase REST API.
package pocketbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/habitsync/internal/recordstore"
	"example.com/habitsync/internal/session"
)

// DefaultPageSize is the perPage value used when fetching full lists.
const DefaultPageSize = 500

const maxErrorBody = 4 << 10

// Client talks to one PocketBase instance on behalf of one session.
type Client struct {
	endpoint   string
	session    *session.Session
	httpClient *http.Client
	pageSize   int
	now        func() time.Time
	logger     *zap.Logger
}

var (
	_ recordstore.Store       = (*Client)(nil)
	_ recordstore.Incrementer = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every HTTP request. Zero disables the timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPageSize overrides the perPage used by List.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithClock overrides the clock used to check session expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client for the PocketBase instance at endpoint.
func NewClient(endpoint string, sess *session.Session, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		session:    sess,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		pageSize:   DefaultPageSize,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listResponse struct {
	Page       int                  `json:"page"`
	PerPage    int                  `json:"perPage"`
	TotalPages int                  `json:"totalPages"`
	Items      []recordstore.Record `json:"items"`
}

// List fetches every matching record, one page at a time, until a short page
// comes back.
func (c *Client) List(ctx context.Context, collection string, q recordstore.Query) ([]recordstore.Record, error) {
	out := make([]recordstore.Record, 0)
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("perPage", strconv.Itoa(c.pageSize))
		params.Set("skipTotal", "1")
		if q.Filter != "" {
			params.Set("filter", q.Filter)
		}
		if q.Sort != "" {
			params.Set("sort", q.Sort)
		}

		var resp listResponse
		if err := c.do(ctx, http.MethodGet, c.recordsPath(collection)+"?"+params.Encode(), nil, &resp); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		out = append(out, resp.Items...)
		if len(resp.Items) < c.pageSize {
			break
		}
	}
	c.logger.Debug("listed records", zap.String("collection", collection), zap.Int("count", len(out)))
	return out, nil
}

// Get fetches one record.
func (c *Client) Get(ctx context.Context, collection, id string) (recordstore.Record, error) {
	var rec recordstore.Record
	if err := c.do(ctx, http.MethodGet, c.recordPath(collection, id), nil, &rec); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// Create stores a new record and returns the id PocketBase assigned.
func (c *Client) Create(ctx context.Context, collection string, fields recordstore.Record) (string, error) {
	var rec recordstore.Record
	if err := c.do(ctx, http.MethodPost, c.recordsPath(collection), fields, &rec); err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	id := rec.ID()
	if id == "" {
		return "", fmt.Errorf("create %s: %w: response carried no id", collection, recordstore.ErrUnavailable)
	}
	return id, nil
}

// Update patches an existing record.
func (c *Client) Update(ctx context.Context, collection, id string, patch recordstore.Record) error {
	if err := c.do(ctx, http.MethodPatch, c.recordPath(collection, id), patch, nil); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Increment adds delta to field server-side using the "field+" modifier and
// applies set in the same request.
func (c *Client) Increment(ctx context.Context, collection, id, field string, delta int, set recordstore.Record) error {
	patch := set.Clone()
	if delta >= 0 {
		patch[field+"+"] = delta
	} else {
		patch[field+"-"] = -delta
	}
	if err := c.do(ctx, http.MethodPatch, c.recordPath(collection, id), patch, nil); err != nil {
		return fmt.Errorf("increment %s/%s %s: %w", collection, id, field, err)
	}
	return nil
}

func (c *Client) recordsPath(collection string) string {
	return c.endpoint + "/api/collections/" + url.PathEscape(collection) + "/records"
}

func (c *Client) recordPath(collection, id string) string {
	return c.recordsPath(collection) + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	if !c.session.Valid(c.now()) {
		return recordstore.ErrUnauthorized
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := c.session.AuthorizationHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(recordstore.ErrUnavailable, ctxErr)
		}
		return fmt.Errorf("%w: %v", recordstore.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &recordstore.StatusError{Status: resp.StatusCode, Body: readMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", recordstore.ErrUnavailable, err)
	}
	return nil
}

// readMessage extracts PocketBase's {"message": ...} error text, falling back
// to the raw body.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(string(raw))
}

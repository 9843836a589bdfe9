package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"example.com/habitsync/internal/coordinator"
	"example.com/habitsync/internal/domain"
)

// FailureView is the JSON shape of a surfaced failure.
type FailureView struct {
	Kind      domain.Kind `json:"kind"`
	Op        string      `json:"op"`
	ErrorKind string      `json:"error_kind"`
	Detail    string      `json:"detail"`
	At        time.Time   `json:"at"`
}

// FailureLog consumes the coordinator's failure channel and keeps the most
// recent failures for the view.
type FailureLog struct {
	mu       sync.Mutex
	capacity int
	items    []FailureView
}

// NewFailureLog keeps up to capacity failures.
func NewFailureLog(capacity int) *FailureLog {
	if capacity < 1 {
		capacity = 1
	}
	return &FailureLog{capacity: capacity}
}

// Run drains failures until ctx is done. It should be called in a goroutine.
func (l *FailureLog) Run(ctx context.Context, failures <-chan coordinator.Failure) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-failures:
			l.add(f)
		}
	}
}

func (l *FailureLog) add(f coordinator.Failure) {
	view := FailureView{Kind: f.Kind, Op: f.Op, ErrorKind: domain.ErrorKind(f.Err), At: f.At}
	if f.Err != nil {
		view.Detail = f.Err.Error()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, view)
	if len(l.items) > l.capacity {
		l.items = l.items[len(l.items)-l.capacity:]
	}
}

// Recent returns the kept failures, newest first.
func (l *FailureLog) Recent() []FailureView {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FailureView, 0, len(l.items))
	for i := len(l.items) - 1; i >= 0; i-- {
		out = append(out, l.items[i])
	}
	return out
}

// WithFailureLog enables /v1/failures.
func WithFailureLog(log *FailureLog) Option {
	return func(h *Handler) {
		h.failures = log
	}
}

func (h *Handler) recentFailures(w http.ResponseWriter, r *http.Request) {
	if h.failures == nil {
		writeError(w, http.StatusNotFound, "not_found", "failure log disabled")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]FailureView{"items": h.failures.Recent()})
}

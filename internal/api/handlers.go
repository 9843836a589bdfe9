// Package api exposes the coordinator to a browser or script as a small JSON
// HTTP API: snapshots on GET, intents on POST.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/habitsync/internal/changefeed"
	"example.com/habitsync/internal/coordinator"
	"example.com/habitsync/internal/domain"
)

// Syncer is the coordinator surface the handlers use.
type Syncer interface {
	Habits() coordinator.Snapshot[domain.Habit]
	Goals() coordinator.Snapshot[domain.Goal]
	Journal() coordinator.Snapshot[domain.JournalEntry]
	Overview() coordinator.Overview
	CheckedOn(date string) []domain.Habit
	CheckIn(ctx context.Context, habitID string) (bool, error)
	CreateHabit(ctx context.Context, in domain.NewHabit) (string, error)
	CreateGoal(ctx context.Context, in domain.NewGoal) (string, error)
	UpdateGoalProgress(ctx context.Context, goalID string, current float64) error
	AddJournalEntry(ctx context.Context, in domain.NewJournalEntry) (string, error)
	Reload(ctx context.Context, kind domain.Kind) error
	ReloadAll(ctx context.Context) error
}

// Handler coordinates HTTP requests with the Syncer.
type Handler struct {
	sync     Syncer
	feed     *changefeed.Broadcaster
	failures *FailureLog
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithFeed enables the /v1/events stream.
func WithFeed(feed *changefeed.Broadcaster) Option {
	return func(h *Handler) {
		h.feed = feed
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock overrides the clock used to default the calendar date.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(sync Syncer, opts ...Option) *Handler {
	h := &Handler{sync: sync, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/habits", h.habits)
	mux.HandleFunc("/v1/habits/", h.habitAction)
	mux.HandleFunc("/v1/goals", h.goals)
	mux.HandleFunc("/v1/goals/", h.goalAction)
	mux.HandleFunc("/v1/journal", h.journal)
	mux.HandleFunc("/v1/overview", h.overview)
	mux.HandleFunc("/v1/calendar", h.calendar)
	mux.HandleFunc("/v1/reload", h.reload)
	mux.HandleFunc("/v1/events", h.events)
	mux.HandleFunc("/v1/failures", h.recentFailures)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) habits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, collectionView(h.sync.Habits(), func(item domain.Habit) domain.Habit { return item }))
	case http.MethodPost:
		var req domain.NewHabit
		if !decode(w, r, &req) {
			return
		}
		id, err := h.sync.CreateHabit(r.Context(), req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) habitAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitAction(r.URL.Path, "/v1/habits/")
	if !ok || action != "check-in" {
		writeError(w, http.StatusNotFound, "not_found", "unknown habit route")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	changed, err := h.sync.CheckIn(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckInResponse{ID: id, CheckedIn: changed})
}

func (h *Handler) goals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, collectionView(h.sync.Goals(), toGoalView))
	case http.MethodPost:
		var req domain.NewGoal
		if !decode(w, r, &req) {
			return
		}
		id, err := h.sync.CreateGoal(r.Context(), req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) goalAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitAction(r.URL.Path, "/v1/goals/")
	if !ok || action != "progress" {
		writeError(w, http.StatusNotFound, "not_found", "unknown goal route")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	var req ProgressRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Current == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "current is required")
		return
	}
	if err := h.sync.UpdateGoalProgress(r.Context(), id, *req.Current); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreatedResponse{ID: id})
}

func (h *Handler) journal(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, collectionView(h.sync.Journal(), func(item domain.JournalEntry) domain.JournalEntry { return item }))
	case http.MethodPost:
		var req domain.NewJournalEntry
		if !decode(w, r, &req) {
			return
		}
		id, err := h.sync.AddJournalEntry(r.Context(), req)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Overview())
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = domain.FormatDate(h.now())
	}
	if !domain.ValidDate(date) {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be yyyy-MM-dd")
		return
	}
	writeJSON(w, http.StatusOK, CalendarResponse{Date: date, Items: h.sync.CheckedOn(date)})
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	var err error
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, ok := domain.ParseKind(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown kind")
			return
		}
		err = h.sync.Reload(r.Context(), kind)
	} else {
		err = h.sync.ReloadAll(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Overview())
}

// events streams change events as server-sent events until the client leaves.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusNotFound, "not_found", "change feed disabled")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	events, cancel := h.feed.Subscribe(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			body, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: " + string(event.Type) + "\ndata: " + string(body) + "\n\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// CreatedResponse carries the id of a created or updated record.
type CreatedResponse struct {
	ID string `json:"id"`
}

// CheckInResponse reports whether a check-in moved the streak.
type CheckInResponse struct {
	ID        string `json:"id"`
	CheckedIn bool   `json:"checked_in"`
}

// ProgressRequest is the body of a goal progress update.
type ProgressRequest struct {
	Current *float64 `json:"current"`
}

// CalendarResponse lists the habits checked in on Date.
type CalendarResponse struct {
	Date  string         `json:"date"`
	Items []domain.Habit `json:"items"`
}

// CollectionView is the JSON shape of a collection snapshot.
type CollectionView[T any] struct {
	Kind      domain.Kind       `json:"kind"`
	State     coordinator.State `json:"state"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
	LoadedAt  *time.Time        `json:"loaded_at,omitempty"`
	Items     []T               `json:"items"`
}

// GoalView adds the derived progress figures to a goal.
type GoalView struct {
	domain.Goal
	Progress        float64 `json:"progress"`
	PercentComplete int     `json:"percent_complete"`
}

func toGoalView(g domain.Goal) GoalView {
	return GoalView{Goal: g, Progress: g.Progress(), PercentComplete: g.PercentComplete()}
}

func collectionView[T, V any](snap coordinator.Snapshot[T], convert func(T) V) CollectionView[V] {
	view := CollectionView[V]{
		Kind:      snap.Kind,
		State:     snap.State,
		ErrorKind: snap.ErrorKind(),
		Items:     make([]V, 0, len(snap.Items)),
	}
	if snap.Err != nil {
		view.Error = snap.Err.Error()
	}
	if !snap.LoadedAt.IsZero() {
		loaded := snap.LoadedAt
		view.LoadedAt = &loaded
	}
	for _, item := range snap.Items {
		view.Items = append(view.Items, convert(item))
	}
	return view
}

// splitAction parses "<prefix><id>/<action>".
func splitAction(path, prefix string) (string, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" || action == "" || strings.Contains(action, "/") {
		return "", "", false
	}
	return id, action, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrAuthExpired):
		writeError(w, http.StatusUnauthorized, "auth_expired", "session expired, sign in again")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrRemoteUnavailable):
		writeError(w, http.StatusBadGateway, "remote_unavailable", err.Error())
	default:
		h.logger.Error("unclassified error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

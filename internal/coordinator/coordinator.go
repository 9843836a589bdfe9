// Package coordinator owns the in-memory habits, goals and journal entries of
// one session and keeps them consistent with the record store: every
// successful write is followed by a full reload of the affected collection.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"example.com/habitsync/internal/changefeed"
	"example.com/habitsync/internal/domain"
	"example.com/habitsync/internal/observability"
	"example.com/habitsync/internal/session"
)

// Intent names used in failures, events and metrics.
const (
	IntentCheckIn        = "check_in"
	IntentCreateHabit    = "create_habit"
	IntentCreateGoal     = "create_goal"
	IntentUpdateProgress = "update_goal_progress"
	IntentAddJournal     = "add_journal_entry"
	OpReload             = "reload"
)

// HabitRepository is the habit persistence the coordinator needs.
type HabitRepository interface {
	LoadAll(ctx context.Context, userID string) ([]domain.Habit, error)
	Create(ctx context.Context, userID string, in domain.NewHabit) (string, error)
	CheckIn(ctx context.Context, id string) (bool, error)
}

// GoalRepository is the goal persistence the coordinator needs.
type GoalRepository interface {
	LoadAll(ctx context.Context, userID string) ([]domain.Goal, error)
	Create(ctx context.Context, userID string, in domain.NewGoal) (string, error)
	UpdateProgress(ctx context.Context, id string, current float64) error
}

// JournalRepository is the journal persistence the coordinator needs.
type JournalRepository interface {
	LoadAll(ctx context.Context, userID string) ([]domain.JournalEntry, error)
	Create(ctx context.Context, userID string, in domain.NewJournalEntry) (string, error)
}

// Failure is a repository failure surfaced to the view layer.
type Failure struct {
	Kind domain.Kind
	Op   string
	Err  error
	At   time.Time
}

// CollectionStatus summarizes one collection for the overview.
type CollectionStatus struct {
	Kind      domain.Kind `json:"kind"`
	State     State       `json:"state"`
	Items     int         `json:"items"`
	ErrorKind string      `json:"error_kind,omitempty"`
	LoadedAt  time.Time   `json:"loaded_at,omitempty"`
}

// Overview is the dashboard summary across all collections.
type Overview struct {
	Habits  CollectionStatus `json:"habits"`
	Goals   CollectionStatus `json:"goals"`
	Journal CollectionStatus `json:"journal"`
	Loading bool             `json:"loading"`
}

// Coordinator sequences loads, intents and reloads for one session.
type Coordinator struct {
	userID string

	habitRepo   HabitRepository
	goalRepo    GoalRepository
	journalRepo JournalRepository

	habits  *collection[domain.Habit]
	goals   *collection[domain.Goal]
	journal *collection[domain.JournalEntry]

	failures  chan Failure
	dropped   atomic.Uint64
	publisher changefeed.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used for load and failure timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPublisher sets where change events go. Publish must not block.
func WithPublisher(p changefeed.Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithFailureBuffer sets the capacity of the failure channel.
func WithFailureBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.failures = make(chan Failure, n)
		}
	}
}

// New constructs a Coordinator for sess. Nothing is loaded until Start.
func New(sess *session.Session, habits HabitRepository, goals GoalRepository, journal JournalRepository, opts ...Option) *Coordinator {
	c := &Coordinator{
		habitRepo:   habits,
		goalRepo:    goals,
		journalRepo: journal,
		habits:      newCollection(domain.KindHabit, habits.LoadAll),
		goals:       newCollection(domain.KindGoal, goals.LoadAll),
		journal:     newCollection(domain.KindJournal, journal.LoadAll),
		failures:    make(chan Failure, 64),
		publisher:   changefeed.Noop{},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	if sess != nil {
		c.userID = sess.UserID
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start issues the initial load of every collection concurrently. Each load is
// independent: one failing does not affect the others.
func (c *Coordinator) Start(ctx context.Context) error {
	return c.ReloadAll(ctx)
}

// ReloadAll reloads every collection concurrently and joins their errors.
func (c *Coordinator) ReloadAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, kind := range domain.Kinds {
		wg.Add(1)
		go func(kind domain.Kind) {
			defer wg.Done()
			if err := c.Reload(ctx, kind); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(kind)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Reload re-fetches one collection. On failure the previous items are kept,
// the collection enters StateError and the failure is reported. A result
// overtaken by a newer successful reload is dropped silently.
func (c *Coordinator) Reload(ctx context.Context, kind domain.Kind) error {
	var res reloadResult
	switch kind {
	case domain.KindHabit:
		res = c.habits.reload(ctx, c.userID, c.now)
	case domain.KindGoal:
		res = c.goals.reload(ctx, c.userID, c.now)
	case domain.KindJournal:
		res = c.journal.reload(ctx, c.userID, c.now)
	default:
		return domain.Invalid("kind", fmt.Sprintf("unknown kind %q", kind))
	}

	observability.RecordReload(string(kind), res.err)
	if res.stale {
		observability.RecordStaleReload(string(kind))
		c.logger.Debug("discarded out-of-order reload", zap.String("kind", string(kind)), zap.Error(res.err))
		return nil
	}
	if res.err != nil {
		c.report(ctx, kind, OpReload, res.err)
		return res.err
	}

	loadedAt := c.status(kind).LoadedAt
	observability.RecordSnapshot(string(kind), res.items, loadedAt)
	c.publish(ctx, changefeed.Event{Type: changefeed.EventReloaded, Kind: string(kind), Items: res.items})
	return nil
}

// CheckIn records today's check-in of a habit. Checking in twice on the same
// day is a successful no-op; the boolean reports whether the streak moved.
func (c *Coordinator) CheckIn(ctx context.Context, habitID string) (bool, error) {
	if strings.TrimSpace(habitID) == "" {
		return false, c.rejected(IntentCheckIn, domain.Invalid("id", "is required"))
	}
	changed, err := c.habitRepo.CheckIn(ctx, habitID)
	if err = c.afterWrite(ctx, domain.KindHabit, IntentCheckIn, habitID, err); err != nil {
		return false, err
	}
	return changed, nil
}

// CreateHabit creates a habit and reloads the habit collection.
func (c *Coordinator) CreateHabit(ctx context.Context, in domain.NewHabit) (string, error) {
	if err := in.Validate(); err != nil {
		return "", c.rejected(IntentCreateHabit, err)
	}
	id, err := c.habitRepo.Create(ctx, c.userID, in)
	if err = c.afterWrite(ctx, domain.KindHabit, IntentCreateHabit, id, err); err != nil {
		return "", err
	}
	return id, nil
}

// CreateGoal creates a goal and reloads the goal collection.
func (c *Coordinator) CreateGoal(ctx context.Context, in domain.NewGoal) (string, error) {
	if err := in.Validate(); err != nil {
		return "", c.rejected(IntentCreateGoal, err)
	}
	id, err := c.goalRepo.Create(ctx, c.userID, in)
	if err = c.afterWrite(ctx, domain.KindGoal, IntentCreateGoal, id, err); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateGoalProgress sets a goal's current value and reloads the goal collection.
func (c *Coordinator) UpdateGoalProgress(ctx context.Context, goalID string, current float64) error {
	if strings.TrimSpace(goalID) == "" {
		return c.rejected(IntentUpdateProgress, domain.Invalid("id", "is required"))
	}
	if err := domain.ValidateProgress(current); err != nil {
		return c.rejected(IntentUpdateProgress, err)
	}
	err := c.goalRepo.UpdateProgress(ctx, goalID, current)
	return c.afterWrite(ctx, domain.KindGoal, IntentUpdateProgress, goalID, err)
}

// AddJournalEntry creates an entry dated today and reloads the journal.
func (c *Coordinator) AddJournalEntry(ctx context.Context, in domain.NewJournalEntry) (string, error) {
	if err := in.Validate(); err != nil {
		return "", c.rejected(IntentAddJournal, err)
	}
	id, err := c.journalRepo.Create(ctx, c.userID, in)
	if err = c.afterWrite(ctx, domain.KindJournal, IntentAddJournal, id, err); err != nil {
		return "", err
	}
	return id, nil
}

// afterWrite finishes an intent. A successful write is followed by a reload
// whose failure is reported but not returned. A failed write leaves the
// collection untouched, except that NotFound triggers a resync.
func (c *Coordinator) afterWrite(ctx context.Context, kind domain.Kind, intent, recordID string, err error) error {
	observability.RecordMutation(intent, err)
	if err != nil {
		c.report(ctx, kind, intent, err)
		if errors.Is(err, domain.ErrNotFound) {
			_ = c.Reload(ctx, kind)
		}
		return err
	}
	c.publish(ctx, changefeed.Event{Type: changefeed.EventMutated, Kind: string(kind), Intent: intent, RecordID: recordID})
	_ = c.Reload(ctx, kind)
	return nil
}

func (c *Coordinator) rejected(intent string, err error) error {
	observability.RecordMutation(intent, err)
	c.logger.Debug("intent rejected", zap.String("intent", intent), zap.Error(err))
	return err
}

// report logs a failure, queues it on the failure channel without blocking
// and publishes it as a change event.
func (c *Coordinator) report(ctx context.Context, kind domain.Kind, op string, err error) {
	c.logger.Error("sync failure",
		zap.String("kind", string(kind)),
		zap.String("op", op),
		zap.String("error_kind", domain.ErrorKind(err)),
		zap.Error(err),
	)
	f := Failure{Kind: kind, Op: op, Err: err, At: c.now()}
	select {
	case c.failures <- f:
	default:
		c.dropped.Add(1)
		observability.RecordDroppedFailure()
	}
	c.publish(ctx, changefeed.Event{
		Type:      changefeed.EventFailed,
		Kind:      string(kind),
		Intent:    op,
		ErrorKind: domain.ErrorKind(err),
		Reason:    err.Error(),
	})
}

func (c *Coordinator) publish(ctx context.Context, event changefeed.Event) {
	event.UserID = c.userID
	event.OccurredAt = c.now().UTC()
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("publish change event failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// Failures returns the failure channel. It is never closed.
func (c *Coordinator) Failures() <-chan Failure {
	return c.failures
}

// DroppedFailures returns how many failures were discarded because the
// channel was full.
func (c *Coordinator) DroppedFailures() uint64 {
	return c.dropped.Load()
}

// UserID returns the session user the coordinator acts for.
func (c *Coordinator) UserID() string {
	return c.userID
}

// Habits returns a snapshot of the habit collection, newest first.
func (c *Coordinator) Habits() Snapshot[domain.Habit] {
	return c.habits.snapshot()
}

// Goals returns a snapshot of the goal collection, newest first.
func (c *Coordinator) Goals() Snapshot[domain.Goal] {
	return c.goals.snapshot()
}

// Journal returns a snapshot of the journal, newest first.
func (c *Coordinator) Journal() Snapshot[domain.JournalEntry] {
	return c.journal.snapshot()
}

// CheckedOn returns the habits whose last check-in falls on date.
func (c *Coordinator) CheckedOn(date string) []domain.Habit {
	out := make([]domain.Habit, 0)
	for _, h := range c.habits.snapshot().Items {
		if h.CheckedOn(date) {
			out = append(out, h)
		}
	}
	return out
}

// Overview summarizes every collection. Loading is true while any collection
// is loading.
func (c *Coordinator) Overview() Overview {
	o := Overview{
		Habits:  c.habits.status(),
		Goals:   c.goals.status(),
		Journal: c.journal.status(),
	}
	o.Loading = o.Habits.State == StateLoading || o.Goals.State == StateLoading || o.Journal.State == StateLoading
	return o
}

func (c *Coordinator) status(kind domain.Kind) CollectionStatus {
	switch kind {
	case domain.KindHabit:
		return c.habits.status()
	case domain.KindGoal:
		return c.goals.status()
	default:
		return c.journal.status()
	}
}

package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/habitsync/internal/changefeed"
	"example.com/habitsync/internal/domain"
	"example.com/habitsync/internal/recordstore"
	"example.com/habitsync/internal/recordstore/memory"
	"example.com/habitsync/internal/repository"
	"example.com/habitsync/internal/session"
	"example.com/habitsync/internal/testsupport"
)

const user = "u1"

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type fixture struct {
	store *memory.Store
	spy   *testsupport.SpyStore
	coord *Coordinator
}

func newFixture(t *testing.T, mode repository.CheckInMode, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore(memory.WithClock(clock))
	spy := testsupport.NewSpyStore(store.For(session.Local(user)))
	repoOpts := []repository.Option{
		repository.WithClock(clock),
		repository.WithLocation(time.UTC),
		repository.WithCheckInMode(mode),
	}
	coord := New(session.Local(user),
		repository.NewHabits(spy, repoOpts...),
		repository.NewGoals(spy, repoOpts...),
		repository.NewJournal(spy, repoOpts...),
		append([]Option{WithClock(clock)}, opts...)...,
	)
	return &fixture{store: store, spy: spy, coord: coord}
}

func (f *fixture) seedGoals() {
	f.store.Seed(recordstore.CollectionGoals, recordstore.Record{"title": "GoalB", "target": 10, "deadline": "2024-06-01", "created": "2024-01-01 00:00:00.000Z", "user_id": user})
	f.store.Seed(recordstore.CollectionGoals, recordstore.Record{"title": "GoalA", "target": 5, "deadline": "2024-06-01", "created": "2024-01-02 00:00:00.000Z", "user_id": user})
}

func (f *fixture) seedHabit(streak int, last string) string {
	return f.store.Seed(recordstore.CollectionHabits, recordstore.Record{
		"title": "Daily Exercise", "habit_type": "building", "streak_count": streak,
		"last_check_in": last, "user_id": user,
	})
}

func goalTitles(goals []domain.Goal) []string {
	out := make([]string, 0, len(goals))
	for _, g := range goals {
		out = append(out, g.Title)
	}
	return out
}

func drain(ch <-chan Failure) []Failure {
	var out []Failure
	for {
		select {
		case f := <-ch:
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestCollectionsStartUninitialized(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	snap := f.coord.Habits()
	assert.Equal(t, StateUninitialized, snap.State)
	assert.Empty(t, snap.Items)
	assert.False(t, f.coord.Overview().Loading)
}

func TestStartLoadsEveryCollection(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	f.seedGoals()
	f.seedHabit(5, "2024-01-09")
	f.store.Seed(recordstore.CollectionJournal, recordstore.Record{"content": "Felt good", "entry_date": "2024-01-09", "user_id": user})

	require.NoError(t, f.coord.Start(context.Background()))

	goals := f.coord.Goals()
	assert.Equal(t, StateReady, goals.State)
	assert.Equal(t, []string{"GoalA", "GoalB"}, goalTitles(goals.Items))
	assert.Equal(t, testNow, goals.LoadedAt)
	assert.Len(t, f.coord.Habits().Items, 1)
	assert.Len(t, f.coord.Journal().Items, 1)
	assert.Equal(t, 3, f.spy.Calls(testsupport.OpList))

	overview := f.coord.Overview()
	assert.Equal(t, 2, overview.Goals.Items)
	assert.Equal(t, StateReady, overview.Journal.State)
	assert.False(t, overview.Loading)
}

func TestStartFailuresAreIndependent(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	f.seedGoals()
	f.spy.FailNth(testsupport.OpList, 1, &recordstore.StatusError{Status: 503})

	err := f.coord.Start(context.Background())
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	states := []State{f.coord.Habits().State, f.coord.Goals().State, f.coord.Journal().State}
	assert.ElementsMatch(t, []State{StateError, StateReady, StateReady}, states)
}

func TestFailedReloadKeepsLastSnapshot(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	f.seedGoals()
	ctx := context.Background()
	require.NoError(t, f.coord.Reload(ctx, domain.KindGoal))

	f.spy.Fail(testsupport.OpList, &recordstore.StatusError{Status: 502})
	err := f.coord.Reload(ctx, domain.KindGoal)
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	goals := f.coord.Goals()
	assert.Equal(t, []string{"GoalA", "GoalB"}, goalTitles(goals.Items))
	assert.Equal(t, StateError, goals.State)
	assert.Equal(t, "remote_unavailable", goals.ErrorKind())

	failures := drain(f.coord.Failures())
	require.Len(t, failures, 1)
	assert.Equal(t, domain.KindGoal, failures[0].Kind)
	assert.Equal(t, OpReload, failures[0].Op)

	f.spy.Fail(testsupport.OpList, nil)
	require.NoError(t, f.coord.Reload(ctx, domain.KindGoal))
	assert.Equal(t, StateReady, f.coord.Goals().State)
	assert.NoError(t, f.coord.Goals().Err)
}

// holdFirst returns a hook that parks the first call until release is closed.
func holdFirst(entered chan<- struct{}, release <-chan struct{}) func(string) {
	var once sync.Once
	return func(string) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return
		}
		close(entered)
		<-release
	}
}

func seedGoalC(f *fixture) {
	f.store.Seed(recordstore.CollectionGoals, recordstore.Record{"title": "GoalC", "target": 3, "deadline": "2024-06-01", "created": "2024-01-03 00:00:00.000Z", "user_id": user})
}

func TestOlderSuccessReplacesNewerFailure(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	f.seedGoals()
	ctx := context.Background()
	require.NoError(t, f.coord.Reload(ctx, domain.KindGoal))
	seedGoalC(f)

	entered, release := make(chan struct{}), make(chan struct{})
	f.spy.BeforeList = holdFirst(entered, release)
	f.spy.FailNth(testsupport.OpList, 2, &recordstore.StatusError{Status: 503})

	slow := make(chan error, 1)
	go func() { slow <- f.coord.Reload(ctx, domain.KindGoal) }()
	<-entered

	err := f.coord.Reload(ctx, domain.KindGoal)
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Equal(t, StateLoading, f.coord.Goals().State)

	close(release)
	require.NoError(t, <-slow)
	f.spy.BeforeList = nil

	goals := f.coord.Goals()
	assert.Equal(t, []string{"GoalC", "GoalA", "GoalB"}, goalTitles(goals.Items))
	assert.Equal(t, StateReady, goals.State)
	assert.NoError(t, goals.Err)
}

func TestOlderSuccessDoesNotOverwriteNewerSuccess(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	f.seedGoals()
	ctx := context.Background()

	entered, release := make(chan struct{}), make(chan struct{})
	f.spy.AfterList = holdFirst(entered, release)

	slow := make(chan error, 1)
	go func() { slow <- f.coord.Reload(ctx, domain.KindGoal) }()
	<-entered

	seedGoalC(f)
	require.NoError(t, f.coord.Reload(ctx, domain.KindGoal))
	assert.Equal(t, []string{"GoalC", "GoalA", "GoalB"}, goalTitles(f.coord.Goals().Items))

	close(release)
	require.NoError(t, <-slow)
	f.spy.AfterList = nil

	goals := f.coord.Goals()
	assert.Equal(t, []string{"GoalC", "GoalA", "GoalB"}, goalTitles(goals.Items))
	assert.Equal(t, StateReady, goals.State)
}

func TestOlderFailureAfterNewerSuccessIsDropped(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	f.seedGoals()
	ctx := context.Background()

	entered, release := make(chan struct{}), make(chan struct{})
	f.spy.BeforeList = holdFirst(entered, release)
	f.spy.FailNth(testsupport.OpList, 1, &recordstore.StatusError{Status: 503})

	slow := make(chan error, 1)
	go func() { slow <- f.coord.Reload(ctx, domain.KindGoal) }()
	<-entered

	require.NoError(t, f.coord.Reload(ctx, domain.KindGoal))

	close(release)
	require.NoError(t, <-slow)
	f.spy.BeforeList = nil

	goals := f.coord.Goals()
	assert.Equal(t, []string{"GoalA", "GoalB"}, goalTitles(goals.Items))
	assert.Equal(t, StateReady, goals.State)
	assert.NoError(t, goals.Err)
	assert.Empty(t, drain(f.coord.Failures()))
}

func TestCheckInReloadsHabits(t *testing.T) {
	feed := changefeed.NewBroadcaster()
	events, cancel := feed.Subscribe(16)
	defer cancel()

	f := newFixture(t, repository.CheckInReadThenWrite, WithPublisher(feed))
	id := f.seedHabit(5, "2024-01-09")
	ctx := context.Background()
	require.NoError(t, f.coord.Reload(ctx, domain.KindHabit))
	listsBefore := f.spy.Calls(testsupport.OpList)

	changed, err := f.coord.CheckIn(ctx, id)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, listsBefore+1, f.spy.Calls(testsupport.OpList))

	habits := f.coord.Habits().Items
	require.Len(t, habits, 1)
	assert.Equal(t, 6, habits[0].Streak)
	assert.Equal(t, "2024-01-10", habits[0].LastChecked)
	assert.Equal(t, []domain.Habit{habits[0]}, f.coord.CheckedOn("2024-01-10"))
	assert.Empty(t, f.coord.CheckedOn("2024-01-09"))

	var types []changefeed.EventType
	for len(events) > 0 {
		event := <-events
		assert.Equal(t, user, event.UserID)
		types = append(types, event.Type)
	}
	assert.Equal(t, []changefeed.EventType{changefeed.EventReloaded, changefeed.EventMutated, changefeed.EventReloaded}, types)
}

func TestSecondCheckInSameDayDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	id := f.seedHabit(5, "2024-01-09")
	ctx := context.Background()

	changed, err := f.coord.CheckIn(ctx, id)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.coord.CheckIn(ctx, id)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 6, f.coord.Habits().Items[0].Streak)
	assert.Equal(t, 1, f.spy.Calls(testsupport.OpUpdate))
}

func TestWriteFailureLeavesStateIntact(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	id := f.seedHabit(5, "2024-01-09")
	ctx := context.Background()
	require.NoError(t, f.coord.Reload(ctx, domain.KindHabit))
	before := f.coord.Habits()
	listsBefore := f.spy.Calls(testsupport.OpList)

	f.spy.Fail(testsupport.OpUpdate, &recordstore.StatusError{Status: 500})
	_, err := f.coord.CheckIn(ctx, id)
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	after := f.coord.Habits()
	assert.Equal(t, before.Items, after.Items)
	assert.Equal(t, StateReady, after.State)
	assert.Equal(t, listsBefore, f.spy.Calls(testsupport.OpList))

	failures := drain(f.coord.Failures())
	require.Len(t, failures, 1)
	assert.Equal(t, IntentCheckIn, failures[0].Op)
}

func TestNotFoundTriggersReload(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	ctx := context.Background()
	listsBefore := f.spy.Calls(testsupport.OpList)

	_, err := f.coord.CheckIn(ctx, "deleted-elsewhere")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, listsBefore+1, f.spy.Calls(testsupport.OpList))
	assert.Equal(t, StateReady, f.coord.Habits().State)

	err = f.coord.UpdateGoalProgress(ctx, "missing", 3)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, listsBefore+2, f.spy.Calls(testsupport.OpList))
}

func TestReloadFailureAfterWriteIsReportedNotReturned(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	ctx := context.Background()

	f.spy.FailNth(testsupport.OpList, 1, &recordstore.StatusError{Status: 503})
	id, err := f.coord.AddJournalEntry(ctx, domain.NewJournalEntry{Content: "Walked 5k"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	failures := drain(f.coord.Failures())
	require.Len(t, failures, 1)
	assert.Equal(t, OpReload, failures[0].Op)
	assert.Equal(t, domain.KindJournal, failures[0].Kind)
	assert.Equal(t, StateError, f.coord.Journal().State)

	require.NoError(t, f.coord.Reload(ctx, domain.KindJournal))
	entries := f.coord.Journal().Items
	require.Len(t, entries, 1)
	assert.Equal(t, domain.JournalEntry{ID: id, Date: "2024-01-10", Content: "Walked 5k"}, entries[0])
}

func TestValidationFailuresMakeNoStoreCalls(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	ctx := context.Background()

	_, err := f.coord.CreateGoal(ctx, domain.NewGoal{Title: "Run", Target: -1, Deadline: "2024-05-01"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.coord.CreateGoal(ctx, domain.NewGoal{Title: "", Target: 10, Deadline: "2024-05-01"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.coord.AddJournalEntry(ctx, domain.NewJournalEntry{Content: "   "})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.coord.CreateHabit(ctx, domain.NewHabit{Type: domain.HabitGood})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.coord.CheckIn(ctx, " ")
	require.ErrorIs(t, err, domain.ErrValidation)
	err = f.coord.UpdateGoalProgress(ctx, "g1", -2)
	require.ErrorIs(t, err, domain.ErrValidation)

	assert.Zero(t, f.spy.TotalCalls())
	assert.Empty(t, drain(f.coord.Failures()))
}

func TestCreateGoalAndUpdateProgress(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	ctx := context.Background()

	id, err := f.coord.CreateGoal(ctx, domain.NewGoal{Title: "Read books", Target: 12, Deadline: "2024-12-31"})
	require.NoError(t, err)
	require.NoError(t, f.coord.UpdateGoalProgress(ctx, id, 15))

	goals := f.coord.Goals().Items
	require.Len(t, goals, 1)
	assert.Equal(t, 15.0, goals[0].Current)
	assert.Equal(t, 125, goals[0].PercentComplete())

	habitID, err := f.coord.CreateHabit(ctx, domain.NewHabit{Name: "Meditate", Type: domain.HabitGood})
	require.NoError(t, err)
	habits := f.coord.Habits().Items
	require.Len(t, habits, 1)
	assert.Equal(t, domain.Habit{ID: habitID, Name: "Meditate", Type: domain.HabitGood}, habits[0])
}

// Two check-ins read the same streak before either writes.
func checkInConcurrently(t *testing.T, f *fixture, id string) {
	t.Helper()
	var reads sync.WaitGroup
	reads.Add(2)
	f.spy.AfterGet = func(collection, _ string) {
		if collection != recordstore.CollectionHabits {
			return
		}
		reads.Done()
		reads.Wait()
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.CheckIn(context.Background(), id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	f.spy.AfterGet = nil
}

func TestConcurrentCheckInsMayLoseAnIncrement(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	id := f.seedHabit(5, "2024-01-09")

	checkInConcurrently(t, f, id)

	require.NoError(t, f.coord.Reload(context.Background(), domain.KindHabit))
	streak := f.coord.Habits().Items[0].Streak
	assert.Contains(t, []int{6, 7}, streak)
}

func TestConcurrentAtomicCheckInsBothCount(t *testing.T) {
	f := newFixture(t, repository.CheckInAtomic)
	id := f.seedHabit(5, "2024-01-09")

	checkInConcurrently(t, f, id)

	require.NoError(t, f.coord.Reload(context.Background(), domain.KindHabit))
	assert.Equal(t, 7, f.coord.Habits().Items[0].Streak)
	assert.Equal(t, 2, f.spy.Calls(testsupport.OpIncrement))
}

func TestFailureChannelDropsWhenFull(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite, WithFailureBuffer(1))
	f.spy.Fail(testsupport.OpList, recordstore.ErrUnavailable)

	_ = f.coord.Reload(context.Background(), domain.KindGoal)
	_ = f.coord.Reload(context.Background(), domain.KindGoal)

	assert.Len(t, drain(f.coord.Failures()), 1)
	assert.EqualValues(t, 1, f.coord.DroppedFailures())
}

func TestUnauthorizedLoadIsAuthExpired(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	f.spy.Fail(testsupport.OpList, &recordstore.StatusError{Status: 401})

	err := f.coord.Reload(context.Background(), domain.KindHabit)
	require.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.Equal(t, "auth_expired", f.coord.Habits().ErrorKind())
}

func TestReloadUnknownKind(t *testing.T) {
	f := newFixture(t, repository.CheckInReadThenWrite)
	err := f.coord.Reload(context.Background(), domain.Kind("tasks"))
	require.ErrorIs(t, err, domain.ErrValidation)
}

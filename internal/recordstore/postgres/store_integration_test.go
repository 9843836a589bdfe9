//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/habitsync/internal/recordstore"
	"example.com/habitsync/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("habits"),
		postgrescontainer.WithUsername("habits"),
		postgrescontainer.WithPassword("habits"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(pool)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestStoreScopesRecordsToSessionUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice := store.For(session.Local("alice"))
	bob := store.For(session.Local("bob"))

	first, err := alice.Create(ctx, recordstore.CollectionGoals, recordstore.Record{"title": "GoalB", "target": 10, "user_id": "alice"})
	require.NoError(t, err)
	_, err = alice.Create(ctx, recordstore.CollectionGoals, recordstore.Record{"title": "GoalA", "target": 5, "user_id": "alice"})
	require.NoError(t, err)
	_, err = bob.Create(ctx, recordstore.CollectionGoals, recordstore.Record{"title": "Hidden", "target": 1, "user_id": "bob"})
	require.NoError(t, err)

	records, err := alice.List(ctx, recordstore.CollectionGoals, recordstore.ForUser("alice"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "GoalA", records[0].String("title"))
	require.Equal(t, "GoalB", records[1].String("title"))

	_, err = bob.Get(ctx, recordstore.CollectionGoals, first)
	require.ErrorIs(t, err, recordstore.ErrNotFound)

	require.NoError(t, alice.Update(ctx, recordstore.CollectionGoals, first, recordstore.Record{"current": 7}))
	rec, err := alice.Get(ctx, recordstore.CollectionGoals, first)
	require.NoError(t, err)
	require.Equal(t, 7, rec.Int("current"))
	require.Equal(t, 10, rec.Int("target"))

	err = alice.Update(ctx, recordstore.CollectionGoals, "missing", recordstore.Record{"current": 1})
	require.ErrorIs(t, err, recordstore.ErrNotFound)
}

func TestStoreIncrementIsAtomic(t *testing.T) {
	ctx := context.Background()
	client := newTestStore(t).For(session.Local("alice"))

	id, err := client.Create(ctx, recordstore.CollectionHabits, recordstore.Record{"title": "Run", "streak_count": 5, "user_id": "alice"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, client.Increment(ctx, recordstore.CollectionHabits, id, "streak_count", 1,
				recordstore.Record{"last_check_in": "2024-01-10"}))
		}()
	}
	wg.Wait()

	rec, err := client.Get(ctx, recordstore.CollectionHabits, id)
	require.NoError(t, err)
	require.Equal(t, 15, rec.Int("streak_count"))
	require.Equal(t, "2024-01-10", rec.String("last_check_in"))
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

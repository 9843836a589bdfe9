package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestBroadcasterDeliversAndDropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), Event{Type: EventReloaded, Kind: "habit"}))
	require.NoError(t, b.Publish(context.Background(), Event{Type: EventReloaded, Kind: "goal"}))

	got := <-ch
	assert.Equal(t, "habit", got.Kind)
	assert.EqualValues(t, 1, b.Dropped())
}

func TestBroadcasterCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(4)
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers())
	require.NoError(t, b.Publish(context.Background(), Event{Type: EventFailed}))
}

func TestKafkaPublisherEncodesEvent(t *testing.T) {
	writer := &fakeWriter{}
	pub := newKafkaPublisher("habitsync.changes", writer)

	occurred := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	err := pub.Publish(context.Background(), Event{
		Type:       EventMutated,
		Kind:       "habit",
		UserID:     "u1",
		Intent:     "check_in",
		RecordID:   "h1",
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	assert.Equal(t, "u1/habit", string(msg.Key))
	assert.Equal(t, occurred, msg.Time)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, string(EventMutated), string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "h1", decoded.RecordID)
	assert.Equal(t, "check_in", decoded.Intent)

	require.NoError(t, pub.Close())
	assert.True(t, writer.closed)
}

func TestDispatcherDeliversInOrderAndDrainsOnShutdown(t *testing.T) {
	target := &recorder{}
	d := NewDispatcher("test", target, 8)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Publish(context.Background(), Event{Type: EventReloaded, Items: i}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)
	cancel()
	d.Wait()

	events := target.snapshot()
	require.Len(t, events, 5)
	for i, event := range events {
		assert.Equal(t, i, event.Items)
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher("test", &recorder{}, 1)
	require.NoError(t, d.Publish(context.Background(), Event{}))
	require.NoError(t, d.Publish(context.Background(), Event{}))
	assert.EqualValues(t, 1, d.Dropped())
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &recorder{}
	failing := &recorder{err: boom}

	err := Multi{ok, nil, failing}.Publish(context.Background(), Event{Type: EventFailed})
	require.ErrorIs(t, err, boom)
	assert.Len(t, ok.snapshot(), 1)
	assert.Len(t, failing.snapshot(), 1)
}

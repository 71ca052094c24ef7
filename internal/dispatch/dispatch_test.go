package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/event"
)

type recordingSubscriber struct {
	mock.Mock
	name  string
	types []event.Type
}

func (r *recordingSubscriber) Name() string          { return r.name }
func (r *recordingSubscriber) Handles() []event.Type { return r.types }
func (r *recordingSubscriber) Apply(ctx context.Context, ev event.Event) error {
	args := r.Called(ev.EventID)
	return args.Error(0)
}

func testEvent(id string, typ event.Type) event.Event {
	return event.Event{
		EventID:     id,
		AggregateID: "x",
		Type:        typ,
		Version:     1,
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:     event.Payload{},
	}
}

func TestPublish_RegistrationOrder(t *testing.T) {
	d := New(nil)
	var calls []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		d.Subscribe("Created", name, func(ctx context.Context, ev event.Event) error {
			calls = append(calls, name)
			return nil
		})
	}

	require.NoError(t, d.Publish(context.Background(), testEvent("e1", "Created")))
	assert.Equal(t, []string{"first", "second", "third"}, calls)
	assert.Equal(t, []string{"first", "second", "third"}, d.Subscribers("Created"))
}

func TestPublish_NoSubscribers(t *testing.T) {
	d := New(nil)
	assert.NoError(t, d.Publish(context.Background(), testEvent("e1", "Unheard")))
}

func TestPublish_RoutesByType(t *testing.T) {
	d := New(nil)
	created := &recordingSubscriber{name: "created", types: []event.Type{"Created"}}
	both := &recordingSubscriber{name: "both", types: []event.Type{"Created", "Renamed"}}
	created.On("Apply", "e1").Return(nil).Once()
	both.On("Apply", "e1").Return(nil).Once()
	both.On("Apply", "e2").Return(nil).Once()
	d.Register(created)
	d.Register(both)

	require.NoError(t, d.Publish(context.Background(), testEvent("e1", "Created")))
	require.NoError(t, d.Publish(context.Background(), testEvent("e2", "Renamed")))

	created.AssertExpectations(t)
	both.AssertExpectations(t)
}

func TestPublish_FailingSubscriberIsolated(t *testing.T) {
	d := New(nil)
	boom := errors.New("boom")

	healthy := &recordingSubscriber{name: "healthy", types: []event.Type{"Created"}}
	healthy.On("Apply", "e1").Return(nil).Once()

	d.Subscribe("Created", "broken", func(ctx context.Context, ev event.Event) error { return boom })
	d.Subscribe("Created", "panicky", func(ctx context.Context, ev event.Event) error { panic("kaboom") })
	d.Register(healthy)

	err := d.Publish(context.Background(), testEvent("e1", "Created"))
	require.Error(t, err)
	assert.True(t, IsProjectorFailure(err))
	assert.ErrorIs(t, err, boom)

	failures := Failures(err)
	require.Len(t, failures, 2)
	assert.Equal(t, "broken", failures[0].Subscriber)
	assert.Equal(t, "e1", failures[0].EventID)
	assert.Equal(t, event.Type("Created"), failures[0].Type)
	assert.Equal(t, "panicky", failures[1].Subscriber)
	assert.Contains(t, failures[1].Error(), "kaboom")

	healthy.AssertExpectations(t)
}

func TestPublish_Reentrant(t *testing.T) {
	d := New(nil)
	var inner error
	var innerRan bool

	d.Subscribe("Renamed", "inner", func(ctx context.Context, ev event.Event) error {
		innerRan = true
		return nil
	})
	d.Subscribe("Created", "outer", func(ctx context.Context, ev event.Event) error {
		inner = d.Publish(ctx, testEvent("e2", "Renamed"))
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), testEvent("e1", "Created")))
	assert.ErrorIs(t, inner, ErrReentrantPublish)
	assert.False(t, innerRan)

	// The dispatcher is usable again once the outer publish returns.
	require.NoError(t, d.Publish(context.Background(), testEvent("e3", "Renamed")))
	assert.True(t, innerRan)
}

func TestFailures_Nil(t *testing.T) {
	assert.Nil(t, Failures(nil))
	assert.Empty(t, Failures(errors.New("plain")))
}

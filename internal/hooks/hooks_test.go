package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/triage/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func noop(context.Context, Payload) error { return nil }

func TestManager_OnAndEmit(t *testing.T) {
	m := testManager()

	var got Payload
	require.NoError(t, m.On(EventRunFinished, "capture", func(_ context.Context, p Payload) error {
		got = p
		return nil
	}))

	before := time.Now().UTC()
	m.Emit(context.Background(), EventRunFinished, map[string]any{"threadId": "thread_1", "outcome": "completed"})

	assert.Equal(t, EventRunFinished, got.Event)
	assert.Equal(t, "thread_1", got.Data["threadId"])
	assert.Equal(t, "completed", got.Data["outcome"])
	assert.False(t, got.At.Before(before))
}

func TestManager_OnRejectsUnknownEvent(t *testing.T) {
	m := testManager()
	err := m.On("after_lunch", "x", noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after_lunch")
	assert.Empty(t, m.Registered())
}

func TestManager_EmitRunsInOrder(t *testing.T) {
	m := testManager()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, m.On(EventAfterTriage, name, func(context.Context, Payload) error {
			order = append(order, name)
			return nil
		}))
	}

	m.Emit(context.Background(), EventAfterTriage, nil)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestManager_EmitSurvivesFailures(t *testing.T) {
	m := testManager()

	var lastCalled bool
	require.NoError(t, m.On(EventCleanupFailed, "failing", func(context.Context, Payload) error {
		return errors.New("handler broke")
	}))
	require.NoError(t, m.On(EventCleanupFailed, "panicking", func(context.Context, Payload) error {
		panic("boom")
	}))
	require.NoError(t, m.On(EventCleanupFailed, "last", func(context.Context, Payload) error {
		lastCalled = true
		return nil
	}))

	assert.NotPanics(t, func() { m.Emit(context.Background(), EventCleanupFailed, nil) })
	assert.True(t, lastCalled)
}

func TestManager_EmitOtherEventsUntouched(t *testing.T) {
	m := testManager()
	var called bool
	require.NoError(t, m.On(EventBeforeTriage, "x", func(context.Context, Payload) error {
		called = true
		return nil
	}))

	m.Emit(context.Background(), EventAfterTriage, nil)
	assert.False(t, called)
}

func TestManager_Registered(t *testing.T) {
	m := testManager()
	require.NoError(t, m.On(EventAfterTriage, "notify", noop))
	require.NoError(t, m.On(EventBeforeTriage, "audit", noop))
	require.NoError(t, m.On(EventAfterTriage, "archive", noop))

	assert.Equal(t, []Registration{
		{Event: EventBeforeTriage, Name: "audit"},
		{Event: EventAfterTriage, Name: "notify"},
		{Event: EventAfterTriage, Name: "archive"},
	}, m.Registered())
}

func TestManager_Nil(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() { m.Emit(context.Background(), EventAfterTriage, nil) })
	assert.Nil(t, m.Registered())
}

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/testutil"
)

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, time.Second, 5*time.Millisecond)
}

func receive(t *testing.T, sub *Subscriber) model.Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		require.True(t, ok, "subscriber channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(model.BoardTopic, testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	sub := NewSubscriber("alice", "sse")
	require.True(t, hub.Register(sub))
	waitForClients(t, hub, 1)

	hub.Unregister(sub)
	waitForClients(t, hub, 0)

	_, ok := <-sub.Events()
	assert.False(t, ok, "send channel should be closed after unregister")
}

func TestHubBroadcastReachesEverySubscriber(t *testing.T) {
	hub := NewHub(model.BoardTopic, testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	subs := []*Subscriber{NewSubscriber("a", "sse"), NewSubscriber("b", "ws"), NewSubscriber("c", "sse")}
	for _, sub := range subs {
		require.True(t, hub.Register(sub))
	}
	waitForClients(t, hub, 3)

	require.NoError(t, hub.Broadcast(model.Event{Type: model.EventBoardReset, Generation: 2}))
	for _, sub := range subs {
		event := receive(t, sub)
		assert.Equal(t, model.EventBoardReset, event.Type)
		assert.Equal(t, int64(2), event.Generation)
	}
}

func TestHubSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(model.BoardTopic, testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	slow := NewSubscriber("slow", "sse")
	fast := NewSubscriber("fast", "sse")
	require.True(t, hub.Register(slow))
	require.True(t, hub.Register(fast))
	waitForClients(t, hub, 2)

	for i := 0; i < subscriberBufferSize+5; i++ {
		require.NoError(t, hub.Broadcast(model.Event{Type: model.EventTileClaimed, Generation: int64(i)}))
		receive(t, fast)
	}
	assert.Len(t, slow.send, subscriberBufferSize)
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(model.BoardTopic, testutil.NopLogger())
	go hub.Run()

	sub := NewSubscriber("alice", "ws")
	require.True(t, hub.Register(sub))
	waitForClients(t, hub, 1)

	hub.Close()
	hub.Close() // idempotent

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber not disconnected")
	}

	assert.False(t, hub.Register(NewSubscriber("late", "sse")))
	hub.Unregister(sub) // must not block once closed
}

func TestHubManagerPublish(t *testing.T) {
	m := NewHubManager(testutil.NopLogger())
	defer m.CloseAll()

	// Publishing to a topic nobody watches is a no-op
	require.NoError(t, m.Publish(context.Background(), "nobody", model.Event{Type: model.EventBoardReset}))
	assert.Nil(t, m.GetHub("nobody"))

	hub := m.GetOrCreateHub(model.BoardTopic)
	assert.Same(t, hub, m.GetOrCreateHub(model.BoardTopic))

	sub := NewSubscriber("alice", "sse")
	require.True(t, hub.Register(sub))
	waitForClients(t, hub, 1)
	assert.Equal(t, 1, m.SubscriberCount())

	require.NoError(t, m.Publish(context.Background(), model.BoardTopic, model.Event{Type: model.EventTileClaimed}))
	assert.Equal(t, model.EventTileClaimed, receive(t, sub).Type)
}

func TestHubBroadcastBufferFull(t *testing.T) {
	// Hub not running: its buffer fills up
	hub := NewHub(model.BoardTopic, testutil.NopLogger())
	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.Broadcast(model.Event{}))
	}
	assert.ErrorIs(t, hub.Broadcast(model.Event{}), ErrHubBusy)
}

package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zdx/agent"
)

func recv(t *testing.T, ch <-chan agent.AgentEvent) (agent.AgentEvent, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return agent.AgentEvent{}, false
	}
}

func TestBroadcasterFansOutToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(DefaultCapacity)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Publish(agent.AgentEvent{Type: agent.EventTurnStarted})

	ev1, ok1 := recv(t, sub1.Events())
	require.True(t, ok1)
	assert.Equal(t, agent.EventTurnStarted, ev1.Type)

	ev2, ok2 := recv(t, sub2.Events())
	require.True(t, ok2)
	assert.Equal(t, agent.EventTurnStarted, ev2.Type)
}

func TestBroadcasterSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroadcaster(1)
	slow := b.Subscribe()
	fast := b.Subscribe()

	// Fill the slow subscriber's buffer, then publish again: the slow
	// one drops the second event, the fast one (which keeps reading)
	// still sees it.
	b.Publish(agent.AgentEvent{Type: agent.EventTurnStarted})
	_, ok := recv(t, fast.Events())
	require.True(t, ok)

	b.Publish(agent.AgentEvent{Type: agent.EventTurnCompleted})
	ev2, ok := recv(t, fast.Events())
	require.True(t, ok)
	assert.Equal(t, agent.EventTurnCompleted, ev2.Type)

	first, ok := recv(t, slow.Events())
	require.True(t, ok)
	assert.Equal(t, agent.EventTurnStarted, first.Type)
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(DefaultCapacity)
	sub := b.Subscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic or deadlock.
	b.Publish(agent.AgentEvent{Type: agent.EventTurnStarted})
}

func TestBroadcasterCloseClosesAllSubscribers(t *testing.T) {
	b := NewBroadcaster(DefaultCapacity)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Close()

	_, ok1 := <-sub1.Events()
	_, ok2 := <-sub2.Events()
	assert.False(t, ok1)
	assert.False(t, ok2)
}

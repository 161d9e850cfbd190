package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicLatestWins(t *testing.T) {
	topic := NewTopic[int]()
	sub := topic.Subscribe()
	defer sub.Close()

	topic.publish(1)
	topic.publish(2)
	topic.publish(3)

	require.Equal(t, 3, <-sub.C())
	select {
	case v := <-sub.C():
		t.Fatalf("expected a single pending value, got extra %d", v)
	default:
	}
	latest, ok := topic.Latest()
	require.True(t, ok)
	assert.Equal(t, 3, latest)
}

func TestTopicSubscribeReceivesLatest(t *testing.T) {
	topic := NewTopic[string]()
	_, ok := topic.Latest()
	require.False(t, ok)

	topic.publish("tree")
	sub := topic.Subscribe()
	defer sub.Close()
	assert.Equal(t, "tree", <-sub.C())
}

func TestSubscriptionIgnoresOlderVersions(t *testing.T) {
	topic := NewTopic[int]()
	sub := topic.Subscribe()
	defer sub.Close()

	topic.publish(1)
	topic.publish(2)
	sub.deliver(1, 1)
	assert.Equal(t, 2, <-sub.C())
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	topic := NewTopic[int]()
	emptied := 0
	topic.onEmpty = func() { emptied++ }

	first := topic.Subscribe()
	second := topic.Subscribe()
	require.Equal(t, 2, topic.Len())

	first.Close()
	first.Close()
	assert.Equal(t, 0, emptied)
	_, open := <-first.C()
	assert.False(t, open)

	topic.publish(7)
	assert.Equal(t, 7, <-second.C())

	second.Close()
	assert.Equal(t, 1, emptied)
	assert.Equal(t, 0, topic.Len())

	topic.publish(8)
	_, open = <-second.C()
	assert.False(t, open)
}

func TestTopicShutdown(t *testing.T) {
	topic := NewTopic[int]()
	emptied := false
	topic.onEmpty = func() { emptied = true }
	sub := topic.Subscribe()
	topic.publish(1)
	topic.shutdown()

	v, open := <-sub.C()
	require.True(t, open)
	assert.Equal(t, 1, v, "a buffered value survives shutdown")
	_, open = <-sub.C()
	assert.False(t, open)
	assert.Zero(t, topic.Len())

	topic.publish(2)
	late := topic.Subscribe()
	v, open = <-late.C()
	require.True(t, open)
	assert.Equal(t, 1, v)
	_, open = <-late.C()
	assert.False(t, open)

	sub.Close()
	late.Close()
	topic.shutdown()
	assert.False(t, emptied)
}

package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event on %s", ev.Topic)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryHub(t *testing.T) {
	ctx := context.Background()

	t.Run("FanOutToAllTopicSubscribers", func(t *testing.T) {
		hub := NewMemoryHub()
		defer hub.Close()

		a, err := hub.Subscribe(ctx, ConversationTopic("c1"))
		require.NoError(t, err)
		b, err := hub.Subscribe(ctx, ConversationTopic("c1"))
		require.NoError(t, err)

		require.NoError(t, hub.Publish(ctx, Event{Topic: ConversationTopic("c1"), Kind: EventNewMessage}))

		assert.Equal(t, EventNewMessage, recvEvent(t, a).Kind)
		assert.Equal(t, EventNewMessage, recvEvent(t, b).Kind)
	})

	t.Run("TopicsAreIsolated", func(t *testing.T) {
		hub := NewMemoryHub()
		defer hub.Close()

		other, err := hub.Subscribe(ctx, ConversationTopic("c2"))
		require.NoError(t, err)

		require.NoError(t, hub.Publish(ctx, Event{Topic: ConversationTopic("c1"), Kind: EventNewMessage}))
		assertNoEvent(t, other)
	})

	t.Run("ClosedSubscriberStopsReceiving", func(t *testing.T) {
		hub := NewMemoryHub()
		defer hub.Close()

		sub, err := hub.Subscribe(ctx, UserTopic("u1"))
		require.NoError(t, err)
		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close(), "Close must be idempotent")

		require.NoError(t, hub.Publish(ctx, SidebarUpdateEvent("u1")))

		_, ok := <-sub.Events()
		assert.False(t, ok, "channel must be closed after Close")
	})

	t.Run("PublishAfterHubCloseIsNoop", func(t *testing.T) {
		hub := NewMemoryHub()
		sub, err := hub.Subscribe(ctx, UserTopic("u1"))
		require.NoError(t, err)
		require.NoError(t, hub.Close())

		assert.NoError(t, hub.Publish(ctx, SidebarUpdateEvent("u1")))
		_, ok := <-sub.Events()
		assert.False(t, ok)
	})

	t.Run("SlowSubscriberDoesNotBlockPublish", func(t *testing.T) {
		hub := NewMemoryHub()
		defer hub.Close()

		sub, err := hub.Subscribe(ctx, UserTopic("u1"))
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			// More events than the subscriber buffer holds; nobody is reading.
			for i := 0; i < 200; i++ {
				hub.Publish(ctx, SidebarUpdateEvent("u1"))
			}
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("publisher blocked on a slow subscriber")
		}
		_ = sub
	})
}

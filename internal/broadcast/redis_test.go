package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallway/pkg/models"
)

func newTestRedis(t *testing.T) *RedisBroadcaster {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBroadcasterWithClient(client)
}

func TestRedisBroadcaster(t *testing.T) {
	ctx := context.Background()

	t.Run("PublishSubscribeRoundTrip", func(t *testing.T) {
		b := newTestRedis(t)

		sub, err := b.Subscribe(ctx, ConversationTopic("c1"))
		require.NoError(t, err)
		defer sub.Close()

		msg := models.Message{
			ID:             "m1",
			ConversationID: "c1",
			SenderID:       "alice",
			Content:        "over the wire",
			CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}
		require.NoError(t, b.Publish(ctx, NewMessageEvent(&msg)))

		ev := recvEvent(t, sub)
		assert.Equal(t, EventNewMessage, ev.Kind)
		assert.Equal(t, ConversationTopic("c1"), ev.Topic)
		assert.Contains(t, string(ev.Payload), `"m1"`)
	})

	t.Run("SubscriberOnlySeesItsTopic", func(t *testing.T) {
		b := newTestRedis(t)

		sub, err := b.Subscribe(ctx, UserTopic("bob"))
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, b.Publish(ctx, SidebarUpdateEvent("alice")))
		assertNoEvent(t, sub)

		require.NoError(t, b.Publish(ctx, SidebarUpdateEvent("bob")))
		ev := recvEvent(t, sub)
		assert.Equal(t, EventSidebarUpdate, ev.Kind)
	})

	t.Run("CloseEndsEventStream", func(t *testing.T) {
		b := newTestRedis(t)

		sub, err := b.Subscribe(ctx, ConversationTopic("c1"))
		require.NoError(t, err)
		require.NoError(t, sub.Close())

		select {
		case _, ok := <-sub.Events():
			assert.False(t, ok, "events channel must close after Close")
		case <-time.After(time.Second):
			t.Fatal("events channel did not close")
		}
	})

	t.Run("UndecodablePayloadIsDropped", func(t *testing.T) {
		srv := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { client.Close() })
		b := NewRedisBroadcasterWithClient(client)

		sub, err := b.Subscribe(ctx, ConversationTopic("c1"))
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, client.Publish(ctx, ConversationTopic("c1"), "not json").Err())
		assertNoEvent(t, sub)

		// The stream keeps working after a bad payload.
		require.NoError(t, b.Publish(ctx, Event{Topic: ConversationTopic("c1"), Kind: EventNewMessage}))
		assert.Equal(t, EventNewMessage, recvEvent(t, sub).Kind)
	})

	t.Run("InvalidURLRejected", func(t *testing.T) {
		_, err := NewRedisBroadcaster("not-a-url")
		assert.Error(t, err)
	})
}

package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallway/internal/broadcast"
)

type staticMembers struct {
	ids map[string][]string
	err error
}

func (m staticMembers) MemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ids[conversationID], nil
}

func nudgeJob(conversationID, senderID string) *river.Job[SidebarNudgeArgs] {
	return &river.Job[SidebarNudgeArgs]{
		Args: SidebarNudgeArgs{ConversationID: conversationID, SenderID: senderID},
	}
}

func TestSidebarNudgeWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("NudgesEveryMemberExceptSender", func(t *testing.T) {
		hub := broadcast.NewMemoryHub()
		defer hub.Close()

		bobSub, err := hub.Subscribe(ctx, broadcast.UserTopic("bob"))
		require.NoError(t, err)
		carolSub, err := hub.Subscribe(ctx, broadcast.UserTopic("carol"))
		require.NoError(t, err)
		aliceSub, err := hub.Subscribe(ctx, broadcast.UserTopic("alice"))
		require.NoError(t, err)

		w := &SidebarNudgeWorker{
			members:     staticMembers{ids: map[string][]string{"general": {"alice", "bob", "carol"}}},
			broadcaster: hub,
		}
		require.NoError(t, w.Work(ctx, nudgeJob("general", "alice")))

		for name, sub := range map[string]broadcast.Subscription{"bob": bobSub, "carol": carolSub} {
			select {
			case ev := <-sub.Events():
				assert.Equal(t, broadcast.EventSidebarUpdate, ev.Kind, name)
			case <-time.After(time.Second):
				t.Fatalf("%s never got a nudge", name)
			}
		}

		select {
		case <-aliceSub.Events():
			t.Fatal("sender must not be nudged")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("MemberLookupFailureIsRetryable", func(t *testing.T) {
		w := &SidebarNudgeWorker{
			members:     staticMembers{err: errors.New("db down")},
			broadcaster: broadcast.NopBroadcaster{},
		}
		assert.Error(t, w.Work(ctx, nudgeJob("general", "alice")))
	})

	t.Run("PublishFailureDoesNotFailTheJob", func(t *testing.T) {
		w := &SidebarNudgeWorker{
			members:     staticMembers{ids: map[string][]string{"general": {"alice", "bob"}}},
			broadcaster: failingBroadcaster{},
		}
		assert.NoError(t, w.Work(ctx, nudgeJob("general", "alice")))
	})
}

type failingBroadcaster struct{ broadcast.NopBroadcaster }

func (failingBroadcaster) Publish(ctx context.Context, ev broadcast.Event) error {
	return errors.New("transport down")
}

func TestQueueConfigByEnvironment(t *testing.T) {
	t.Setenv("HALLWAY_ENV", "")
	cfg := GetQueueConfig()
	assert.Greater(t, cfg.MaxWorkers, 0)
	assert.NotEmpty(t, cfg.RiverQueueConfig())

	t.Setenv("HALLWAY_ENV", "production")
	prod := GetQueueConfig()
	assert.GreaterOrEqual(t, prod.MaxWorkers, cfg.MaxWorkers)
}

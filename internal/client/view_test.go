package client

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallway/pkg/models"
)

func msgAt(id string, t time.Time) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       "sender-1",
		Content:        "message " + id,
		CreatedAt:      t,
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestViewMerge(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m1 := msgAt("m1", base)
	m2 := msgAt("m2", base.Add(1*time.Second))
	m3 := msgAt("m3", base.Add(2*time.Second))

	t.Run("Idempotence", func(t *testing.T) {
		v := NewView()
		batch := []models.Message{m1, m2}

		require.Equal(t, 2, v.Merge(batch))
		once := v.Messages()

		assert.Equal(t, 0, v.Merge(batch), "replaying a batch must add nothing")
		assert.Empty(t, cmp.Diff(once, v.Messages()))
	})

	t.Run("Commutativity", func(t *testing.T) {
		// Push-then-poll and poll-then-push must converge.
		pushFirst := NewView()
		pushFirst.Merge([]models.Message{m2})
		pushFirst.Merge([]models.Message{m1, m2, m3})

		pollFirst := NewView()
		pollFirst.Merge([]models.Message{m1, m2, m3})
		pollFirst.Merge([]models.Message{m2})

		assert.Empty(t, cmp.Diff(pushFirst.Messages(), pollFirst.Messages()))
	})

	t.Run("OrderingByCreatedAtNotArrival", func(t *testing.T) {
		v := NewView()
		v.Merge([]models.Message{m3})
		v.Merge([]models.Message{m1})
		v.Merge([]models.Message{m2})

		assert.Equal(t, []string{"m1", "m2", "m3"}, ids(v.Messages()))
	})

	t.Run("GapFilledByPoll", func(t *testing.T) {
		// m1 and m3 already merged; a poll returns the full page including
		// the missed m2. No duplicates of m1/m3 may appear.
		v := NewView()
		v.Merge([]models.Message{m1, m3})

		added := v.Merge([]models.Message{m1, m2, m3})

		assert.Equal(t, 1, added)
		assert.Equal(t, []string{"m1", "m2", "m3"}, ids(v.Messages()))
	})

	t.Run("CursorAdvancesToNewest", func(t *testing.T) {
		v := NewView()
		assert.Equal(t, "", v.Cursor())

		v.Merge([]models.Message{m2})
		assert.Equal(t, "m2", v.Cursor())

		v.Merge([]models.Message{m3, m1})
		assert.Equal(t, "m3", v.Cursor())

		// Merging something older must not move the cursor backwards.
		v.Merge([]models.Message{m1})
		assert.Equal(t, "m3", v.Cursor())
	})

	t.Run("EqualTimestampsTieBreakOnID", func(t *testing.T) {
		a := msgAt("a", base)
		b := msgAt("b", base)

		forward := NewView()
		forward.Merge([]models.Message{a})
		forward.Merge([]models.Message{b})

		backward := NewView()
		backward.Merge([]models.Message{b})
		backward.Merge([]models.Message{a})

		assert.Equal(t, ids(forward.Messages()), ids(backward.Messages()))
	})
}

func TestViewConcurrentMerge(t *testing.T) {
	// Poll and push listeners mutate the same view; merges must be atomic
	// with respect to each other.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewView()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d-m%d", w, i)
				v.Merge([]models.Message{msgAt(id, base.Add(time.Duration(w*perWorker+i) * time.Millisecond))})
			}
		}(w)
	}
	wg.Wait()

	msgs := v.Messages()
	require.Len(t, msgs, workers*perWorker)

	seen := make(map[string]bool, len(msgs))
	for i, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt), "out of order at %d", i)
		}
	}
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSenderLimiter(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("BurstThenRejected", func(t *testing.T) {
		l := New(20, time.Minute)
		for i := 0; i < 20; i++ {
			assert.True(t, l.AllowAt("alice", start), "send %d within burst must pass", i+1)
		}
		assert.False(t, l.AllowAt("alice", start), "send 21 must be rejected")
	})

	t.Run("FreshWindowRestoresBudget", func(t *testing.T) {
		l := New(20, time.Minute)
		for i := 0; i < 21; i++ {
			l.AllowAt("alice", start)
		}

		later := start.Add(time.Minute)
		for i := 0; i < 20; i++ {
			assert.True(t, l.AllowAt("alice", later), "send %d after idle window must pass", i+1)
		}
		assert.False(t, l.AllowAt("alice", later))
	})

	t.Run("GradualRefill", func(t *testing.T) {
		l := New(20, time.Minute)
		for i := 0; i < 20; i++ {
			l.AllowAt("alice", start)
		}
		assert.False(t, l.AllowAt("alice", start))

		// One token refills every window/burst.
		assert.True(t, l.AllowAt("alice", start.Add(3*time.Second)))
		assert.False(t, l.AllowAt("alice", start.Add(3*time.Second)))
	})

	t.Run("SendersAreIndependent", func(t *testing.T) {
		l := New(2, time.Minute)
		assert.True(t, l.AllowAt("alice", start))
		assert.True(t, l.AllowAt("alice", start))
		assert.False(t, l.AllowAt("alice", start))

		assert.True(t, l.AllowAt("bob", start), "alice exhausting her budget must not affect bob")
	})
}

func TestSweep(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(20, time.Minute)

	l.AllowAt("alice", start)
	l.AllowAt("bob", start.Add(30*time.Second))

	l.Sweep(start.Add(70 * time.Second))

	l.mu.Lock()
	_, aliceKept := l.senders["alice"]
	_, bobKept := l.senders["bob"]
	l.mu.Unlock()

	assert.False(t, aliceKept, "idle sender must be swept")
	assert.True(t, bobKept, "recently active sender must survive the sweep")
}

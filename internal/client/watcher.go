package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hallway/internal/broadcast"
	"github.com/hallway/pkg/models"
)

// DefaultPollInterval is the reconciliation cadence. The interval itself is
// the throttle: a failed poll is simply retried on the next tick, no backoff
// escalation.
const DefaultPollInterval = 3 * time.Second

// FetchFunc pulls messages created after the cursor from the authoritative
// endpoint.
type FetchFunc func(ctx context.Context, afterID string) ([]models.Message, error)

// Notify is invoked after every merge that added at least one message.
type Notify func(added int)

// Watcher keeps one conversation view current. Two independent triggers feed
// it: broadcast push events, when a subscription is available, and a
// fixed-interval poll using the view's cursor. Close stops both; leaking
// either would mean unbounded duplicate network calls.
type Watcher struct {
	view     *View
	fetch    FetchFunc
	sub      broadcast.Subscription
	interval time.Duration
	notify   Notify

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher builds a watcher over the given view. sub may be nil: the
// watcher then runs polling-only, which is the degraded mode when no
// broadcast transport is configured. notify may be nil.
func NewWatcher(view *View, fetch FetchFunc, sub broadcast.Subscription, interval time.Duration, notify Notify) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		view:     view,
		fetch:    fetch,
		sub:      sub,
		interval: interval,
		notify:   notify,
	}
}

// Start launches the poll loop and, if subscribed, the push listener.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.pollLoop(ctx)

	if w.sub != nil {
		w.wg.Add(1)
		go w.pushLoop(ctx)
	}
}

// Close stops the poll timer and the broadcast subscription and waits for
// both loops to exit. Safe to call more than once.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		if w.sub != nil {
			w.sub.Close()
		}
		w.wg.Wait()
	})
}

// Poll performs one reconciliation fetch and merges the result. Exposed so
// callers can force an immediate catch-up (e.g. right after opening a view).
func (w *Watcher) Poll(ctx context.Context) error {
	batch, err := w.fetch(ctx, w.view.Cursor())
	if err != nil {
		return err
	}
	w.merge(batch)
	return nil
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
				log.Debug().Err(err).Msg("Poll failed, retrying next interval")
			}
		}
	}
}

func (w *Watcher) pushLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.sub.Events():
			if !ok {
				return
			}
			if ev.Kind != broadcast.EventNewMessage {
				continue
			}
			var msg models.Message
			if err := json.Unmarshal(ev.Payload, &msg); err != nil {
				log.Debug().Err(err).Msg("Dropping undecodable push event")
				continue
			}
			w.merge([]models.Message{msg})
		}
	}
}

func (w *Watcher) merge(batch []models.Message) {
	if len(batch) == 0 {
		return
	}
	if added := w.view.Merge(batch); added > 0 && w.notify != nil {
		w.notify(added)
	}
}

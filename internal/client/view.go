// Package client implements the consumer side of dual-path delivery: a
// deduplicating, sort-on-merge view fed by both broadcast push events and
// interval polls against the authoritative fetch endpoint. Push and poll can
// race, duplicate, or arrive out of order; the merge makes that invisible.
package client

import (
	"sort"
	"sync"

	"github.com/hallway/pkg/models"
)

// View is the merged, time-ordered, id-deduplicated message list for one
// open conversation. All mutation goes through Merge, which is atomic with
// respect to concurrent callers, so the poll loop and the push listener can
// feed it at the same time.
type View struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	msgs   []models.Message
	cursor string
}

// NewView creates an empty view.
func NewView() *View {
	return &View{seen: make(map[string]struct{})}
}

// Merge folds a batch from either delivery path into the view. Ids already
// seen are discarded, the remainder inserted, and the visible list re-sorted
// by creation time, never arrival order. Replaying a batch, or receiving it
// via both paths, changes nothing: the merge is idempotent and commutative.
// It returns the number of messages that were actually new.
func (v *View) Merge(batch []models.Message) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	added := 0
	for _, msg := range batch {
		if _, ok := v.seen[msg.ID]; ok {
			continue
		}
		v.seen[msg.ID] = struct{}{}
		v.msgs = append(v.msgs, msg)
		added++
	}
	if added == 0 {
		return 0
	}

	sort.SliceStable(v.msgs, func(i, j int) bool {
		if !v.msgs[i].CreatedAt.Equal(v.msgs[j].CreatedAt) {
			return v.msgs[i].CreatedAt.Before(v.msgs[j].CreatedAt)
		}
		return v.msgs[i].ID < v.msgs[j].ID
	})
	v.cursor = v.msgs[len(v.msgs)-1].ID
	return added
}

// Messages returns a copy of the merged list, oldest first.
func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}

// Cursor returns the id of the newest merged message, used as the `after`
// parameter of the next poll. Empty until the first merge.
func (v *View) Cursor() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cursor
}

// Len returns the number of merged messages.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.msgs)
}

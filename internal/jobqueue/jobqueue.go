/*
Package jobqueue provides a River-based job queue for sidebar-nudge fan-out.

After a message is persisted, every other member of the conversation should
see their sidebar badge move. Publishing one nudge per member inline would
couple send latency to conversation size, so the fan-out runs as a background
job instead. The nudges themselves stay best-effort: a member whose nudge is
lost catches up on their next sidebar poll.

For configuration and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/hallway/internal/broadcast"
)

// SidebarNudgeArgs identifies the send that triggered the fan-out.
type SidebarNudgeArgs struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
}

// Kind returns the job kind for River.
func (SidebarNudgeArgs) Kind() string {
	return "sidebar_nudge"
}

// MemberLister resolves a conversation's participants.
type MemberLister interface {
	MemberIDs(ctx context.Context, conversationID string) ([]string, error)
}

// SidebarNudgeWorker publishes a sidebar-update nudge to every member of the
// conversation except the sender, who never owes themselves a badge.
type SidebarNudgeWorker struct {
	river.WorkerDefaults[SidebarNudgeArgs]
	members     MemberLister
	broadcaster broadcast.Broadcaster
}

// Work runs one fan-out. Member lookup failures are retryable (River will
// re-run the job); individual publish failures are logged and skipped, since
// the broadcast path never guarantees delivery anyway.
func (w *SidebarNudgeWorker) Work(ctx context.Context, job *river.Job[SidebarNudgeArgs]) error {
	args := job.Args

	ids, err := w.members.MemberIDs(ctx, args.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to list members for nudge: %w", err)
	}

	for _, id := range ids {
		if id == args.SenderID {
			continue
		}
		if err := w.broadcaster.Publish(ctx, broadcast.SidebarUpdateEvent(id)); err != nil {
			log.Warn().Err(err).
				Str("user_id", id).
				Str("conversation_id", args.ConversationID).
				Msg("Sidebar nudge publish failed")
		}
	}
	return nil
}

// JobQueue manages the River job queue.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a job queue over its own pgx connection pool.
func NewJobQueue(databaseURL string, members MemberLister, broadcaster broadcast.Broadcaster) (*JobQueue, error) {
	config := GetQueueConfig()

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &SidebarNudgeWorker{members: members, broadcaster: broadcaster})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and releases the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueSidebarNudge queues a fan-out job for a fresh send. Satisfies
// chat.NudgeEnqueuer.
func (jq *JobQueue) EnqueueSidebarNudge(ctx context.Context, conversationID, senderID string) error {
	_, err := jq.client.Insert(ctx, SidebarNudgeArgs{
		ConversationID: conversationID,
		SenderID:       senderID,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue sidebar nudge: %w", err)
	}
	return nil
}

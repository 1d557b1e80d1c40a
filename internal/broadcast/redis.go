package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroadcaster implements Broadcaster over redis Pub/Sub so push events
// reach every server instance, not just the one that handled the send.
type RedisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster connects to redis and verifies the connection.
func NewRedisBroadcaster(redisURL string) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBroadcaster{client: client}, nil
}

// NewRedisBroadcasterWithClient wraps an existing client (used by tests).
func NewRedisBroadcasterWithClient(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

// Publish sends the event to the topic's redis channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, ev.Topic, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", ev.Topic, err)
	}
	return nil
}

// Subscribe opens a redis subscription for the topic and pumps decoded
// events until Close.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	// Force the subscription onto the wire before we report success.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	sub := &redisSub{pubsub: pubsub, ch: make(chan Event, 64)}
	go sub.pump(topic)
	return sub, nil
}

// Close shuts down the redis client.
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan Event
}

func (s *redisSub) pump(topic string) {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Dropping undecodable broadcast event")
			continue
		}
		select {
		case s.ch <- ev:
		default:
			// subscriber not keeping up, drop
		}
	}
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) Close() error {
	return s.pubsub.Close()
}

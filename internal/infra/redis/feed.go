package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"livequiz-service/internal/game"
)

// Feed routes change notifications through Redis pub/sub, one channel per
// topic. Pub/sub delivery is fire-and-forget: messages published while a
// subscriber is disconnected are lost, and nothing orders events across
// channels. That matches the feed contract: subscribers reload the full
// aggregate on every event and on initial start, so dropped or
// duplicated notifications heal on the next one. go-redis resubscribes
// automatically after a reconnect.
type Feed struct {
	client *redis.Client
}

func NewFeed(client *redis.Client) *Feed {
	return &Feed{client: client}
}

// Publish emits one event on the topic. The payload is a constant marker;
// subscribers must not interpret it.
func (f *Feed) Publish(ctx context.Context, topic string) error {
	return f.client.Publish(ctx, topic, "x").Err()
}

// Subscribe registers onEvent for every message on the topic. The
// returned subscription must be closed on controller teardown.
func (f *Feed) Subscribe(ctx context.Context, topic string, onEvent func()) (game.Subscription, error) {
	pubsub := f.client.Subscribe(ctx, topic)
	// Force the SUBSCRIBE round-trip so a broken connection surfaces here
	// instead of as a silently dead subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &subscription{pubsub: pubsub}
	go func() {
		for range pubsub.Channel() {
			onEvent()
		}
	}()
	return sub, nil
}

type subscription struct {
	pubsub    *redis.PubSub
	closeOnce sync.Once
	closeErr  error
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}

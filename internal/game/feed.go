package game

import "context"

// Feed is the change-notification stream of the durable store. Delivery is
// at-least-once and unordered across distinct mutations, and events may be
// dropped entirely while a client is disconnected. Events carry no trusted
// payload, so the only correct reaction to one is a full reload of the
// aggregate, never a delta.
type Feed interface {
	// Subscribe registers onEvent for every mutation published on topic.
	// onEvent may be invoked concurrently with the subscriber's own calls
	// and must be safe to run for missed or duplicated notifications.
	Subscribe(ctx context.Context, topic string, onEvent func()) (Subscription, error)
}

// Subscription is a live feed registration. Close must be called on
// controller teardown so subscriptions do not leak across games as a
// client navigates away.
type Subscription interface {
	Close() error
}

// Publisher is the store-side half of the feed: repositories publish
// exactly one event per committed mutation.
type Publisher interface {
	Publish(ctx context.Context, topic string) error
}

// GameTopic names the feed channel carrying mutations of the game row.
func GameTopic(gameID string) string {
	return "game:" + gameID
}

// ParticipantsTopic names the feed channel carrying roster mutations.
func ParticipantsTopic(gameID string) string {
	return "game:" + gameID + ":participants"
}

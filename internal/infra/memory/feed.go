package memory

import (
	"context"
	"sync"

	"livequiz-service/internal/game"
)

// Feed is an in-process change feed implementing both halves of the feed
// contract. Delivery is asynchronous and coalescing: a burst of events on
// one topic may reach a subscriber as a single notification, which the
// full-reload discipline makes indistinguishable from at-least-once.
type Feed struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[*subscription]struct{})}
}

func (f *Feed) Publish(ctx context.Context, topic string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs[topic] {
		sub.notify()
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, topic string, onEvent func()) (game.Subscription, error) {
	sub := &subscription{
		feed:  f,
		topic: topic,
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	f.mu.Lock()
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[*subscription]struct{})
	}
	f.subs[topic][sub] = struct{}{}
	f.mu.Unlock()

	go sub.loop(onEvent)
	return sub, nil
}

type subscription struct {
	feed      *Feed
	topic     string
	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) notify() {
	select {
	case s.kick <- struct{}{}:
	default:
		// An event is already pending; the reload it triggers will
		// observe this mutation too.
	}
}

func (s *subscription) loop(onEvent func()) {
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
			onEvent()
		}
	}
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs[s.topic], s)
		if len(s.feed.subs[s.topic]) == 0 {
			delete(s.feed.subs, s.topic)
		}
		s.feed.mu.Unlock()
		close(s.done)
	})
	return nil
}

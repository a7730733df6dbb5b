// Package broker fans out transient run progress notifications to the
// live observers of a session. Payloads are opaque strings; delivery is
// best-effort from the moment of subscription onward. Anything that must
// not be lost belongs in the session store, not here.
package broker

import (
	"sync"
)

// Broker multicasts published payloads to every current subscriber of a
// session. Publish never blocks and never fails: a session with no
// subscribers is a silent no-op.
type Broker struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscription]struct{}
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		subscribers: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscription for the session. The subscription
// receives every payload published to the session from this moment until
// Close is called on it.
func (b *Broker) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		broker:    b,
		sessionID: sessionID,
		out:       make(chan string),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	set := b.subscribers[sessionID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		b.subscribers[sessionID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump()

	return sub
}

// Publish delivers payload to every subscription currently registered for
// the session. The subscriber set is snapshotted under the lock, so a
// subscription added mid-publish may or may not see this payload, but every
// snapshotted one receives it exactly once.
func (b *Broker) Publish(sessionID, payload string) {
	b.mu.Lock()
	set := b.subscribers[sessionID]
	subs := make([]*Subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(payload)
	}
}

// SubscriberCount reports how many subscriptions a session currently has.
func (b *Broker) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[sessionID])
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subscribers[sub.sessionID]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subscribers, sub.sessionID)
	}
}

// Subscription is one observer's live feed of a session's notifications.
// Payloads are queued without bound so a slow reader never blocks the
// publisher; Events yields them in publish order.
type Subscription struct {
	broker    *Broker
	sessionID string

	mu    sync.Mutex
	queue []string

	out       chan string
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the channel the subscription's payloads are delivered on.
// The channel is closed after Close.
func (s *Subscription) Events() <-chan string {
	return s.out
}

// Close deregisters the subscription. It is safe to call more than once;
// after it returns the subscription receives no further payloads and its
// queue is released.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.broker.unsubscribe(s)
		close(s.done)
	})
}

func (s *Subscription) enqueue(payload string) {
	s.mu.Lock()
	s.queue = append(s.queue, payload)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump drains the queue into the output channel, preserving FIFO order.
// It exits when the subscription is closed, even if the reader is gone.
func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		var next string
		ok := len(s.queue) > 0
		if ok {
			next = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
)

// subscriberBuffer bounds how many undelivered messages a subscriber
// may accumulate before it is disconnected.
const subscriberBuffer = 8

// SnapshotFunc builds the current leaderboard snapshot for a session.
// The read path's Reader provides it.
type SnapshotFunc func(ctx context.Context, sessionID uuid.UUID) (*auction.LeaderboardSnapshot, error)

// Subscription is one client's feed of leaderboard snapshots for a
// single session. C is closed when the subscription ends, whether by
// Close, by broadcaster shutdown, or by falling behind.
type Subscription struct {
	C      <-chan *auction.LeaderboardSnapshot
	ch     chan *auction.LeaderboardSnapshot
	cancel func()
	once   sync.Once
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
}

// EventSubscription is one client's feed of session lifecycle events.
type EventSubscription struct {
	C      <-chan auction.SessionEvent
	ch     chan auction.SessionEvent
	cancel func()
	once   sync.Once
}

// Close detaches the subscription. Safe to call more than once.
func (s *EventSubscription) Close() {
	s.cancel()
}

// topic is the fan-out state for one session.
type topic struct {
	trigger chan struct{}
	subs    map[*Subscription]struct{}
	done    chan struct{}
}

// Broadcaster coalesces per-session change signals into snapshot
// rebuilds and fans them out. Thread-safe: all methods may be called
// from any goroutine.
type Broadcaster struct {
	source SnapshotFunc
	log    zerolog.Logger

	mu        sync.Mutex
	topics    map[uuid.UUID]*topic
	eventSubs map[*EventSubscription]struct{}
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroadcaster creates a broadcaster that rebuilds snapshots through
// source.
func NewBroadcaster(source SnapshotFunc, log zerolog.Logger) *Broadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		source:    source,
		log:       log,
		topics:    make(map[uuid.UUID]*topic),
		eventSubs: make(map[*EventSubscription]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Subscribe attaches a new leaderboard feed for the session, starting
// the session's fan-out worker if it is the first subscriber. Returns
// nil after Close.
func (b *Broadcaster) Subscribe(sessionID uuid.UUID) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	t, ok := b.topics[sessionID]
	if !ok {
		t = &topic{
			trigger: make(chan struct{}, 1),
			subs:    make(map[*Subscription]struct{}),
			done:    make(chan struct{}),
		}
		b.topics[sessionID] = t
		b.wg.Add(1)
		go b.run(sessionID, t)
	}

	ch := make(chan *auction.LeaderboardSnapshot, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch}
	sub.cancel = func() {
		sub.once.Do(func() {
			b.unsubscribe(sessionID, sub)
			close(ch)
		})
	}
	t.subs[sub] = struct{}{}
	return sub
}

// Notify signals that the session's leaderboard changed. Non-blocking;
// repeated signals before the worker wakes coalesce into one rebuild.
func (b *Broadcaster) Notify(sessionID uuid.UUID) {
	b.mu.Lock()
	t, ok := b.topics[sessionID]
	b.mu.Unlock()
	if !ok {
		return
	}

	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// SubscribeEvents attaches a new feed of session lifecycle events.
// Returns nil after Close.
func (b *Broadcaster) SubscribeEvents() *EventSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	ch := make(chan auction.SessionEvent, subscriberBuffer)
	sub := &EventSubscription{C: ch, ch: ch}
	sub.cancel = func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.eventSubs, sub)
			b.mu.Unlock()
			close(ch)
		})
	}
	b.eventSubs[sub] = struct{}{}
	return sub
}

// Announce publishes a session lifecycle event to every event
// subscriber. Subscribers that cannot keep up are disconnected.
func (b *Broadcaster) Announce(ev auction.SessionEvent) {
	b.mu.Lock()
	var lagging []*EventSubscription
	for sub := range b.eventSubs {
		select {
		case sub.ch <- ev:
		default:
			lagging = append(lagging, sub)
		}
	}
	for _, sub := range lagging {
		delete(b.eventSubs, sub)
	}
	b.mu.Unlock()

	for _, sub := range lagging {
		sub.once.Do(func() { close(sub.ch) })
		b.log.Warn().Stringer("session_id", ev.SessionID).Msg("dropped lagging event subscriber")
	}
}

// Close shuts the broadcaster down: all workers stop and every
// subscriber channel is closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	var subs []*Subscription
	for _, t := range b.topics {
		for sub := range t.subs {
			subs = append(subs, sub)
		}
		t.subs = make(map[*Subscription]struct{})
	}
	var eventSubs []*EventSubscription
	for sub := range b.eventSubs {
		eventSubs = append(eventSubs, sub)
	}
	b.eventSubs = make(map[*EventSubscription]struct{})
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
	for _, sub := range eventSubs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// run is the per-session fan-out worker. It exits when the broadcaster
// shuts down or the topic loses its last subscriber.
func (b *Broadcaster) run(sessionID uuid.UUID, t *topic) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-t.done:
			return
		case <-t.trigger:
		}

		snap, err := b.source(b.ctx, sessionID)
		if err != nil {
			b.log.Warn().Err(err).Stringer("session_id", sessionID).Msg("failed to build broadcast snapshot")
			continue
		}
		b.publish(sessionID, t, snap)
	}
}

// publish fans one snapshot out to the topic's subscribers, dropping
// any that have fallen behind.
func (b *Broadcaster) publish(sessionID uuid.UUID, t *topic, snap *auction.LeaderboardSnapshot) {
	b.mu.Lock()
	var lagging []*Subscription
	for sub := range t.subs {
		select {
		case sub.ch <- snap:
		default:
			lagging = append(lagging, sub)
		}
	}
	for _, sub := range lagging {
		delete(t.subs, sub)
	}
	// Tear the topic down if the drops emptied it. The registration
	// check avoids racing a concurrent unsubscribe that already did.
	if cur, ok := b.topics[sessionID]; ok && cur == t && len(t.subs) == 0 && !b.closed {
		delete(b.topics, sessionID)
		close(t.done)
	}
	b.mu.Unlock()

	for _, sub := range lagging {
		sub.once.Do(func() { close(sub.ch) })
		b.log.Warn().Stringer("session_id", sessionID).Msg("dropped lagging leaderboard subscriber")
	}
}

// unsubscribe detaches one subscription and tears the topic down when
// it was the last one.
func (b *Broadcaster) unsubscribe(sessionID uuid.UUID, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok {
		return
	}
	delete(t.subs, sub)
	if len(t.subs) == 0 {
		delete(b.topics, sessionID)
		close(t.done)
	}
}

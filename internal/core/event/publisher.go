// Package event provides the live fan-out side of the event stream
package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	imetrics "github.com/chaingraphlabs/chaingraph/internal/infrastructure/metrics"
)

// DefaultQueueSize bounds each subscriber's delivery queue.
const DefaultQueueSize = 256

// Publisher fans one execution's events out to subscribers. Publishing
// never blocks the scheduler: each subscriber owns a bounded queue, and an
// overflowing slow subscriber is disconnected with a subscriberOverflow
// notice instead of applying backpressure upstream.
type Publisher struct {
	executionID string
	store       Store
	queueSize   int
	logger      *slog.Logger

	mu         sync.Mutex
	subs       map[*Subscription]struct{}
	terminated bool
}

// NewPublisher creates a publisher for one execution. A queueSize of 0
// selects DefaultQueueSize.
func NewPublisher(executionID string, store Store, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		executionID: executionID,
		store:       store,
		queueSize:   queueSize,
		logger:      logger,
		subs:        make(map[*Subscription]struct{}),
	}
}

// Subscription is one subscriber's ordered, resumable view of an execution
// log: replayed events first, live events after, no duplicates and no gaps.
// The channel closes at the execution's terminal event, on overflow, or on
// Close; Err reports why when the close was not a clean terminal.
type Subscription struct {
	pub  *Publisher
	ch   chan Event
	once sync.Once

	// lastSeq is the highest sequence enqueued to this subscriber. Guarded
	// by pub.mu. It deduplicates the replay/live hand-off: the store commit
	// happens before publish acquires the lock, so an event can be visible
	// to Replay before its own publish call runs.
	lastSeq uint64

	mu  sync.Mutex
	err error
}

// Events returns the ordered event channel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Err reports why the subscription ended: nil after a clean terminal event
// or Close, ErrSubscriberOverflow when the queue overflowed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close detaches the subscription from the publisher.
func (s *Subscription) Close() {
	s.pub.unsubscribe(s, nil)
}

// Subscribe attaches a new subscriber, replaying all logged events with
// sequence numbers greater than lastSeen before any live event. Replay and
// registration happen under the publish lock, so the hand-off from replayed
// to live events has no gaps; the subscriber's sequence watermark drops a
// live event already seen through replay.
func (p *Publisher) Subscribe(ctx context.Context, lastSeen uint64) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	replay, err := p.store.Replay(ctx, p.executionID, lastSeen)
	if err != nil {
		return nil, err
	}
	imetrics.EventsReplayed("publisher", int64(len(replay)))

	// One extra slot is reserved for the overflow notice.
	sub := &Subscription{
		pub:     p,
		ch:      make(chan Event, len(replay)+p.queueSize+1),
		lastSeq: lastSeen,
	}
	for _, ev := range replay {
		sub.ch <- ev
	}
	if len(replay) > 0 {
		sub.lastSeq = replay[len(replay)-1].Seq
	}

	terminalReplayed := len(replay) > 0 && replay[len(replay)-1].Terminal()
	if p.terminated || terminalReplayed {
		// Log already settled; nothing live will follow.
		sub.once.Do(func() { close(sub.ch) })
		return sub, nil
	}

	p.subs[sub] = struct{}{}
	imetrics.AddSubscribersActive(1)
	return sub, nil
}

// publish delivers one event to every live subscriber. Called by the Log
// under its append mutex, preserving total order across subscribers.
func (p *Publisher) publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated {
		return
	}

	for sub := range p.subs {
		if ev.Seq <= sub.lastSeq {
			// Already delivered through replay.
			continue
		}
		// The reserved slot guarantees the notice always fits.
		if len(sub.ch) >= cap(sub.ch)-1 {
			imetrics.IncSubscriberOverflow()
			p.logger.Warn("disconnecting slow subscriber",
				slog.String("execution_id", p.executionID),
				slog.Int("queue", cap(sub.ch)-1))
			sub.mu.Lock()
			sub.err = ErrSubscriberOverflow
			sub.mu.Unlock()
			sub.ch <- Event{
				Seq:         sub.lastSeq,
				ExecutionID: p.executionID,
				Kind:        KindSubscriberOverflow,
				Timestamp:   time.Now().UTC(),
			}
			p.dropLocked(sub)
			continue
		}
		sub.ch <- ev
		sub.lastSeq = ev.Seq
	}

	if ev.Terminal() {
		p.terminated = true
		for sub := range p.subs {
			p.dropLocked(sub)
		}
	}
}

// Close disconnects all subscribers without a terminal event. Used when a
// run is torn down abnormally.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return
	}
	p.terminated = true
	for sub := range p.subs {
		p.dropLocked(sub)
	}
}

func (p *Publisher) unsubscribe(sub *Subscription, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		sub.mu.Lock()
		sub.err = err
		sub.mu.Unlock()
	}
	p.dropLocked(sub)
}

// dropLocked removes and closes a subscription. Callers hold p.mu.
func (p *Publisher) dropLocked(sub *Subscription) {
	if _, ok := p.subs[sub]; !ok {
		return
	}
	delete(p.subs, sub)
	imetrics.AddSubscribersActive(-1)
	sub.once.Do(func() { close(sub.ch) })
}

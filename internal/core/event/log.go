// Package event provides the per-execution append-only log
package event

import (
	"context"
	"sync"
	"time"

	imetrics "github.com/chaingraphlabs/chaingraph/internal/infrastructure/metrics"
)

// Log assigns sequence numbers and appends events for one execution.
// Sequencing, persistence, and fan-out happen under a single mutex, so all
// status transitions of an execution are totally ordered regardless of how
// many nodes complete concurrently.
type Log struct {
	executionID string
	store       Store
	pub         *Publisher

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// NewLog creates the append-only log for one execution. The publisher may
// be nil when no live fan-out is needed (replay-only consumers).
func NewLog(executionID string, store Store, pub *Publisher) *Log {
	return &Log{executionID: executionID, store: store, pub: pub}
}

// ExecutionID returns the owning execution's ID.
func (l *Log) ExecutionID() string { return l.executionID }

// Seq returns the last assigned sequence number.
func (l *Log) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Append assigns the next sequence number, persists the event, and fans it
// out to live subscribers. The log closes itself after a terminal event;
// further appends fail with ErrLogClosed.
func (l *Log) Append(ctx context.Context, kind Kind, nodeID string, payload map[string]any) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Event{}, ErrLogClosed
	}

	l.seq++
	ev := Event{
		Seq:         l.seq,
		ExecutionID: l.executionID,
		Kind:        kind,
		NodeID:      nodeID,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}

	if err := l.store.Append(ctx, ev); err != nil {
		imetrics.StoreAppendError("log")
		l.seq--
		return Event{}, err
	}
	imetrics.EventAppended(string(kind))

	if l.pub != nil {
		l.pub.publish(ev)
	}
	if ev.Terminal() {
		l.closed = true
	}
	return ev, nil
}

// Package memory provides an in-memory event log store
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/chaingraphlabs/chaingraph/internal/core/event"
)

// Config holds configuration for the in-memory store.
type Config struct {
	// MaxEventsPerExecution bounds the retention window per execution;
	// older events are evicted first. 0 means unbounded.
	MaxEventsPerExecution int
}

// Store implements event.Store with thread-safe in-memory retention.
// PRINCIPLES:
// - KISS: a guarded map of slices
// - DIP: implements the event.Store interface
type Store struct {
	mu     sync.RWMutex
	logs   map[string][]event.Event
	config Config
}

// New creates an in-memory event store.
func New(config Config) *Store {
	return &Store{logs: make(map[string][]event.Event), config: config}
}

// Default creates an unbounded in-memory event store.
func Default() *Store { return New(Config{}) }

// Append persists one event, evicting the oldest retained event when the
// retention window is exceeded.
func (s *Store) Append(ctx context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[ev.ExecutionID]
	if n := len(log); n > 0 && ev.Seq <= log[n-1].Seq {
		return event.ErrSequenceRegression
	}
	log = append(log, ev)
	if s.config.MaxEventsPerExecution > 0 && len(log) > s.config.MaxEventsPerExecution {
		log = log[len(log)-s.config.MaxEventsPerExecution:]
	}
	s.logs[ev.ExecutionID] = log
	return nil
}

// Replay returns retained events with sequence numbers greater than afterSeq.
func (s *Store) Replay(ctx context.Context, executionID string, afterSeq uint64) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[executionID]
	idx := sort.Search(len(log), func(i int) bool { return log[i].Seq > afterSeq })
	out := make([]event.Event, len(log)-idx)
	copy(out, log[idx:])
	return out, nil
}

// LastSeq returns the highest retained sequence number, or 0.
func (s *Store) LastSeq(ctx context.Context, executionID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[executionID]
	if len(log) == 0 {
		return 0, nil
	}
	return log[len(log)-1].Seq, nil
}

// Prune drops all retained events for an execution.
func (s *Store) Prune(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, executionID)
	return nil
}

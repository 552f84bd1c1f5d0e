package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraphlabs/chaingraph/internal/core/event"
)

// newTestStore connects through CHAINGRAPH_POSTGRES_DSN; tests skip when
// the variable is unset so the suite stays runnable without a database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CHAINGRAPH_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("integration test requires CHAINGRAPH_POSTGRES_DSN")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool, nil)
	s.tableName = "events_test"
	require.NoError(t, s.CreateTables(ctx))
	t.Cleanup(func() {
		pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+s.tableName)
	})
	return s
}

func TestAppendReplayRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []event.Event{
		{Seq: 1, ExecutionID: "exec-1", Kind: event.KindNodeStarted, NodeID: "a", Timestamp: time.Now().UTC()},
		{Seq: 2, ExecutionID: "exec-1", Kind: event.KindNodeCompleted, NodeID: "a",
			Payload: map[string]any{"outputs": map[string]any{"out": float64(4)}}, Timestamp: time.Now().UTC()},
		{Seq: 3, ExecutionID: "exec-1", Kind: event.KindExecutionCompleted, Timestamp: time.Now().UTC()},
	}
	for _, ev := range events {
		require.NoError(t, s.Append(ctx, ev))
	}

	got, err := s.Replay(ctx, "exec-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, event.KindNodeCompleted, got[1].Kind)

	got, err = s.Replay(ctx, "exec-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Seq)

	last, err := s.LastSeq(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)
}

func TestAppendRejectsRegression(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, event.Event{
		Seq: 5, ExecutionID: "exec-2", Kind: event.KindNodeStarted, NodeID: "a", Timestamp: time.Now().UTC(),
	}))
	err := s.Append(ctx, event.Event{
		Seq: 5, ExecutionID: "exec-2", Kind: event.KindNodeStarted, NodeID: "b", Timestamp: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, event.ErrSequenceRegression)
}

func TestPruneRemovesExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, event.Event{
		Seq: 1, ExecutionID: "exec-3", Kind: event.KindNodeStarted, NodeID: "a", Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, s.Prune(ctx, "exec-3"))

	got, err := s.Replay(ctx, "exec-3", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

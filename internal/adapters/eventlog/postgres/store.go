// Package postgres provides a durable event log store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chaingraphlabs/chaingraph/internal/core/event"
	"github.com/chaingraphlabs/chaingraph/pkg/serialization"
)

// Store implements event.Store backed by a pgx connection pool. The
// composite primary key (execution_id, seq) makes duplicate or regressed
// sequence numbers a unique violation, surfaced as ErrSequenceRegression.
type Store struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
	tableName  string
}

// New creates a PostgreSQL event store. A nil serializer falls back to the
// default msgpack+zstd pipeline.
func New(pool *pgxpool.Pool, serializer *serialization.Serializer) *Store {
	if serializer == nil {
		serializer = serialization.Default()
	}
	return &Store{pool: pool, serializer: serializer, tableName: "events"}
}

// Connect opens a pool from a connection string and prepares the store
// schema.
func Connect(ctx context.Context, connString string, serializer *serialization.Serializer) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := New(pool, serializer)
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Append persists one event.
func (s *Store) Append(ctx context.Context, ev event.Event) error {
	payload, err := s.serializer.Serialize(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to serialize event payload: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (execution_id, seq, kind, node_id, payload, timestamp)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (
			SELECT 1 FROM %s WHERE execution_id = $1 AND seq >= $2
		)
	`, s.tableName, s.tableName)

	tag, err := s.pool.Exec(ctx, query,
		ev.ExecutionID, int64(ev.Seq), string(ev.Kind), ev.NodeID, payload, ev.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return event.ErrSequenceRegression
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return event.ErrSequenceRegression
	}
	return nil
}

// Replay returns events with sequence numbers greater than afterSeq in
// ascending order.
func (s *Store) Replay(ctx context.Context, executionID string, afterSeq uint64) ([]event.Event, error) {
	query := fmt.Sprintf(`
		SELECT seq, kind, node_id, payload, timestamp
		FROM %s
		WHERE execution_id = $1 AND seq > $2
		ORDER BY seq ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, executionID, int64(afterSeq))
	if err != nil {
		return nil, fmt.Errorf("failed to replay events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			seq     int64
			kind    string
			nodeID  string
			payload []byte
		)
		ev := event.Event{ExecutionID: executionID}
		if err := rows.Scan(&seq, &kind, &nodeID, &payload, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Kind = event.Kind(kind)
		ev.NodeID = nodeID
		if len(payload) > 0 {
			if err := s.serializer.Deserialize(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("failed to deserialize event payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LastSeq returns the highest stored sequence number, or 0.
func (s *Store) LastSeq(ctx context.Context, executionID string) (uint64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) FROM %s WHERE execution_id = $1", s.tableName)

	var last int64
	if err := s.pool.QueryRow(ctx, query, executionID).Scan(&last); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	return uint64(last), nil
}

// Prune removes all events of one execution.
func (s *Store) Prune(ctx context.Context, executionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE execution_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, executionID); err != nil {
		return fmt.Errorf("failed to prune events: %w", err)
	}
	return nil
}

// CreateTables creates the event table and replay index.
func (s *Store) CreateTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			execution_id VARCHAR(255) NOT NULL,
			seq BIGINT NOT NULL,
			kind VARCHAR(64) NOT NULL,
			node_id VARCHAR(255),
			payload BYTEA,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (execution_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_%s_execution ON %s (execution_id, seq);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

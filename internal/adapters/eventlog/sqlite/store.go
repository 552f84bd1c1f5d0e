// Package sqlite provides a durable event log store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chaingraphlabs/chaingraph/internal/core/event"
	"github.com/chaingraphlabs/chaingraph/pkg/serialization"
	_ "modernc.org/sqlite"
)

// Store implements event.Store backed by a SQLite database. Event payloads
// go through the serialization pipeline; the ordering columns stay native
// so replay can filter in SQL.
type Store struct {
	db         *sql.DB
	serializer *serialization.Serializer
	tableName  string
}

// New creates a SQLite event store. A nil serializer falls back to the
// default msgpack+zstd pipeline.
func New(db *sql.DB, serializer *serialization.Serializer) *Store {
	if serializer == nil {
		serializer = serialization.Default()
	}
	return &Store{db: db, serializer: serializer, tableName: "events"}
}

// Open opens (or creates) a SQLite database at path and prepares the store
// schema.
func Open(ctx context.Context, path string, serializer *serialization.Serializer) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite has a single writer; one pooled connection also keeps
	// in-memory databases coherent across calls.
	db.SetMaxOpenConns(1)
	s := New(db, serializer)
	if err := s.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// WithTableName overrides the default table name. Only alphanumeric and
// underscore are permitted to prevent SQL injection via identifiers.
func (s *Store) WithTableName(name string) *Store {
	if isSafeIdent(name) {
		s.tableName = name
	}
	return s
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

// Append persists one event. Sequence numbers must strictly increase per
// execution; the primary key plus the max-seq guard reject regressions.
func (s *Store) Append(ctx context.Context, ev event.Event) error {
	payload, err := s.serializer.Serialize(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to serialize event payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(seq) FROM %s WHERE execution_id = ?", s.tableName)
	if err := tx.QueryRowContext(ctx, query, ev.ExecutionID).Scan(&last); err != nil {
		return fmt.Errorf("failed to read last sequence: %w", err)
	}
	if last.Valid && ev.Seq <= uint64(last.Int64) {
		return event.ErrSequenceRegression
	}

	query = fmt.Sprintf(`
		INSERT INTO %s (execution_id, seq, kind, node_id, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.tableName)
	if _, err := tx.ExecContext(ctx, query,
		ev.ExecutionID, int64(ev.Seq), string(ev.Kind), ev.NodeID, payload, ev.Timestamp.UnixNano()); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

// Replay returns events with sequence numbers greater than afterSeq in
// ascending order.
func (s *Store) Replay(ctx context.Context, executionID string, afterSeq uint64) ([]event.Event, error) {
	query := fmt.Sprintf(`
		SELECT seq, kind, node_id, payload, timestamp
		FROM %s
		WHERE execution_id = ? AND seq > ?
		ORDER BY seq ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, executionID, int64(afterSeq))
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
			ts      int64
		)
		if err := rows.Scan(&seq, &kind, &nodeID, &payload, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		ev := event.Event{
			Seq:         uint64(seq),
			ExecutionID: executionID,
			Kind:        event.Kind(kind),
			NodeID:      nodeID,
			Timestamp:   time.Unix(0, ts).UTC(),
		}
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
	query := fmt.Sprintf("SELECT MAX(seq) FROM %s WHERE execution_id = ?", s.tableName)

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, executionID).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return uint64(last.Int64), nil
}

// Prune removes all events of one execution.
func (s *Store) Prune(ctx context.Context, executionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE execution_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, executionID); err != nil {
		return fmt.Errorf("failed to prune events: %w", err)
	}
	return nil
}

// CreateTables creates the event table and replay index.
func (s *Store) CreateTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			execution_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			node_id TEXT,
			payload BLOB,
			timestamp INTEGER NOT NULL,
			PRIMARY KEY (execution_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_%s_execution ON %s (execution_id, seq);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

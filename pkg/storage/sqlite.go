package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/havenapp/haven/pkg/session"
)

// SQLiteStore is the reference implementation of the storage collaborator.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls_json TEXT NOT NULL DEFAULT '',
			tool_call_id TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_session_idx ON messages(session_id, created_at_ms);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS memories_created_idx ON memories(created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			day_ms INTEGER NOT NULL,
			value REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS metrics_day_idx ON metrics(day_ms, name);`,
		`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// GetHistory returns a session's messages in append order.
func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string) ([]session.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, tool_calls_json, tool_call_id, created_at_ms
		 FROM messages WHERE session_id = ? ORDER BY created_at_ms ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []session.Message
	for rows.Next() {
		var msg session.Message
		var toolCallsJSON string
		var createdMS int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &toolCallsJSON, &msg.ToolCallID, &createdMS); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = time.UnixMilli(createdMS)
		if toolCallsJSON != "" {
			if err := json.Unmarshal([]byte(toolCallsJSON), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls for %s: %w", msg.ID, err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// AppendMessage persists one message. Messages are immutable; there is no
// update path.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg session.Message) error {
	if msg.ID == "" {
		msg.ID = "msg-" + uuid.NewString()
	}
	toolCallsJSON := ""
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		toolCallsJSON = string(raw)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, tool_calls_json, tool_call_id, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, toolCallsJSON, msg.ToolCallID, msg.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetRecentSessionIDs returns up to n session ids ordered by most recent
// activity.
func (s *SQLiteStore) GetRecentSessionIDs(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM messages GROUP BY session_id ORDER BY MAX(created_at_ms) DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMemories returns recall candidates, newest first.
func (s *SQLiteStore) ListMemories(ctx context.Context, limit int) ([]MemoryEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, created_at_ms FROM memories ORDER BY created_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryEntry
	for rows.Next() {
		var entry MemoryEntry
		var createdMS int64
		if err := rows.Scan(&entry.ID, &entry.Content, &createdMS); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		entry.CreatedAt = time.UnixMilli(createdMS)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddMemory(ctx context.Context, content string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, content, created_at_ms) VALUES (?, ?, ?)`,
		"mem-"+uuid.NewString(), content, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// GetMetrics returns the habit time series between from and to inclusive.
func (s *SQLiteStore) GetMetrics(ctx context.Context, from, to time.Time) ([]MetricPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, day_ms, value FROM metrics WHERE day_ms >= ? AND day_ms <= ? ORDER BY day_ms ASC`,
		from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []MetricPoint
	for rows.Next() {
		var point MetricPoint
		var dayMS int64
		if err := rows.Scan(&point.Name, &dayMS, &point.Value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		point.Day = time.UnixMilli(dayMS)
		out = append(out, point)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMetric(ctx context.Context, point MetricPoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (name, day_ms, value) VALUES (?, ?, ?)`,
		point.Name, point.Day.UnixMilli(), point.Value)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// GetFacts returns the user's profile facts in insertion order.
func (s *SQLiteStore) GetFacts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM facts ORDER BY created_at_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var fact string
		if err := rows.Scan(&fact); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		out = append(out, fact)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddFact(ctx context.Context, fact string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, content, created_at_ms) VALUES (?, ?, ?)`,
		"fact-"+uuid.NewString(), fact, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marlowe-ai/convopipe/dialogue"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists dialogue sessions to a single SQLite file. Designed
// for single-process deployments and local development, matching the
// teacher's own SQLiteStore (graph/store/sqlite.go) setup: WAL mode,
// single writer, busy timeout.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed session store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dialogue/store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("dialogue/store: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS dialogue_sessions (
			session_id TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("dialogue/store: create table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session dialogue.DialogueContext) error {
	blob, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("dialogue/store: marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dialogue_sessions (session_id, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`, session.SessionID, string(blob), time.Now())
	if err != nil {
		return fmt.Errorf("dialogue/store: save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (dialogue.DialogueContext, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM dialogue_sessions WHERE session_id = ?`, sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		return dialogue.DialogueContext{}, ErrNotFound
	}
	if err != nil {
		return dialogue.DialogueContext{}, fmt.Errorf("dialogue/store: load session: %w", err)
	}
	var out dialogue.DialogueContext
	if err := json.Unmarshal([]byte(blob), &out); err != nil {
		return dialogue.DialogueContext{}, fmt.Errorf("dialogue/store: unmarshal snapshot: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dialogue_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("dialogue/store: delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

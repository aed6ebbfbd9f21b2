package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marlowe-ai/convopipe/dialogue"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists dialogue sessions in a MySQL table, for
// multi-instance deployments that need a shared session store.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn and ensures the
// backing table exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("dialogue/store: open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &MySQLStore{db: db}
	if err := s.createTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS dialogue_sessions (
			session_id VARCHAR(191) PRIMARY KEY,
			snapshot JSON NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("dialogue/store: create table: %w", err)
	}
	return nil
}

func (s *MySQLStore) SaveSession(ctx context.Context, session dialogue.DialogueContext) error {
	blob, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("dialogue/store: marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dialogue_sessions (session_id, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE snapshot = VALUES(snapshot), updated_at = VALUES(updated_at)
	`, session.SessionID, string(blob), time.Now())
	if err != nil {
		return fmt.Errorf("dialogue/store: save session: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadSession(ctx context.Context, sessionID string) (dialogue.DialogueContext, error) {
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

func (s *MySQLStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dialogue_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("dialogue/store: delete session: %w", err)
	}
	return nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

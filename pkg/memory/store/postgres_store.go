package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_history (
    session_id  TEXT PRIMARY KEY,
    messages    JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements HistoryStore on a jsonb column.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the history table exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, errors.New("postgres connection string is required")
	}
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (ps *PostgresStore) Load(ctx context.Context, sessionID string) ([]models.Message, error) {
	if ps == nil || ps.DB == nil {
		return nil, nil
	}
	var raw []byte
	err := ps.DB.QueryRow(ctx, `SELECT messages FROM chat_history WHERE session_id = $1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", sessionID, err)
	}
	return decodeHistory(raw)
}

func (ps *PostgresStore) Save(ctx context.Context, sessionID string, history []models.Message) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	raw, err := encodeHistory(history)
	if err != nil {
		return err
	}
	_, err = ps.DB.Exec(ctx, `
                INSERT INTO chat_history (session_id, messages, updated_at)
                VALUES ($1, $2::jsonb, now())
                ON CONFLICT (session_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = now();
        `, sessionID, raw)
	if err != nil {
		return fmt.Errorf("save history %s: %w", sessionID, err)
	}
	return nil
}

func (ps *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	if _, err := ps.DB.Exec(ctx, `DELETE FROM chat_history WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete history %s: %w", sessionID, err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

var _ HistoryStore = (*PostgresStore)(nil)

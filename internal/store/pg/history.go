package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atendezap/atendezap/internal/store"
)

// PGHistoryStore implements store.HistoryStore backed by Postgres.
type PGHistoryStore struct {
	db *sql.DB
}

func NewPGHistoryStore(db *sql.DB) *PGHistoryStore {
	return &PGHistoryStore{db: db}
}

// Recent returns up to limit entries for the sender, oldest first.
// The query fetches newest-first for the LIMIT, then reverses.
func (s *PGHistoryStore) Recent(ctx context.Context, senderID string, limit int) ([]store.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, role, content, created_at
		 FROM message_history
		 WHERE sender_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		senderID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []store.HistoryEntry
	for rows.Next() {
		var e store.HistoryEntry
		if err := rows.Scan(&e.ID, &e.SenderID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	// Reverse to oldest-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *PGHistoryStore) Append(ctx context.Context, senderID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_history (sender_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4)`,
		senderID, role, content, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

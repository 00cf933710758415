package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atendezap/atendezap/internal/store"
)

// PGClientStore implements store.ClientStore backed by Postgres.
type PGClientStore struct {
	db *sql.DB
}

func NewPGClientStore(db *sql.DB) *PGClientStore {
	return &PGClientStore{db: db}
}

func (s *PGClientStore) Lookup(ctx context.Context, phone string) (*store.Client, error) {
	var c store.Client
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phone, name, created_at FROM clients WHERE phone = $1`,
		phone,
	).Scan(&c.ID, &c.Phone, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	return &c, nil
}

func (s *PGClientStore) Register(ctx context.Context, c store.Client) (*store.Client, error) {
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (id, phone, name, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name`,
		c.ID, c.Phone, c.Name, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("register client: %w", err)
	}
	return s.Lookup(ctx, c.Phone)
}

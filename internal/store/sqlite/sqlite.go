// Package sqlite backs the stores in standalone mode, when no Postgres
// DSN is configured. The database lives under the state directory and
// the schema is created on open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/atendezap/atendezap/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS message_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id  TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_sender ON message_history(sender_id, id);

CREATE TABLE IF NOT EXISTS clients (
	id         TEXT PRIMARY KEY,
	phone      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS appointments (
	id           TEXT PRIMARY KEY,
	client_phone TEXT NOT NULL,
	client_name  TEXT NOT NULL DEFAULT '',
	starts_at    INTEGER NOT NULL,
	ends_at      INTEGER NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'scheduled',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_appt_window ON appointments(status, starts_at);
`

// OpenDB opens (and initializes) the standalone database file.
func OpenDB(stateDir string) (*sql.DB, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(stateDir, "atendezap.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite: a single writer avoids SQLITE_BUSY under concurrency.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return db, nil
}

// NewSQLiteStores creates all stores backed by one sqlite file.
func NewSQLiteStores(stateDir string) (*store.Stores, error) {
	db, err := OpenDB(stateDir)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		History:      &HistoryStore{db: db},
		Clients:      &ClientStore{db: db},
		Appointments: &AppointmentStore{db: db},
	}, nil
}

// HistoryStore implements store.HistoryStore on sqlite.
type HistoryStore struct {
	db *sql.DB
}

func (s *HistoryStore) Recent(ctx context.Context, senderID string, limit int) ([]store.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, role, content, created_at
		 FROM message_history WHERE sender_id = ? ORDER BY id DESC LIMIT ?`,
		senderID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []store.HistoryEntry
	for rows.Next() {
		var e store.HistoryEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.SenderID, &e.Role, &e.Content, &created); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *HistoryStore) Append(ctx context.Context, senderID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_history (sender_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		senderID, role, content, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ClientStore implements store.ClientStore on sqlite.
type ClientStore struct {
	db *sql.DB
}

func (s *ClientStore) Lookup(ctx context.Context, phone string) (*store.Client, error) {
	var c store.Client
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phone, name, created_at FROM clients WHERE phone = ?`, phone,
	).Scan(&c.ID, &c.Phone, &c.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	c.CreatedAt = time.Unix(created, 0)
	return &c, nil
}

func (s *ClientStore) Register(ctx context.Context, c store.Client) (*store.Client, error) {
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (id, phone, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (phone) DO UPDATE SET name = excluded.name`,
		c.ID, c.Phone, c.Name, c.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("register client: %w", err)
	}
	return s.Lookup(ctx, c.Phone)
}

// AppointmentStore implements store.AppointmentStore on sqlite.
type AppointmentStore struct {
	db *sql.DB
}

func (s *AppointmentStore) scanRow(rows interface {
	Scan(dest ...any) error
}) (store.Appointment, error) {
	var a store.Appointment
	var starts, ends, created int64
	err := rows.Scan(&a.ID, &a.ClientPhone, &a.ClientName, &starts, &ends, &a.Notes, &a.Status, &created)
	if err != nil {
		return a, err
	}
	a.StartsAt = time.Unix(starts, 0)
	a.EndsAt = time.Unix(ends, 0)
	a.CreatedAt = time.Unix(created, 0)
	return a, nil
}

func (s *AppointmentStore) Between(ctx context.Context, from, to time.Time) ([]store.Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_phone, client_name, starts_at, ends_at, notes, status, created_at
		 FROM appointments
		 WHERE status = 'scheduled' AND starts_at < ? AND ends_at > ?
		 ORDER BY starts_at`,
		to.Unix(), from.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var appts []store.Appointment
	for rows.Next() {
		a, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment row: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (s *AppointmentStore) Create(ctx context.Context, a store.Appointment) (*store.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.Must(uuid.NewV7()).String()
	}
	if a.Status == "" {
		a.Status = "scheduled"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, client_phone, client_name, starts_at, ends_at, notes, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientPhone, a.ClientName, a.StartsAt.Unix(), a.EndsAt.Unix(), a.Notes, a.Status, a.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &a, nil
}

func (s *AppointmentStore) NextForClient(ctx context.Context, phone string, after time.Time) (*store.Appointment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_phone, client_name, starts_at, ends_at, notes, status, created_at
		 FROM appointments
		 WHERE client_phone = ? AND status = 'scheduled' AND starts_at > ?
		 ORDER BY starts_at LIMIT 1`,
		phone, after.Unix(),
	)
	a, err := s.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("next appointment: %w", err)
	}
	return &a, nil
}

func (s *AppointmentStore) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = 'cancelled' WHERE id = ? AND status = 'scheduled'`, id)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *AppointmentStore) Reschedule(ctx context.Context, id string, startsAt, endsAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET starts_at = ?, ends_at = ? WHERE id = ? AND status = 'scheduled'`,
		startsAt.Unix(), endsAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("reschedule appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

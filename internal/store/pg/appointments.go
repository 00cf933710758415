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

// PGAppointmentStore implements store.AppointmentStore backed by Postgres.
type PGAppointmentStore struct {
	db *sql.DB
}

func NewPGAppointmentStore(db *sql.DB) *PGAppointmentStore {
	return &PGAppointmentStore{db: db}
}

func (s *PGAppointmentStore) Between(ctx context.Context, from, to time.Time) ([]store.Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_phone, client_name, starts_at, ends_at, notes, status, created_at
		 FROM appointments
		 WHERE status = 'scheduled' AND starts_at < $2 AND ends_at > $1
		 ORDER BY starts_at`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var appts []store.Appointment
	for rows.Next() {
		var a store.Appointment
		if err := rows.Scan(&a.ID, &a.ClientPhone, &a.ClientName, &a.StartsAt, &a.EndsAt, &a.Notes, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan appointment row: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (s *PGAppointmentStore) Create(ctx context.Context, a store.Appointment) (*store.Appointment, error) {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.ClientPhone, a.ClientName, a.StartsAt, a.EndsAt, a.Notes, a.Status, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &a, nil
}

func (s *PGAppointmentStore) NextForClient(ctx context.Context, phone string, after time.Time) (*store.Appointment, error) {
	var a store.Appointment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, client_phone, client_name, starts_at, ends_at, notes, status, created_at
		 FROM appointments
		 WHERE client_phone = $1 AND status = 'scheduled' AND starts_at > $2
		 ORDER BY starts_at
		 LIMIT 1`,
		phone, after,
	).Scan(&a.ID, &a.ClientPhone, &a.ClientName, &a.StartsAt, &a.EndsAt, &a.Notes, &a.Status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("next appointment: %w", err)
	}
	return &a, nil
}

func (s *PGAppointmentStore) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = 'cancelled' WHERE id = $1 AND status = 'scheduled'`, id)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGAppointmentStore) Reschedule(ctx context.Context, id string, startsAt, endsAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET starts_at = $2, ends_at = $3 WHERE id = $1 AND status = 'scheduled'`,
		id, startsAt, endsAt)
	if err != nil {
		return fmt.Errorf("reschedule appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

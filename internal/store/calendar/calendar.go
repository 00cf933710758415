// Package calendar implements store.AppointmentStore against an
// external calendar service over HTTP, for deployments where bookings
// live outside the local database.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atendezap/atendezap/internal/store"
)

// Store talks to a calendar service exposing a small JSON API:
// GET /appointments?from=&to=, POST /appointments,
// GET /appointments/next?phone=&after=,
// POST /appointments/{id}/cancel, POST /appointments/{id}/reschedule.
type Store struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// appointmentDTO is the wire shape of one appointment.
type appointmentDTO struct {
	ID          string    `json:"id"`
	ClientPhone string    `json:"client_phone"`
	ClientName  string    `json:"client_name"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Notes       string    `json:"notes,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d appointmentDTO) toModel() store.Appointment {
	return store.Appointment{
		ID:          d.ID,
		ClientPhone: d.ClientPhone,
		ClientName:  d.ClientName,
		StartsAt:    d.StartsAt,
		EndsAt:      d.EndsAt,
		Notes:       d.Notes,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt,
	}
}

func (s *Store) Between(ctx context.Context, from, to time.Time) ([]store.Appointment, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	var dtos []appointmentDTO
	if err := s.do(ctx, http.MethodGet, "/appointments?"+q.Encode(), nil, &dtos); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	appts := make([]store.Appointment, 0, len(dtos))
	for _, d := range dtos {
		appts = append(appts, d.toModel())
	}
	return appts, nil
}

func (s *Store) Create(ctx context.Context, a store.Appointment) (*store.Appointment, error) {
	payload := appointmentDTO{
		ClientPhone: a.ClientPhone,
		ClientName:  a.ClientName,
		StartsAt:    a.StartsAt,
		EndsAt:      a.EndsAt,
		Notes:       a.Notes,
		Status:      a.Status,
	}
	var created appointmentDTO
	if err := s.do(ctx, http.MethodPost, "/appointments", payload, &created); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	m := created.toModel()
	return &m, nil
}

func (s *Store) NextForClient(ctx context.Context, phone string, after time.Time) (*store.Appointment, error) {
	q := url.Values{}
	q.Set("phone", phone)
	q.Set("after", after.UTC().Format(time.RFC3339))

	var dto appointmentDTO
	err := s.do(ctx, http.MethodGet, "/appointments/next?"+q.Encode(), nil, &dto)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("next appointment for %s: %w", phone, err)
	}
	m := dto.toModel()
	return &m, nil
}

func (s *Store) Cancel(ctx context.Context, id string) error {
	err := s.do(ctx, http.MethodPost, "/appointments/"+url.PathEscape(id)+"/cancel", nil, nil)
	if err != nil {
		if isNotFound(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("cancel appointment %s: %w", id, err)
	}
	return nil
}

func (s *Store) Reschedule(ctx context.Context, id string, startsAt, endsAt time.Time) error {
	payload := map[string]interface{}{
		"starts_at": startsAt.UTC().Format(time.RFC3339),
		"ends_at":   endsAt.UTC().Format(time.RFC3339),
	}
	err := s.do(ctx, http.MethodPost, "/appointments/"+url.PathEscape(id)+"/reschedule", payload, nil)
	if err != nil {
		if isNotFound(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("reschedule appointment %s: %w", id, err)
	}
	return nil
}

// statusError keeps the upstream status so callers can map 404 to
// store.ErrNotFound.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (s *Store) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, body: truncate(string(data), 200)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

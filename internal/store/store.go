// Package store defines the persistence interfaces consumed by the
// pipeline: conversation history, registered clients and appointments.
// Postgres backs managed deployments; sqlite backs standalone mode.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// HistoryEntry is one persisted conversation message.
type HistoryEntry struct {
	ID        int64
	SenderID  string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Client is a registered WhatsApp contact.
type Client struct {
	ID        string
	Phone     string
	Name      string
	CreatedAt time.Time
}

// Appointment is a booked visit slot.
type Appointment struct {
	ID          string
	ClientPhone string
	ClientName  string
	StartsAt    time.Time
	EndsAt      time.Time
	Notes       string
	Status      string // "scheduled" or "cancelled"
	CreatedAt   time.Time
}

// HistoryStore reads and appends per-sender conversation history.
type HistoryStore interface {
	// Recent returns up to limit entries for the sender, oldest first.
	Recent(ctx context.Context, senderID string, limit int) ([]HistoryEntry, error)
	Append(ctx context.Context, senderID, role, content string) error
}

// ClientStore looks up and registers clients by phone number.
type ClientStore interface {
	// Lookup returns ErrNotFound when the phone is unknown.
	Lookup(ctx context.Context, phone string) (*Client, error)
	Register(ctx context.Context, c Client) (*Client, error)
}

// AppointmentStore backs the scheduling tool in local-calendar mode.
type AppointmentStore interface {
	// Between returns scheduled (non-cancelled) appointments overlapping [from, to).
	Between(ctx context.Context, from, to time.Time) ([]Appointment, error)
	Create(ctx context.Context, a Appointment) (*Appointment, error)
	// NextForClient returns the client's earliest scheduled appointment
	// starting after the given time, or ErrNotFound.
	NextForClient(ctx context.Context, phone string, after time.Time) (*Appointment, error)
	Cancel(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, startsAt, endsAt time.Time) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	History      HistoryStore
	Clients      ClientStore
	Appointments AppointmentStore
}
